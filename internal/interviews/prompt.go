package interviews

import (
	"fmt"
	"strings"

	"github.com/fmuoria/voice-interview-agent/internal/llm"
)

func paramsSchema(withEmail bool) *llm.Schema {
	s := &llm.Schema{
		Type: llm.TypeObject,
		Properties: map[string]*llm.Schema{
			"role":      {Type: llm.TypeString, Description: "The job role mentioned (e.g., Frontend Developer, Backend Engineer)"},
			"level":     {Type: llm.TypeString, Description: "Experience level mentioned (e.g., Junior, Mid, Senior)"},
			"techstack": {Type: llm.TypeString, Description: "Technologies mentioned as comma-separated (e.g., React, Node.js, TypeScript)"},
			"type":      {Type: llm.TypeString, Description: "Interview type mentioned (e.g., Technical, Behavioral, Mixed)"},
			"amount":    {Type: llm.TypeString, Description: "Number of questions mentioned (e.g., 5, 10, 15)"},
		},
		Required: []string{"role", "level", "techstack", "type", "amount"},
	}
	if withEmail {
		s.Properties["email"] = &llm.Schema{
			Type:        llm.TypeString,
			Description: "Email addresses provided by the user, comma-separated when there are several",
		}
		s.Required = append(s.Required, "email")
	}
	return s
}

func buildExtractionPrompt(transcript string, withEmail bool) string {
	var sb strings.Builder
	sb.WriteString("Extract interview preparation parameters from this conversation transcript:\n\n")
	sb.WriteString(transcript)
	sb.WriteString("\n\nExtract:\n")
	sb.WriteString("- role: The job position the interview is for\n")
	sb.WriteString("- level: The experience level (Junior/Mid/Senior)\n")
	sb.WriteString("- techstack: Technologies to focus on (comma-separated)\n")
	sb.WriteString("- type: Type of interview questions (Technical/Behavioral/Mixed)\n")
	sb.WriteString("- amount: Number of questions wanted (as a number string like \"5\", \"10\", or \"15\")\n")
	if withEmail {
		sb.WriteString("- email: The candidate email addresses that should receive session codes\n")
	}
	sb.WriteString("\nIf any information is unclear or missing, make a reasonable assumption based on the context.")
	return sb.String()
}

func buildQuestionsPrompt(p Params, count int) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Generate %d interview questions for a job interview.\n\n", count))
	sb.WriteString(fmt.Sprintf("Role: %s\n", p.Role))
	sb.WriteString(fmt.Sprintf("Experience Level: %s\n", p.Level))
	sb.WriteString(fmt.Sprintf("Tech Stack: %s\n", p.TechStack))
	sb.WriteString(fmt.Sprintf("Interview Type: %s\n\n", p.Type))
	sb.WriteString("The questions will be read aloud by a voice assistant. Do not use special characters like \"/\" or \"*\".\n")
	sb.WriteString("Return ONLY a JSON array of question strings. No other text.\n")
	return sb.String()
}
