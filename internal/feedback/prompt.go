package feedback

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fmuoria/voice-interview-agent/internal/llm"
	"github.com/fmuoria/voice-interview-agent/internal/models"
	"github.com/fmuoria/voice-interview-agent/internal/transcript"
)

// maxTranscriptChars caps the transcript sent to the scoring model
const maxTranscriptChars = 30000

const systemInstruction = "You are an expert interview evaluator providing detailed, constructive feedback on interviews."

var rubric = [5]struct {
	name     string
	criteria []string
}{
	{models.CategoryCommunication, []string{"Clarity and articulation", "Structure of responses", "Professional language use", "Ability to explain complex concepts"}},
	{models.CategoryTechnical, []string{"Understanding of relevant technologies", "Depth of technical expertise", "Accuracy of technical explanations"}},
	{models.CategoryProblem, []string{"Analytical thinking", "Approach to challenges", "Creativity in solutions", "Logical reasoning"}},
	{models.CategoryCulturalFit, []string{"Alignment with role requirements", "Enthusiasm and motivation", "Team collaboration mindset", "Growth mindset"}},
	{models.CategoryConfidence, []string{"Confidence in responses", "Clarity of thought", "Engagement level", "Handling of difficult questions"}},
}

// buildScoringPrompt creates the evaluation prompt for a formatted transcript
func buildScoringPrompt(turns []models.Turn) string {
	var sb strings.Builder

	sb.WriteString("You are an expert AI interviewer analyzing a completed interview session. Your task is to provide detailed, constructive feedback.\n\n")

	sb.WriteString("## INTERVIEW TRANSCRIPT\n")
	text := sanitizeUTF8(transcript.Format(turns))
	if len(text) > maxTranscriptChars {
		sb.WriteString(truncate(text, maxTranscriptChars))
		sb.WriteString("\n[Transcript truncated for length]")
	} else {
		sb.WriteString(text)
	}
	sb.WriteString("\n\n")

	sb.WriteString("## EVALUATION CRITERIA\n")
	sb.WriteString("Score each category below from 0 to 100. Be fair but thorough: give credit where deserved and identify genuine areas for improvement.\n\n")
	for i, cat := range rubric {
		sb.WriteString(fmt.Sprintf("%d. %s (0-100)\n", i+1, cat.name))
		for _, c := range cat.criteria {
			sb.WriteString(fmt.Sprintf("   - %s\n", c))
		}
	}

	sb.WriteString("\n## INSTRUCTIONS\n")
	sb.WriteString("- Review the entire conversation carefully\n")
	sb.WriteString("- Provide specific examples from the interview in your feedback\n")
	sb.WriteString("- Identify 3-5 genuine strengths and 3-5 specific areas for improvement\n")
	sb.WriteString("- Provide an overall assessment summary\n\n")

	sb.WriteString("Provide your evaluation in the following JSON format:\n")
	sb.WriteString("{\n")
	sb.WriteString(`  "totalScore": <0-100>,` + "\n")
	sb.WriteString(`  "categoryScores": [` + "\n")
	for i, name := range models.CategoryNames {
		sep := ","
		if i == len(models.CategoryNames)-1 {
			sep = ""
		}
		sb.WriteString(fmt.Sprintf(`    {"name": %q, "score": <0-100>, "comment": "<specific comment>"}%s`+"\n", name, sep))
	}
	sb.WriteString("  ],\n")
	sb.WriteString(`  "strengths": ["<strength>"],` + "\n")
	sb.WriteString(`  "areasForImprovement": ["<area>"],` + "\n")
	sb.WriteString(`  "finalAssessment": "<overall summary>"` + "\n")
	sb.WriteString("}\n\n")
	sb.WriteString("List categoryScores in exactly that order. Return ONLY the JSON object, no additional text.\n")

	return sb.String()
}

// evaluationSchema is the structured output contract for the scoring model
func evaluationSchema() *llm.Schema {
	names := make([]string, len(models.CategoryNames))
	copy(names, models.CategoryNames[:])

	return &llm.Schema{
		Type:     llm.TypeObject,
		Required: []string{"totalScore", "categoryScores", "strengths", "areasForImprovement", "finalAssessment"},
		Properties: map[string]*llm.Schema{
			"totalScore": {Type: llm.TypeNumber, Description: "Overall score from 0 to 100"},
			"categoryScores": {
				Type:        llm.TypeArray,
				Description: "Exactly five entries in the listed order",
				Items: &llm.Schema{
					Type:     llm.TypeObject,
					Required: []string{"name", "score", "comment"},
					Properties: map[string]*llm.Schema{
						"name":    {Type: llm.TypeString, Enum: names},
						"score":   {Type: llm.TypeNumber},
						"comment": {Type: llm.TypeString},
					},
				},
			},
			"strengths":           {Type: llm.TypeArray, Items: &llm.Schema{Type: llm.TypeString}},
			"areasForImprovement": {Type: llm.TypeArray, Items: &llm.Schema{Type: llm.TypeString}},
			"finalAssessment":     {Type: llm.TypeString},
		},
	}
}

// sanitizeUTF8 replaces invalid UTF-8 sequences with the replacement character
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "�")
}

// truncate shortens s to maxLen bytes without splitting a rune and marks the cut
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
