package voice

import (
	"fmt"
	"strings"
)

// ProviderSettings selects a vendor component of the voice pipeline
type ProviderSettings struct {
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
	VoiceID  string `json:"voiceId,omitempty"`
	Language string `json:"language,omitempty"`
}

// AssistantConfig is what a call is started with
type AssistantConfig struct {
	Name           string           `json:"name"`
	FirstMessage   string           `json:"firstMessage"`
	SystemPrompt   string           `json:"systemPrompt"`
	EndCallMessage string           `json:"endCallMessage,omitempty"`
	Transcriber    ProviderSettings `json:"transcriber"`
	Voice          ProviderSettings `json:"voice"`
	Model          ProviderSettings `json:"model"`
}

// ClosingLine is the sign-off the interviewer is told to end an assessment with
const ClosingLine = "Thank you so much for your time today. We'll review your responses and get back to you soon. Have a great day! Goodbye."

var defaultTranscriber = ProviderSettings{Provider: "deepgram", Model: "nova-2", Language: "en"}

var defaultVoice = ProviderSettings{Provider: "11labs", VoiceID: "sarah"}

// AssessmentConfig builds the interviewer assistant for a candidate call.
// Questions are asked once each, in the given order.
func AssessmentConfig(questions []string) AssistantConfig {
	var sb strings.Builder

	sb.WriteString("You are a professional job interviewer conducting a real-time voice interview with a candidate.\n\n")
	sb.WriteString("INTERVIEW QUESTIONS (ASK ONLY THESE, IN ORDER):\n")
	for _, q := range questions {
		sb.WriteString(fmt.Sprintf("- %s\n", q))
	}

	sb.WriteString("\nRULES:\n")
	sb.WriteString("1. Ask ONLY the questions listed above, do not add extra questions\n")
	sb.WriteString("2. Ask them ONE AT A TIME in the exact order shown\n")
	sb.WriteString("3. Wait for the candidate's complete answer and acknowledge it briefly\n")
	sb.WriteString("4. If a response is very unclear, you may ask ONE brief clarification\n")
	sb.WriteString("5. After the LAST question is answered, conclude the interview immediately\n\n")

	sb.WriteString("CONCLUDING THE INTERVIEW:\n")
	sb.WriteString(fmt.Sprintf("Say: %q\n", ClosingLine))
	sb.WriteString("Then STOP talking.\n\n")

	sb.WriteString("Keep responses SHORT, this is voice and not text. Be professional but warm. ")
	sb.WriteString("If the candidate is silent, ask if they need more time.\n")

	return AssistantConfig{
		Name:         "Interviewer",
		FirstMessage: "Hello! Thank you for taking the time to speak with me today. I'm excited to learn more about you and your experience.",
		SystemPrompt: sb.String(),
		Transcriber:  defaultTranscriber,
		Voice:        defaultVoice,
		Model:        ProviderSettings{Provider: "openai", Model: "gpt-4"},
	}
}

// SetupQuestions is the fixed script the setup assistant walks through
var SetupQuestions = []string{
	"What role are you preparing for?",
	"What's the experience level for the job role?",
	"What technologies do you want to focus on?",
	"What type of interview questions do you prefer?",
	"How many questions would you like?",
	"Please provide the email addresses of candidates who will take this interview. You can provide multiple emails separated by commas.",
}

// SetupConfig builds the assistant that collects interview parameters
// from an HR user.
func SetupConfig(userName string) AssistantConfig {
	if strings.TrimSpace(userName) == "" {
		userName = "there"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("You are a friendly interview prep assistant helping %s create a personalized interview session.\n\n", userName))
	sb.WriteString(fmt.Sprintf("Ask these %d questions ONE BY ONE and wait for a clear answer before moving to the next:\n", len(SetupQuestions)))
	for i, q := range SetupQuestions {
		sb.WriteString(fmt.Sprintf("%c) %q\n", 'a'+i, q))
	}
	sb.WriteString("\nAfter collecting ALL answers clearly, say:\n")
	sb.WriteString(fmt.Sprintf("%q\n\n", confirmationLine(userName)))
	sb.WriteString("After saying goodbye, end the call immediately.\n")
	sb.WriteString("Be conversational and patient. For the email question, accept both single and multiple emails.\n")

	return AssistantConfig{
		Name:           "Interview Prep Assistant",
		FirstMessage:   fmt.Sprintf("Hey %s! I'm excited to help you prepare for your interview. I'll ask you just %d quick questions to create the perfect prep session for you. Ready? Let's start - %s", userName, len(SetupQuestions), strings.ToLower(SetupQuestions[0][:1])+SetupQuestions[0][1:]),
		SystemPrompt:   sb.String(),
		EndCallMessage: "Your interview prep session is being generated. Goodbye!",
		Transcriber:    defaultTranscriber,
		Voice:          defaultVoice,
		Model:          ProviderSettings{Provider: "openai", Model: "gpt-4o-mini"},
	}
}

func confirmationLine(userName string) string {
	return fmt.Sprintf("Perfect! I have all the information I need. Your personalized interview prep session will be ready in just a moment. We'll send unique session codes to each candidate's email shortly. Thank you %s, and good luck! Goodbye!", userName)
}
