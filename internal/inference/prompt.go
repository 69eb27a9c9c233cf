package inference

import (
	"strings"

	"github.com/roach88/lifeline/internal/api"
)

// Disclaimer ends every reply.
const Disclaimer = "\u26a0\ufe0f This information is for general first-aid and education only. " +
	"Seek professional medical care if symptoms worsen or persist."

// SystemPrompt sets the assistant persona and its limits.
const SystemPrompt = "You are MedSense AI, a calm, compassionate, medically informed virtual assistant. " +
	"Your job is to help users manage minor health incidents and understand emergency procedures. " +
	"You must stay strictly within safe first-aid guidance. " +
	"NEVER give prescriptions, diagnoses, or medication dosages. " +
	"If the user's situation sounds severe or life-threatening, advise them to call emergency services. " +
	"Use friendly, human-like language. " +
	"Always end each reply with this disclaimer:\n'" + Disclaimer + "'"

// ContextMessages is how much prior history a provider sees.
const ContextMessages = 5

// BuildMessages returns the system prompt, the tail of history, and the new
// user message.
func BuildMessages(history []api.ChatMessage, message string) []api.ChatMessage {
	if len(history) > ContextMessages {
		history = history[len(history)-ContextMessages:]
	}
	out := make([]api.ChatMessage, 0, len(history)+2)
	out = append(out, api.ChatMessage{Role: api.ChatRoleSystem, Content: SystemPrompt})
	out = append(out, history...)
	out = append(out, api.ChatMessage{Role: api.ChatRoleUser, Content: message})
	return out
}

// WithDisclaimer appends the disclaimer unless reply already ends with it.
func WithDisclaimer(reply string) string {
	reply = strings.TrimSpace(reply)
	if strings.Contains(reply, strings.TrimPrefix(Disclaimer, "\u26a0\ufe0f ")) {
		return reply
	}
	if reply == "" {
		return Disclaimer
	}
	return reply + "\n\n" + Disclaimer
}
