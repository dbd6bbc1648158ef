package core

import (
	"log"
	"os"
	"strings"
)

// prompts.go holds the persona prompt and the framing wrapped around each
// event before it goes to the model. Keeping these in one file makes the
// bot's voice easy to tweak without touching pipeline code.

const (
	// DefaultPrompt is the built-in persona, used when no prompt file is
	// configured or the configured file cannot be read.
	DefaultPrompt = `You are a friendly customer service assistant for ChickThisOut restaurant.
Be helpful, warm, and professional. If you don't know something, say you'll have someone get back to them.`

	// commentFraming and messageFraming wrap the customer's text so the
	// model knows which surface it is answering on.
	commentFraming = "A customer left this comment on our Facebook post:\n\n\"%s\"\n\nWrite a friendly response."
	messageFraming = "A customer sent this message to our Facebook page:\n\n\"%s\"\n\nWrite a helpful response."
)

// LoadPromptTemplate reads the persona prompt from path, falling back to
// DefaultPrompt when the path is empty or unreadable. The bot must always
// have a persona to answer with.
func LoadPromptTemplate(path string) string {
	if path == "" {
		return DefaultPrompt
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("prompt file %s not readable, using built-in prompt: %v", path, err)
		return DefaultPrompt
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		log.Printf("prompt file %s is empty, using built-in prompt", path)
		return DefaultPrompt
	}
	return prompt
}
