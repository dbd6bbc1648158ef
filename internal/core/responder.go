package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/AbeneilMagpantay/ChickThisOut-FBAutomation/internal/llm"
	"github.com/AbeneilMagpantay/ChickThisOut-FBAutomation/pkg"
)

// FallbackReply goes out when the model cannot produce an answer. A generic
// acknowledgment still tells the customer they were heard.
const FallbackReply = "Thanks for reaching out! We'll get back to you as soon as we can. 😊"

// Responder renders the prompt for an event and asks the model for a
// reply. Model failures resolve to FallbackReply rather than propagating;
// the only error Generate returns is ErrEmptyInput.
type Responder struct {
	LLM        llm.Client
	Prompt     string        // persona template, loaded once at startup
	CharBudget int           // cap on rendered history, oldest turns dropped first
	RetryDelay time.Duration // wait before the single retry after a throttle
}

// NewResponder builds a Responder with the given persona. An empty prompt
// selects the built-in one.
func NewResponder(client llm.Client, prompt string) *Responder {
	if prompt == "" {
		prompt = DefaultPrompt
	}
	return &Responder{
		LLM:        client,
		Prompt:     prompt,
		CharBudget: 2000,
		RetryDelay: 2 * time.Second,
	}
}

// Generate produces the reply text for ev grounded on turns. The bool
// reports whether the fallback was used, so the audit log can tell a real
// answer from a degraded one.
func (r *Responder) Generate(ctx context.Context, turns []pkg.ConversationTurn, ev pkg.Event) (string, bool, error) {
	if strings.TrimSpace(ev.Text) == "" {
		return "", false, ErrEmptyInput
	}
	text, err := r.complete(ctx, r.render(turns, ev))
	if err != nil {
		log.Printf("model call for %s %s failed, using fallback reply: %v", ev.Kind, ev.ID, err)
		return FallbackReply, true, nil
	}
	return text, false, nil
}

// complete calls the model, retrying exactly once after a short delay when
// it signals throttling. The pipeline must never sit in a retry loop
// against a rate-limited backend.
func (r *Responder) complete(ctx context.Context, prompt string) (string, error) {
	text, err := r.LLM.Complete(ctx, prompt)
	if err != nil {
		if !errors.Is(err, llm.ErrThrottled) {
			return "", err
		}
		select {
		case <-time.After(r.RetryDelay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		if text, err = r.LLM.Complete(ctx, prompt); err != nil {
			return "", err
		}
	}
	text = cleanReply(text)
	if text == "" {
		return "", llm.ErrEmpty
	}
	return text, nil
}

// render assembles the full prompt: persona, recent history bounded by the
// char budget, then the event text framed by kind.
func (r *Responder) render(turns []pkg.ConversationTurn, ev pkg.Event) string {
	framing := messageFraming
	if ev.Kind == pkg.KindComment {
		framing = commentFraming
	}
	user := fmt.Sprintf(framing, ev.Text)
	if history := r.renderHistory(turns); history != "" {
		user = "Previous context:\n" + history + "\n\n" + user
	}
	return r.Prompt + "\n\n---\n\n" + user
}

// renderHistory formats turns oldest first as "Name: text" lines. When the
// block exceeds the char budget the oldest lines go first; the newest
// turns matter most for grounding the reply.
func (r *Responder) renderHistory(turns []pkg.ConversationTurn) string {
	if len(turns) == 0 {
		return ""
	}
	lines := make([]string, 0, len(turns))
	total := 0
	for _, t := range turns {
		if t.Text == "" {
			continue
		}
		name := t.SenderName
		if name == "" {
			name = "Unknown"
		}
		line := name + ": " + t.Text
		lines = append(lines, line)
		total += len(line) + 1
	}
	if r.CharBudget > 0 {
		for len(lines) > 0 && total > r.CharBudget {
			total -= len(lines[0]) + 1
			lines = lines[1:]
		}
	}
	return strings.Join(lines, "\n")
}

// cleanReply trims whitespace and the quotes models sometimes wrap a short
// reply in.
func cleanReply(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}
