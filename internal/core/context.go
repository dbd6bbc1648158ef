package core

import (
	"context"
	"log"

	"github.com/AbeneilMagpantay/ChickThisOut-FBAutomation/pkg"
)

// ContextSource retrieves the recent turns around an event: the other
// comments on the same post, or the last messages of the conversation.
// Implemented by the Graph API client.
type ContextSource interface {
	ConversationTurns(ctx context.Context, ev pkg.Event, limit int) ([]pkg.ConversationTurn, error)
}

// Assembler fetches the history used to ground a reply. A fetch failure
// degrades to an empty context instead of blocking the reply; a generic
// answer beats no answer.
type Assembler struct {
	Source ContextSource
	Turns  int
}

// NewAssembler builds an Assembler keeping up to turns of history per
// event.
func NewAssembler(source ContextSource, turns int) *Assembler {
	if turns <= 0 {
		turns = 5
	}
	return &Assembler{Source: source, Turns: turns}
}

// Fetch returns recent turns for the event, oldest first. Empty is a valid
// context, both when the thread has no history and when fetching it failed.
func (a *Assembler) Fetch(ctx context.Context, ev pkg.Event) []pkg.ConversationTurn {
	if a.Source == nil {
		return nil
	}
	turns, err := a.Source.ConversationTurns(ctx, ev, a.Turns)
	if err != nil {
		log.Printf("context fetch for %s %s failed, replying without history: %v", ev.Kind, ev.ID, err)
		return nil
	}
	return turns
}
