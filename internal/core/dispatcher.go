package core

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/AbeneilMagpantay/ChickThisOut-FBAutomation/pkg"
)

// ReplySink posts generated text back to the platform. Implemented by the
// Graph API client.
type ReplySink interface {
	ReplyToComment(ctx context.Context, commentID, text string) (string, error)
	SendMessage(ctx context.Context, recipientID, text string) (string, error)
}

// Dispatcher routes a reply to the endpoint matching the event kind and
// classifies failures into retryable and terminal. It posts at most one
// reply per call; not sending twice for the same event is the pipeline's
// dedup gate, not the dispatcher's.
type Dispatcher struct {
	Sink ReplySink
}

// NewDispatcher wraps a sink.
func NewDispatcher(sink ReplySink) *Dispatcher {
	return &Dispatcher{Sink: sink}
}

// Dispatch posts text as the answer to ev and returns the platform ID of
// the posted reply. Comments are answered in their thread, messages to
// their sender. Failures come back as *DispatchError.
func (d *Dispatcher) Dispatch(ctx context.Context, ev pkg.Event, text string) (string, error) {
	var replyID string
	var err error
	switch ev.Kind {
	case pkg.KindComment:
		replyID, err = d.Sink.ReplyToComment(ctx, ev.ID, text)
	case pkg.KindMessage:
		replyID, err = d.Sink.SendMessage(ctx, ev.SenderID, text)
	default:
		return "", &DispatchError{Err: fmt.Errorf("unknown event kind %q", ev.Kind)}
	}
	if err != nil {
		return "", classifyDispatch(err)
	}
	return replyID, nil
}

// classifyDispatch decides whether a send failure is worth retrying.
// Errors that know their own class are asked; network-level failures are
// assumed to clear up; everything else is permanent.
func classifyDispatch(err error) *DispatchError {
	var de *DispatchError
	if errors.As(err, &de) {
		return de
	}
	transient := false
	var classed interface{ Transient() bool }
	var netErr net.Error
	switch {
	case errors.As(err, &classed):
		transient = classed.Transient()
	case errors.As(err, &netErr), errors.Is(err, context.DeadlineExceeded):
		transient = true
	}
	return &DispatchError{Transient: transient, Err: err}
}
