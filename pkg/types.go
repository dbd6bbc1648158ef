package pkg

import "time"

// EventKind distinguishes the two kinds of inbound events the bot answers:
// comments left on page posts and direct messages sent to the page.
type EventKind string

const (
	KindComment EventKind = "comment"
	KindMessage EventKind = "message"
)

// Outcome is the state recorded for a processed event. OutcomePending is the
// transitional state written when the pipeline claims an event; it is
// replaced exactly once by one of the terminal outcomes.
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeReplied Outcome = "replied"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// Event is one inbound unit of work: a comment or a message that may need a
// reply. ID is the platform-assigned identifier and the dedup key, unique
// per kind. ThreadID holds the post ID for comments and the conversation ID
// for messages.
type Event struct {
	ID         string    `json:"id"`
	Kind       EventKind `json:"kind"`
	ThreadID   string    `json:"thread_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name,omitempty"`
	Text       string    `json:"text"`
	Hidden     bool      `json:"hidden,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// ProcessedRecord is the persisted proof that an event was handled. One row
// exists per (EventID, Kind); it is created when the pipeline commits to
// handling the event and receives its terminal outcome exactly once. Rows
// with a terminal outcome are never mutated or deleted.
type ProcessedRecord struct {
	EventID     string    `json:"event_id"`
	Kind        EventKind `json:"kind"`
	Outcome     Outcome   `json:"outcome"`
	ReplyID     string    `json:"reply_id,omitempty"`
	Degraded    bool      `json:"degraded,omitempty"`
	Note        string    `json:"note,omitempty"`
	SenderID    string    `json:"sender_id,omitempty"`
	SenderName  string    `json:"sender_name,omitempty"`
	Text        string    `json:"text,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}

// ConversationTurn is one historical comment or message used to ground a
// generated reply. Turns are immutable once fetched and ordered oldest first.
type ConversationTurn struct {
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name,omitempty"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	FromPage   bool      `json:"from_page"`
}

// EventResult is the per-event outcome returned by the batch entry point.
// An empty Outcome means the event was left unprocessed (abandoned on
// timeout or storage failure) and will be seen again on a later trigger.
type EventResult struct {
	EventID  string    `json:"event_id"`
	Kind     EventKind `json:"kind"`
	Outcome  Outcome   `json:"outcome,omitempty"`
	ReplyID  string    `json:"reply_id,omitempty"`
	Degraded bool      `json:"degraded,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Stats summarises the audit log for startup logging and the health endpoint.
type Stats struct {
	CommentsProcessed int64 `json:"total_comments_processed"`
	CommentsReplied   int64 `json:"comments_replied"`
	MessagesProcessed int64 `json:"total_messages_processed"`
	MessagesReplied   int64 `json:"messages_replied"`
}
