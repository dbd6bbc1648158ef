package facebook

import (
	"fmt"
	"time"
)

// graphTimeLayout matches Graph API timestamps, which carry a zone offset
// without a colon ("2024-01-15T10:30:00+0000").
const graphTimeLayout = "2006-01-02T15:04:05-0700"

func parseGraphTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(graphTimeLayout, s)
	if err != nil {
		if t, err = time.Parse(time.RFC3339, s); err != nil {
			return time.Time{}
		}
	}
	return t
}

// From identifies the author of a comment or message.
type From struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Comment is one comment as the Graph API returns it.
type Comment struct {
	ID          string `json:"id"`
	Message     string `json:"message"`
	From        From   `json:"from"`
	CreatedTime string `json:"created_time"`
	IsHidden    bool   `json:"is_hidden"`
}

// Post is one page post, with up to a page of its comments nested in the
// same response when the fields expansion asked for them.
type Post struct {
	ID          string      `json:"id"`
	Message     string      `json:"message"`
	CreatedTime string      `json:"created_time"`
	Comments    CommentList `json:"comments"`
}

// CommentList is the paging container comments arrive in.
type CommentList struct {
	Data []Comment `json:"data"`
}

// Message is one Messenger message as the Graph API returns it.
type Message struct {
	ID          string `json:"id"`
	Message     string `json:"message"`
	From        From   `json:"from"`
	CreatedTime string `json:"created_time"`
}

// Conversation is one Messenger thread, with its most recent messages
// nested in the same response when asked for.
type Conversation struct {
	ID       string      `json:"id"`
	Messages MessageList `json:"messages"`
}

// MessageList is the paging container messages arrive in.
type MessageList struct {
	Data []Message `json:"data"`
}

// Page describes the page an access token belongs to.
type Page struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// sendResponse is the body the reply and send endpoints answer with. The
// comment endpoint sets id, the Messenger endpoint sets message_id.
type sendResponse struct {
	ID        string `json:"id"`
	MessageID string `json:"message_id"`
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// GraphError is a non-2xx answer from the Graph API.
type GraphError struct {
	Status  int
	Code    int
	Message string
}

func (e *GraphError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("facebook: %s (code %d, http %d)", e.Message, e.Code, e.Status)
	}
	return fmt.Sprintf("facebook: %s (http %d)", e.Message, e.Status)
}

// Transient reports whether retrying the same request later may succeed.
// Server errors, HTTP 429 and the Graph rate-limit codes 4, 17 and 32
// qualify; everything else (bad token, missing permission, deleted target)
// will keep failing.
func (e *GraphError) Transient() bool {
	if e.Status >= 500 || e.Status == 429 {
		return true
	}
	switch e.Code {
	case 4, 17, 32:
		return true
	}
	return false
}
