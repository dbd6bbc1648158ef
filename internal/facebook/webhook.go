package facebook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/AbeneilMagpantay/ChickThisOut-FBAutomation/pkg"
)

// WebhookPayload is the body Facebook posts to a page webhook subscription.
// Comment activity arrives under entry.changes, Messenger activity under
// entry.messaging.
type WebhookPayload struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

// WebhookEntry is one page's worth of notifications in a delivery.
type WebhookEntry struct {
	ID        string           `json:"id"`
	Time      int64            `json:"time"`
	Changes   []WebhookChange  `json:"changes"`
	Messaging []MessagingEvent `json:"messaging"`
}

// WebhookChange is one feed notification (comment, reaction, post edit).
type WebhookChange struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

// ChangeValue carries the fields of a feed change. Item and Verb say what
// happened; only item "comment" with verb "add" is a new comment.
type ChangeValue struct {
	Item        string `json:"item"`
	Verb        string `json:"verb"`
	CommentID   string `json:"comment_id"`
	PostID      string `json:"post_id"`
	Message     string `json:"message"`
	From        From   `json:"from"`
	CreatedTime int64  `json:"created_time"`
}

// MessagingEvent is one Messenger notification.
type MessagingEvent struct {
	Sender struct {
		ID string `json:"id"`
	} `json:"sender"`
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	Timestamp int64 `json:"timestamp"`
	Message   struct {
		MID    string `json:"mid"`
		Text   string `json:"text"`
		IsEcho bool   `json:"is_echo"`
	} `json:"message"`
}

// ParseWebhookPayload decodes the JSON body Facebook posted.
func ParseWebhookPayload(body []byte) (*WebhookPayload, error) {
	var p WebhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("parse webhook payload: %w", err)
	}
	return &p, nil
}

// Events flattens a payload into pipeline events. Only new comments (feed
// changes with item "comment" and verb "add") and non-echo messages with a
// message ID are kept; edits, deletes, reactions, delivery receipts and the
// page's own echoes are dropped here. Feed change times are epoch seconds,
// Messenger times epoch milliseconds.
func (p *WebhookPayload) Events() []pkg.Event {
	if p.Object != "page" {
		return nil
	}
	var events []pkg.Event
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			if change.Field != "feed" {
				continue
			}
			v := change.Value
			if v.Item != "comment" || v.Verb != "add" || v.CommentID == "" {
				continue
			}
			events = append(events, pkg.Event{
				ID:         v.CommentID,
				Kind:       pkg.KindComment,
				ThreadID:   v.PostID,
				SenderID:   v.From.ID,
				SenderName: v.From.Name,
				Text:       v.Message,
				Timestamp:  time.Unix(v.CreatedTime, 0),
			})
		}
		for _, m := range entry.Messaging {
			if m.Message.IsEcho || m.Message.MID == "" {
				continue
			}
			events = append(events, pkg.Event{
				ID:        m.Message.MID,
				Kind:      pkg.KindMessage,
				SenderID:  m.Sender.ID,
				Text:      m.Message.Text,
				Timestamp: time.UnixMilli(m.Timestamp),
			})
		}
	}
	return events
}

// ValidSignature checks the X-Hub-Signature-256 header against the HMAC of
// the raw request body. An empty appSecret disables verification, for local
// runs without the app secret configured.
func ValidSignature(appSecret string, body []byte, header string) bool {
	if appSecret == "" {
		return true
	}
	if header == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	received := strings.TrimPrefix(header, "sha256=")
	return hmac.Equal([]byte(expected), []byte(received))
}
