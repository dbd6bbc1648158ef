package facebook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/AbeneilMagpantay/ChickThisOut-FBAutomation/internal/core"
	"github.com/AbeneilMagpantay/ChickThisOut-FBAutomation/pkg"
)

// DefaultBaseURL is the Graph API version every endpoint path is joined to.
const DefaultBaseURL = "https://graph.facebook.com/v18.0"

// Client wraps the Graph API endpoints the bot needs: reading comments on
// page posts, reading Messenger conversations, and posting replies. Every
// call authenticates with the page access token as a query parameter, the
// way page tokens are meant to be used.
type Client struct {
	BaseURL     string
	PageID      string
	AccessToken string
	HTTPClient  *http.Client
}

// NewClient constructs a Graph API client for one page. An empty baseURL
// selects the production Graph endpoint.
func NewClient(baseURL, pageID, accessToken string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:     baseURL,
		PageID:      pageID,
		AccessToken: accessToken,
		HTTPClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Ensure Client satisfies the pipeline ports.
var (
	_ core.SweepSource   = (*Client)(nil)
	_ core.ContextSource = (*Client)(nil)
	_ core.ReplySink     = (*Client)(nil)
	_ core.ReplyChecker  = (*Client)(nil)
)

// do issues one Graph API request. Non-2xx answers are returned as a
// *GraphError carrying Facebook's own error message when the body has one.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("access_token", c.AccessToken)

	var reqBody *bytes.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(buf)
	}

	u := c.BaseURL + "/" + path + "?" + params.Encode()
	var req *http.Request
	var err error
	if reqBody != nil {
		req, err = http.NewRequestWithContext(ctx, method, u, reqBody)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, u, nil)
	}
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		ge := &GraphError{Status: resp.StatusCode, Message: resp.Status}
		var env errorEnvelope
		if json.NewDecoder(resp.Body).Decode(&env) == nil && env.Error.Message != "" {
			ge.Code = env.Error.Code
			ge.Message = env.Error.Message
		}
		return ge
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// RecentPosts lists the page's latest posts with up to 100 comments nested
// in the same response.
func (c *Client) RecentPosts(ctx context.Context, limit int) ([]Post, error) {
	params := url.Values{
		"fields": {"id,message,created_time,comments.limit(100){id,message,from,created_time,is_hidden}"},
		"limit":  {strconv.Itoa(limit)},
	}
	var res struct {
		Data []Post `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, c.PageID+"/posts", params, nil, &res); err != nil {
		return nil, err
	}
	return res.Data, nil
}

// PostComments lists comments on a post. The stream filter flattens nested
// reply threads into the same list.
func (c *Client) PostComments(ctx context.Context, postID string) ([]Comment, error) {
	params := url.Values{
		"fields": {"id,message,from,created_time,is_hidden"},
		"limit":  {"100"},
		"filter": {"stream"},
	}
	var res struct {
		Data []Comment `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, postID+"/comments", params, nil, &res); err != nil {
		return nil, err
	}
	return res.Data, nil
}

// CommentReplies lists the direct replies under one comment.
func (c *Client) CommentReplies(ctx context.Context, commentID string) ([]Comment, error) {
	params := url.Values{
		"fields": {"id,message,from,created_time"},
	}
	var res struct {
		Data []Comment `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, commentID+"/comments", params, nil, &res); err != nil {
		return nil, err
	}
	return res.Data, nil
}

// Conversations lists the page's Messenger threads with their most recent
// messages nested in the same response.
func (c *Client) Conversations(ctx context.Context, limit int) ([]Conversation, error) {
	params := url.Values{
		"fields": {"id,messages.limit(10){id,message,from,created_time}"},
		"limit":  {strconv.Itoa(limit)},
	}
	var res struct {
		Data []Conversation `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, c.PageID+"/conversations", params, nil, &res); err != nil {
		return nil, err
	}
	return res.Data, nil
}

// ConversationMessages lists messages in a thread, newest first.
func (c *Client) ConversationMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	params := url.Values{
		"fields": {"id,message,from,created_time"},
		"limit":  {strconv.Itoa(limit)},
	}
	var res struct {
		Data []Message `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, conversationID+"/messages", params, nil, &res); err != nil {
		return nil, err
	}
	return res.Data, nil
}

// ReplyToComment posts text as a threaded reply under a comment and returns
// the new comment's ID.
func (c *Client) ReplyToComment(ctx context.Context, commentID, text string) (string, error) {
	var res sendResponse
	body := map[string]string{"message": text}
	if err := c.do(ctx, http.MethodPost, commentID+"/comments", nil, body, &res); err != nil {
		return "", err
	}
	return res.ID, nil
}

// SendMessage sends text to a user as the page. The RESPONSE messaging type
// keeps the send inside the platform's reply-window rules.
func (c *Client) SendMessage(ctx context.Context, recipientID, text string) (string, error) {
	var res sendResponse
	body := map[string]any{
		"recipient":      map[string]string{"id": recipientID},
		"message":        map[string]string{"text": text},
		"messaging_type": "RESPONSE",
	}
	if err := c.do(ctx, http.MethodPost, c.PageID+"/messages", nil, body, &res); err != nil {
		return "", err
	}
	if res.MessageID != "" {
		return res.MessageID, nil
	}
	return res.ID, nil
}

// Me returns the page the access token belongs to.
func (c *Client) Me(ctx context.Context) (*Page, error) {
	params := url.Values{"fields": {"id,name"}}
	var page Page
	if err := c.do(ctx, http.MethodGet, "me", params, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// VerifyToken confirms the access token works by asking which page it
// belongs to. If the configured page ID does not match the token's page the
// client adopts the token's ID, since the self-comment filter and every
// page-scoped endpoint depend on it being right.
func (c *Client) VerifyToken(ctx context.Context) error {
	page, err := c.Me(ctx)
	if err != nil {
		return fmt.Errorf("verify token: %w", err)
	}
	if c.PageID != page.ID {
		log.Printf("⚠️  page ID mismatch: configured %q but token belongs to %q, using the token's page ID", c.PageID, page.ID)
		c.PageID = page.ID
	}
	log.Printf("token verified for page %s (ID %s)", page.Name, page.ID)
	return nil
}

// CommentEvents lists the comments on recent posts as pipeline events. A
// failed comment fetch for one post skips that post rather than losing the
// whole sweep.
func (c *Client) CommentEvents(ctx context.Context) ([]pkg.Event, error) {
	posts, err := c.RecentPosts(ctx, 10)
	if err != nil {
		return nil, err
	}
	var events []pkg.Event
	for _, post := range posts {
		comments := post.Comments.Data
		if len(comments) == 0 {
			comments, err = c.PostComments(ctx, post.ID)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				log.Printf("facebook: comments for post %s: %v", post.ID, err)
				continue
			}
		}
		for _, cm := range comments {
			events = append(events, commentEvent(post.ID, cm))
		}
	}
	return events, nil
}

// MessageEvents lists the newest customer message of each recent
// conversation as pipeline events. Conversations where every recent message
// came from the page produce nothing.
func (c *Client) MessageEvents(ctx context.Context) ([]pkg.Event, error) {
	convs, err := c.Conversations(ctx, 25)
	if err != nil {
		return nil, err
	}
	var events []pkg.Event
	for _, conv := range convs {
		messages := conv.Messages.Data
		if len(messages) == 0 {
			messages, err = c.ConversationMessages(ctx, conv.ID, 10)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				log.Printf("facebook: messages for conversation %s: %v", conv.ID, err)
				continue
			}
		}
		// Newest first; the first message not sent by the page is the one
		// to answer. Anything older was answered or superseded.
		for _, m := range messages {
			if m.From.ID == c.PageID {
				continue
			}
			events = append(events, messageEvent(conv.ID, m))
			break
		}
	}
	return events, nil
}

// ConversationTurns returns recent history for the event's thread, oldest
// first and capped at limit. Comment context is the other comments on the
// same post; message context is the last turns of the conversation. The
// event itself is excluded, the caller already has its text.
func (c *Client) ConversationTurns(ctx context.Context, ev pkg.Event, limit int) ([]pkg.ConversationTurn, error) {
	if ev.ThreadID == "" || limit <= 0 {
		return nil, nil
	}
	var turns []pkg.ConversationTurn
	switch ev.Kind {
	case pkg.KindComment:
		comments, err := c.PostComments(ctx, ev.ThreadID)
		if err != nil {
			return nil, err
		}
		for _, cm := range comments {
			if cm.ID == ev.ID || cm.Message == "" {
				continue
			}
			turns = append(turns, pkg.ConversationTurn{
				SenderID:   cm.From.ID,
				SenderName: cm.From.Name,
				Text:       cm.Message,
				Timestamp:  parseGraphTime(cm.CreatedTime),
				FromPage:   cm.From.ID == c.PageID,
			})
		}
	case pkg.KindMessage:
		messages, err := c.ConversationMessages(ctx, ev.ThreadID, limit+1)
		if err != nil {
			return nil, err
		}
		for _, m := range messages {
			if m.ID == ev.ID || m.Message == "" {
				continue
			}
			turns = append(turns, pkg.ConversationTurn{
				SenderID:   m.From.ID,
				SenderName: m.From.Name,
				Text:       m.Message,
				Timestamp:  parseGraphTime(m.CreatedTime),
				FromPage:   m.From.ID == c.PageID,
			})
		}
	}
	sort.SliceStable(turns, func(i, j int) bool {
		return turns[i].Timestamp.Before(turns[j].Timestamp)
	})
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns, nil
}

// PriorReply reports whether the page already answered the event outside of
// this process, for example a human replying from the page inbox while the
// bot was down. Only comments can be checked this way; for messages the
// newest-customer-message selection already covers it.
func (c *Client) PriorReply(ctx context.Context, ev pkg.Event) (string, bool, error) {
	if ev.Kind != pkg.KindComment {
		return "", false, nil
	}
	replies, err := c.CommentReplies(ctx, ev.ID)
	if err != nil {
		return "", false, err
	}
	for _, r := range replies {
		if r.From.ID == c.PageID {
			return r.ID, true, nil
		}
	}
	return "", false, nil
}

func commentEvent(postID string, cm Comment) pkg.Event {
	return pkg.Event{
		ID:         cm.ID,
		Kind:       pkg.KindComment,
		ThreadID:   postID,
		SenderID:   cm.From.ID,
		SenderName: cm.From.Name,
		Text:       cm.Message,
		Hidden:     cm.IsHidden,
		Timestamp:  parseGraphTime(cm.CreatedTime),
	}
}

func messageEvent(conversationID string, m Message) pkg.Event {
	return pkg.Event{
		ID:         m.ID,
		Kind:       pkg.KindMessage,
		ThreadID:   conversationID,
		SenderID:   m.From.ID,
		SenderName: m.From.Name,
		Text:       m.Message,
		Timestamp:  parseGraphTime(m.CreatedTime),
	}
}
