package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/AbeneilMagpantay/ChickThisOut-FBAutomation/internal/core"
	"github.com/AbeneilMagpantay/ChickThisOut-FBAutomation/internal/facebook"
	"github.com/AbeneilMagpantay/ChickThisOut-FBAutomation/pkg"
)

// StatsSource exposes the audit counters shown by the health endpoint.
type StatsSource interface {
	Stats(ctx context.Context) (pkg.Stats, error)
}

// Server bundles the dependencies behind the webhook endpoints. It
// implements http.Handler so it can be passed straight to
// http.ListenAndServe.
type Server struct {
	Pipeline    *core.Pipeline
	Stats       StatsSource
	VerifyToken string
	AppSecret   string
	Timeout     time.Duration // processing budget per webhook delivery
}

// NewServer constructs a Server. An empty appSecret disables signature
// checks; verifyToken must match what the webhook subscription was set up
// with.
func NewServer(pipeline *core.Pipeline, stats StatsSource, verifyToken, appSecret string) *Server {
	return &Server{
		Pipeline:    pipeline,
		Stats:       stats,
		VerifyToken: verifyToken,
		AppSecret:   appSecret,
		Timeout:     25 * time.Second,
	}
}

// ServeHTTP dispatches incoming requests based on the URL path. Minimal
// routing logic is implemented here to keep dependencies light.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/webhook" && r.Method == http.MethodGet:
		s.handleVerify(w, r)
	case r.URL.Path == "/webhook" && r.Method == http.MethodPost:
		s.handleEvents(w, r)
	case r.URL.Path == "/health" && r.Method == http.MethodGet:
		s.handleHealth(w, r)
	default:
		http.NotFound(w, r)
	}
}

// handleVerify answers the one-time subscription handshake: Facebook calls
// with hub.mode=subscribe and expects the challenge echoed back only when
// the verify token matches. Constant-time compare keeps the token from
// leaking through timing.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode == "subscribe" &&
		subtle.ConstantTimeCompare([]byte(token), []byte(s.VerifyToken)) == 1 {
		log.Printf("webhook verified")
		w.Header().Set("Content-Type", "text/plain")
		io.WriteString(w, challenge)
		return
	}
	log.Printf("webhook verification failed")
	http.Error(w, "Verification failed", http.StatusForbidden)
}

// handleEvents takes one webhook delivery, checks its signature, and runs
// the contained events through the pipeline, answering with the per-event
// outcomes.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}
	if !facebook.ValidSignature(s.AppSecret, body, r.Header.Get("X-Hub-Signature-256")) {
		log.Printf("webhook delivery with invalid signature rejected")
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	payload, err := facebook.ParseWebhookPayload(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	events := payload.Events()

	ctx, cancel := context.WithTimeout(r.Context(), s.Timeout)
	defer cancel()
	results := s.Pipeline.ProcessBatch(ctx, events)

	resp := map[string]any{
		"status":  "ok",
		"results": results,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleHealth reports liveness plus the audit counters.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":  "healthy",
		"service": "ChickThisOut Facebook Bot",
		"version": "2.0.0",
	}
	if s.Stats != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if stats, err := s.Stats.Stats(ctx); err != nil {
			log.Printf("health stats: %v", err)
		} else {
			resp["stats"] = stats
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
