package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/AbeneilMagpantay/ChickThisOut-FBAutomation/internal/config"
	"github.com/AbeneilMagpantay/ChickThisOut-FBAutomation/internal/core"
	"github.com/AbeneilMagpantay/ChickThisOut-FBAutomation/internal/db"
	"github.com/AbeneilMagpantay/ChickThisOut-FBAutomation/internal/facebook"
	httpserver "github.com/AbeneilMagpantay/ChickThisOut-FBAutomation/internal/http"
	"github.com/AbeneilMagpantay/ChickThisOut-FBAutomation/internal/llm"
	"github.com/AbeneilMagpantay/ChickThisOut-FBAutomation/internal/notify"
	"github.com/AbeneilMagpantay/ChickThisOut-FBAutomation/pkg"
)

// storage is what the bot needs from either backing store.
type storage interface {
	core.Store
	core.LeaseStore
	core.ActivityLog
	Stats(ctx context.Context) (pkg.Stats, error)
}

func main() {
	log.Printf("🍗 ChickThisOut Facebook automation bot starting")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("%v (copy .env.example to .env and fill in your keys)", err)
	}
	log.Printf("AI provider: %s, poll interval: %s, workers: %d",
		cfg.AIProvider, cfg.CheckInterval, cfg.WorkerCount)

	// Postgres when configured, the local bolt file otherwise. A reachable
	// store is non-negotiable: without dedup records the bot would answer
	// the same comment on every sweep.
	var store storage
	var boltDB *db.BoltStore
	if cfg.DatabaseURL != "" {
		repo, err := openPostgres(cfg.DatabaseURL)
		if err != nil {
			log.Printf("⚠️  postgres unavailable, falling back to %s: %v", cfg.BoltPath, err)
		} else {
			store = repo
			log.Printf("✓ database ready (postgres)")
		}
	}
	if store == nil {
		var err error
		boltDB, err = db.NewBoltStore(cfg.BoltPath)
		if err != nil {
			log.Fatalf("failed to open local store %s: %v", cfg.BoltPath, err)
		}
		store = boltDB
		log.Printf("✓ database ready (%s)", cfg.BoltPath)
	}

	llmClient, err := newLLMClient(cfg)
	if err != nil {
		log.Fatalf("failed to initialise %s client: %v", cfg.AIProvider, err)
	}

	fb := facebook.NewClient(cfg.GraphAPIURL, cfg.PageID, cfg.PageToken)
	vctx, vcancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := fb.VerifyToken(vctx); err != nil {
		log.Fatalf("❌ Facebook token verification failed (check FACEBOOK_PAGE_ACCESS_TOKEN in .env): %v", err)
	}
	vcancel()
	log.Printf("✓ Facebook API connected")

	// The AI probe is advisory: a broken model key still leaves the bot
	// able to answer with the fallback text.
	probeAI(llmClient, cfg.AIProvider)

	prompt := core.LoadPromptTemplate(cfg.PromptPath)

	assembler := core.NewAssembler(fb, cfg.ContextTurns)
	responder := core.NewResponder(llmClient, prompt)
	responder.CharBudget = cfg.ContextCharBudget
	pipeline := core.NewPipeline(fb.PageID, store, assembler, responder, core.NewDispatcher(fb))
	pipeline.Workers = cfg.WorkerCount
	pipeline.MaxAttempts = cfg.DispatchRetries
	pipeline.Checker = fb

	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Printf("⚠️  telegram alerts disabled: %v", err)
		} else {
			pipeline.Notifier = tg
			log.Printf("✓ telegram alerts enabled")
		}
	}

	sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
	if stats, err := store.Stats(sctx); err == nil {
		log.Printf("📊 historical stats: %d comments, %d messages replied",
			stats.CommentsReplied, stats.MessagesReplied)
	}
	scancel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if cfg.PollEnabled {
		sweeper := core.NewSweeper(fb, pipeline, store)
		sweeper.Activity = store
		sweeper.Interval = cfg.CheckInterval
		sweeper.Timeout = cfg.SweepTimeout
		go sweeper.Run(ctx)
	}

	server := httpserver.NewServer(pipeline, store, cfg.VerifyToken, cfg.AppSecret)
	server.Timeout = cfg.WebhookTimeout
	httpSrv := &http.Server{Addr: ":" + cfg.Port, Handler: server}
	go func() {
		log.Printf("🚀 listening on :%s", cfg.Port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-sigChan
	log.Printf("shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	if boltDB != nil {
		boltDB.Close()
	}
	log.Printf("bot stopped, goodbye 👋")
}

// openPostgres connects, pings and migrates, returning a ready repository.
func openPostgres(dbURL string) (*db.Repository, error) {
	conn, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	if err := db.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return db.NewRepository(conn), nil
}

func newLLMClient(cfg *config.Config) (llm.Client, error) {
	if cfg.AIProvider == "openai" {
		return llm.NewOpenAIClient(cfg.OpenAIKey, cfg.OpenAIModel), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return llm.NewGeminiClient(ctx, cfg.GeminiKey, cfg.GeminiModel)
}

func probeAI(client llm.Client, provider string) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if _, err := client.Complete(ctx, "Hello, testing!"); err != nil {
		log.Printf("⚠️  AI connection test failed, replies will use the fallback until it recovers: %v", err)
		return
	}
	log.Printf("✓ %s connected", provider)
}
