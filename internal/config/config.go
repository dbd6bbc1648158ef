package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Default Graph API version the page token was issued against.
const DefaultGraphAPIURL = "https://graph.facebook.com/v18.0"

// Config holds everything the bot reads from the environment. Values come
// from a .env file when present, real environment variables otherwise, with
// the defaults below filling the gaps.
type Config struct {
	// Facebook
	PageID      string
	PageToken   string
	AppSecret   string
	VerifyToken string
	GraphAPIURL string

	// AI backend
	AIProvider  string // "gemini" or "openai"
	GeminiKey   string
	GeminiModel string
	OpenAIKey   string
	OpenAIModel string

	// Persistence: Postgres when DatabaseURL is set, a local bbolt file
	// otherwise.
	DatabaseURL string
	BoltPath    string

	// Server / scheduler
	Port           string
	PollEnabled    bool
	CheckInterval  time.Duration
	SweepTimeout   time.Duration
	WebhookTimeout time.Duration

	// Pipeline tuning
	WorkerCount       int
	DispatchRetries   int
	ContextTurns      int
	ContextCharBudget int
	PromptPath        string

	// Operator alerts (disabled when the token is empty)
	TelegramToken  string
	TelegramChatID string
}

// Load reads the .env file if one exists, then assembles the configuration
// from environment variables and defaults. It does not validate; call
// Validate once logging is up so the operator sees every missing key at once.
func Load() *Config {
	godotenv.Load()

	cfg := &Config{
		PageID:      os.Getenv("FACEBOOK_PAGE_ID"),
		PageToken:   os.Getenv("FACEBOOK_PAGE_ACCESS_TOKEN"),
		AppSecret:   os.Getenv("FACEBOOK_APP_SECRET"),
		VerifyToken: getenvDefault("FACEBOOK_VERIFY_TOKEN", "chickthisout_verify_2024"),
		GraphAPIURL: getenvDefault("FACEBOOK_GRAPH_API_URL", DefaultGraphAPIURL),

		AIProvider:  strings.ToLower(getenvDefault("AI_PROVIDER", "gemini")),
		GeminiKey:   os.Getenv("GEMINI_API_KEY"),
		GeminiModel: getenvDefault("GEMINI_MODEL", "gemini-2.0-flash"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIModel: getenvDefault("OPENAI_MODEL", "gpt-4o-mini"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		BoltPath:    getenvDefault("BOLT_PATH", "bot_data.db"),

		Port:           getenvDefault("PORT", "8080"),
		PollEnabled:    getenvBool("POLL_ENABLED", true),
		CheckInterval:  getenvSeconds("CHECK_INTERVAL_SECONDS", 60),
		SweepTimeout:   getenvSeconds("SWEEP_TIMEOUT_SECONDS", 300),
		WebhookTimeout: getenvSeconds("WEBHOOK_TIMEOUT_SECONDS", 25),

		WorkerCount:       getenvInt("WORKER_COUNT", 4),
		DispatchRetries:   getenvInt("DISPATCH_RETRIES", 3),
		ContextTurns:      getenvInt("CONTEXT_TURNS", 5),
		ContextCharBudget: getenvInt("CONTEXT_CHAR_BUDGET", 2000),
		PromptPath:        getenvDefault("PROMPT_PATH", "prompts/restaurant_prompt.txt"),

		TelegramToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID: os.Getenv("TELEGRAM_CHAT_ID"),
	}

	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}
	if cfg.DispatchRetries < 1 {
		cfg.DispatchRetries = 1
	}
	return cfg
}

// Validate reports every missing required key in one error so the operator
// can fix the .env in a single pass.
func (c *Config) Validate() error {
	var missing []string
	if c.PageID == "" {
		missing = append(missing, "FACEBOOK_PAGE_ID")
	}
	if c.PageToken == "" {
		missing = append(missing, "FACEBOOK_PAGE_ACCESS_TOKEN")
	}
	switch c.AIProvider {
	case "gemini":
		if c.GeminiKey == "" {
			missing = append(missing, "GEMINI_API_KEY")
		}
	case "openai":
		if c.OpenAIKey == "" {
			missing = append(missing, "OPENAI_API_KEY")
		}
	default:
		return fmt.Errorf("unknown AI_PROVIDER %q (want gemini or openai)", c.AIProvider)
	}
	if len(missing) > 0 {
		return fmt.Errorf("configuration errors: %s not set", strings.Join(missing, ", "))
	}
	return nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvSeconds(key string, def int) time.Duration {
	return time.Duration(getenvInt(key, def)) * time.Second
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
