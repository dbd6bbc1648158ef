package notify

import (
	"context"
	"fmt"
	"log"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/AbeneilMagpantay/ChickThisOut-FBAutomation/internal/core"
)

// Telegram pushes operator alerts to a chat: permanent dispatch failures
// and anything else that needs a human. Send-only, it never polls for
// updates.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram builds the notifier and verifies the token against the
// Telegram API.
func NewTelegram(token, chatIDStr string) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	chatID, err := strconv.ParseInt(chatIDStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid telegram chat id: %v", err)
	}
	return &Telegram{bot: bot, chatID: chatID}, nil
}

var _ core.Notifier = (*Telegram)(nil)

// Notify sends text to the configured chat. Failures are logged and
// swallowed, alerting must never take the pipeline down with it.
func (t *Telegram) Notify(ctx context.Context, text string) {
	msg := tgbotapi.NewMessage(t.chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		log.Printf("telegram alert failed: %v", err)
	}
}
