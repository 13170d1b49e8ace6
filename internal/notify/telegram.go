package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/polyphonica/booking/pkg/logger"
	"go.uber.org/zap"
)

// Alerter posts short messages to staff
type Alerter interface {
	Alert(ctx context.Context, text string) error
}

// botAPI is the slice of tgbotapi.BotAPI used here
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramAlerter posts to one staff chat
type TelegramAlerter struct {
	bot    botAPI
	chatID int64
	log    *logger.Logger
}

// NewTelegramAlerter returns a disabled alerter when token or chat is missing
func NewTelegramAlerter(token string, chatID int64, log *logger.Logger) (*TelegramAlerter, error) {
	if token == "" || chatID == 0 {
		log.Warn("telegram bot token or staff chat is empty, staff alerts disabled")
		return &TelegramAlerter{log: log}, nil
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &TelegramAlerter{bot: bot, chatID: chatID, log: log}, nil
}

// Enabled reports whether alerts are actually sent
func (a *TelegramAlerter) Enabled() bool {
	return a.bot != nil
}

func (a *TelegramAlerter) Alert(ctx context.Context, text string) error {
	if a.bot == nil {
		a.log.Debug("staff alert skipped (bot disabled)", zap.String("text", text))
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(a.chatID, text)
	if _, err := a.bot.Send(msg); err != nil {
		return fmt.Errorf("send telegram alert: %w", err)
	}
	return nil
}
