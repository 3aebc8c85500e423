// Package notify отправляет уведомления о завершении сбора.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"spotifychart/internal/domain/chart"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Notifier уведомляет о результате сбора
type Notifier interface {
	Notify(ctx context.Context, summary Summary) error
}

// Summary краткий итог сбора
type Summary struct {
	RunID       string
	Start       time.Time
	End         time.Time
	Slots       int
	Rows        int
	FailedSlots int
	CSVPath     string
	Err         error
}

// NewSummary собирает итог из результата сбора
func NewSummary(result *chart.Result, csvPath string, err error) Summary {
	return Summary{
		RunID:       result.RunID.String(),
		Start:       result.Period.Start,
		End:         result.Period.End,
		Slots:       result.Period.Hours(),
		Rows:        len(result.Entries),
		FailedSlots: len(result.FailedSlots),
		CSVPath:     csvPath,
		Err:         err,
	}
}

// Text форматирует итог для сообщения
func (s Summary) Text() string {
	var b strings.Builder

	if s.Err != nil {
		b.WriteString("⚠️ Spotify chart collection stopped\n")
	} else {
		b.WriteString("✅ Spotify chart collection finished\n")
	}
	fmt.Fprintf(&b, "Period: %s - %s\n", s.Start.Format("2006-01-02 15:04"), s.End.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "Slots: %d (failed: %d)\n", s.Slots, s.FailedSlots)
	fmt.Fprintf(&b, "Rows: %d\n", s.Rows)
	if s.CSVPath != "" {
		fmt.Fprintf(&b, "CSV: %s\n", s.CSVPath)
	}
	if s.Err != nil {
		fmt.Fprintf(&b, "Error: %v\n", s.Err)
	}
	fmt.Fprintf(&b, "Run: %s", s.RunID)

	return b.String()
}

// Nop ничего не отправляет
type Nop struct{}

// Notify реализует Notifier
func (Nop) Notify(context.Context, Summary) error { return nil }

// Telegram отправляет итог в чат Telegram
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *zap.Logger
}

var (
	_ Notifier = (*Telegram)(nil)
	_ Notifier = Nop{}
)

// NewTelegram создает уведомитель. apiEndpoint пустой для api.telegram.org.
func NewTelegram(botToken string, chatID int64, apiEndpoint string, client tgbotapi.HTTPClient, logger *zap.Logger) (*Telegram, error) {
	if apiEndpoint == "" {
		apiEndpoint = tgbotapi.APIEndpoint
	}

	bot, err := tgbotapi.NewBotAPIWithClient(botToken, apiEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	bot.Debug = false
	logger.Info("Telegram notifier created", zap.String("username", bot.Self.UserName))

	return &Telegram{bot: bot, chatID: chatID, logger: logger}, nil
}

// Notify реализует Notifier
func (t *Telegram) Notify(ctx context.Context, summary Summary) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(t.chatID, summary.Text())
	msg.DisableWebPagePreview = true

	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}

	t.logger.Info("Telegram notification sent", zap.Int64("chat_id", t.chatID))
	return nil
}
