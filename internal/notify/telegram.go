package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"optionwatch/internal/models"
)

// TelegramSink sends grouped notifications via the Telegram Bot API.
type TelegramSink struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewTelegramSink creates a Telegram sink.
func NewTelegramSink(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*TelegramSink, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &TelegramSink{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// Name implements Sink.
func (s *TelegramSink) Name() string { return "telegram" }

// Send implements Sink.
func (s *TelegramSink) Send(ctx context.Context, groups []models.UnderlyingGroup) error {
	return s.sendMarkdownV2(ctx, s.formatMessage(groups))
}

// ListenForCommands starts a goroutine that polls for Telegram updates and
// handles bot commands. It returns immediately; the goroutine stops when
// ctx is cancelled.
func (s *TelegramSink) ListenForCommands(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := s.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				s.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					s.handleCommand(update.Message)
				}
			}
		}
	}()
}

func (s *TelegramSink) handleCommand(msg *tgbotapi.Message) {
	switch msg.Command() {
	case "ping":
		reply := tgbotapi.NewMessage(msg.Chat.ID, "Pong")
		s.bot.Send(reply) //nolint:errcheck
	}
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (s *TelegramSink) sendMarkdownV2(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(s.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < s.maxRetries; i++ {
		if _, err := s.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.retryDelayBase * time.Duration(i+1)):
		}
	}
	return fmt.Errorf("failed after %d retries: %w", s.maxRetries, lastErr)
}

// SendError sends a monitoring error notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (s *TelegramSink) SendError(cycleErr error) error {
	text := fmt.Sprintf("⚠️ *Monitoring error*\n`%s`", escapeMarkdownV2(cycleErr.Error()))
	return s.sendMarkdownV2(context.Background(), text)
}

// SendRecovery sends a recovery notification after consecutive failures.
func (s *TelegramSink) SendRecovery(failureCount int) error {
	text := fmt.Sprintf("✅ *Monitoring recovered* after %d consecutive failure\\(s\\)", failureCount)
	return s.sendMarkdownV2(context.Background(), text)
}

// formatMessage formats underlying groups into a Telegram MarkdownV2 message.
func (s *TelegramSink) formatMessage(groups []models.UnderlyingGroup) string {
	message := "🚨 *Big Option Trades*\n\n"

	if len(groups) > 0 && len(groups[0].Top) > 0 {
		dateStr := escapeMarkdownV2(groups[0].Top[0].Snapshot.SampledAt.Format("2006-01-02 15:04:05"))
		message += fmt.Sprintf("📅 Detected: %s\n\n", dateStr)
	}

	for i, group := range groups {
		name := group.UnderlyingName
		if name == "" {
			name = group.UnderlyingCode
		}
		message += fmt.Sprintf("%d\\. *%s* — %d trade\\(s\\), total %s\n",
			i+1, escapeMarkdownV2(name), group.Count,
			escapeMarkdownV2(formatTurnover(group.TotalTurnover)))

		for _, t := range group.Top {
			riskEmoji := "🟢"
			switch t.RiskLevel {
			case models.RiskMedium:
				riskEmoji = "🟡"
			case models.RiskHigh:
				riskEmoji = "🔴"
			}

			desc := t.Snapshot.ContractCode
			if t.Contract.Valid {
				desc = fmt.Sprintf("%s %s %.2f %s",
					t.Contract.Kind, t.Contract.ExpiryDate.Format("01-02"),
					t.Contract.StrikePrice, t.Analytics.Moneyness)
			}
			message += fmt.Sprintf("   %s %s \\| vol \\+%s \\| %s \\| score %d\n",
				riskEmoji, escapeMarkdownV2(desc),
				escapeMarkdownV2(humanize.Comma(t.VolumeDiff)),
				escapeMarkdownV2(formatTurnover(t.Snapshot.Turnover)),
				t.ImportanceScore)
		}

		message += "\n"
	}

	return message
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
