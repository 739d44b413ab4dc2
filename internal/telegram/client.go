// Package telegram delivers reports via the Telegram Bot API and answers bot
// commands.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/s07362022/leadlag/internal/logger"
	"github.com/s07362022/leadlag/internal/models"
	"github.com/s07362022/leadlag/internal/report"
)

// maxMessageLen is the Bot API limit on message text.
const maxMessageLen = 4096

// ReportFunc returns the report to answer /report with.
type ReportFunc func(ctx context.Context) (*models.Report, error)

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context, latest ReportFunc) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(ctx, update.Message, latest)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(ctx context.Context, msg *tgbotapi.Message, latest ReportFunc) {
	switch msg.Command() {
	case "ping":
		reply := tgbotapi.NewMessage(msg.Chat.ID, "Pong")
		c.bot.Send(reply) //nolint:errcheck
	case "report":
		r, err := latest(ctx)
		if err != nil {
			reply := tgbotapi.NewMessage(msg.Chat.ID, "No report available: "+err.Error())
			c.bot.Send(reply) //nolint:errcheck
			return
		}
		for _, chunk := range formatReport(r) {
			if err := c.sendTo(msg.Chat.ID, chunk); err != nil {
				logger.Warn("Failed to answer /report: %v", err)
				return
			}
		}
	}
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(text string) error {
	return c.sendTo(c.chatID, text)
}

func (c *Client) sendTo(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// SendError sends a report failure notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(cycleErr error) error {
	text := fmt.Sprintf("⚠️ *Report failed*\n`%s`", escapeCode(cycleErr.Error()))
	return c.sendMarkdownV2(text)
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(failureCount int) error {
	text := fmt.Sprintf("✅ *Reports recovered* after %d consecutive failure\\(s\\)", failureCount)
	return c.sendMarkdownV2(text)
}

// SendReport delivers the rendered report, split into as many messages as the
// Bot API length limit requires.
func (c *Client) SendReport(r *models.Report) error {
	chunks := formatReport(r)
	for i, chunk := range chunks {
		if err := c.sendMarkdownV2(chunk); err != nil {
			return fmt.Errorf("failed to send part %d/%d: %w", i+1, len(chunks), err)
		}
	}
	return nil
}

// formatReport wraps the plain-text report in MarkdownV2 pre blocks, one per
// message, breaking only at line boundaries.
func formatReport(r *models.Report) []string {
	header := fmt.Sprintf("📊 *Lead/lag report* %s\n", escapeMarkdownV2(r.GeneratedAt.Format("2006-01-02")))
	if r.Signal != nil {
		header += fmt.Sprintf("%s %s *%s*\n",
			escapeMarkdownV2(r.Signal.Symbol),
			escapeMarkdownV2(fmt.Sprintf("%+.2f%%", r.Signal.ChangePct)),
			escapeMarkdownV2(strings.ToUpper(string(r.Signal.Regime))))
	}

	const overhead = len("```\n\n```")
	var (
		chunks []string
		cur    strings.Builder
		budget = maxMessageLen - len(header) - overhead
	)
	flush := func() {
		if cur.Len() == 0 {
			return
		}
		chunks = append(chunks, "```\n"+cur.String()+"\n```")
		cur.Reset()
		budget = maxMessageLen - overhead
	}

	for _, raw := range strings.Split(strings.TrimRight(report.String(r), "\n"), "\n") {
		line := escapeCode(raw)
		if cur.Len() > 0 && cur.Len()+1+len(line) > budget {
			flush()
		}
		if cur.Len() == 0 && len(line) > budget {
			line = fitCode(raw, budget)
		}
		if cur.Len() > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(line)
	}
	flush()

	if len(chunks) == 0 {
		return []string{header}
	}
	chunks[0] = header + chunks[0]
	return chunks
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

// fitCode escapes line for a pre entity, cutting it at a rune boundary so the
// escaped text is at most limit bytes and no escape sequence is split.
func fitCode(line string, limit int) string {
	var b strings.Builder
	for _, r := range line {
		piece := escapeCode(string(r))
		if b.Len()+len(piece) > limit {
			break
		}
		b.WriteString(piece)
	}
	return b.String()
}

// escapeCode escapes text placed inside a MarkdownV2 code or pre entity.
func escapeCode(text string) string {
	r := strings.NewReplacer("\\", "\\\\", "`", "\\`")
	return r.Replace(text)
}
