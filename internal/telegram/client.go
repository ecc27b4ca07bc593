// Package telegram posts match summaries to a Telegram chat and answers stats commands.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/archerstats/internal/logger"
	"github.com/rewired-gh/archerstats/internal/models"
	"github.com/rewired-gh/archerstats/internal/stats"
)

// StatsSource answers the bot's commands.
type StatsSource interface {
	LiveStats() models.LiveStats
	Rankings(metric stats.Metric, activeOnly bool) []stats.Group[float64]
	Streaks() models.PerArcher[int]
	SetVenue(venue string)
}

// Client handles Telegram notifications. It implements notify.Sink.
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

func (c *Client) Name() string { return "telegram" }

// ListenForCommands starts a goroutine that polls for Telegram updates and answers bot
// commands from src. It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context, src StatsSource) {
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
					c.handleCommand(update.Message, src)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(msg *tgbotapi.Message, src StatsSource) {
	text := reply(msg.Command(), msg.CommandArguments(), src)
	if text == "" {
		return
	}
	out := tgbotapi.NewMessage(msg.Chat.ID, text)
	out.ParseMode = tgbotapi.ModeMarkdownV2
	if _, err := c.bot.Send(out); err != nil {
		logger.Warn("Failed to answer /%s: %v", msg.Command(), err)
	}
}

// reply builds the answer to one command. Unknown commands get no answer.
func reply(command, args string, src StatsSource) string {
	switch command {
	case "ping":
		return "Pong"
	case "stats":
		return formatLiveStats(src.LiveStats())
	case "rankings":
		metric := stats.MetricWins
		if name := strings.TrimSpace(args); name != "" {
			m, err := stats.ParseMetric(name)
			if err != nil {
				return escapeMarkdownV2(err.Error())
			}
			metric = m
		}
		return formatRankings(metric, src.Rankings(metric, true))
	case "streaks":
		return formatStreaks(src.Streaks(), src.LiveStats().Active())
	case "venue":
		venue := strings.TrimSpace(args)
		src.SetVenue(venue)
		if venue == "" {
			return "Venue cleared"
		}
		return fmt.Sprintf("Venue set to *%s*", escapeMarkdownV2(venue))
	}
	return ""
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		select {
		case <-time.After(c.retryDelayBase * time.Duration(i+1)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// SendError sends a tracking error notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(ctx context.Context, cycleErr error) error {
	text := fmt.Sprintf("⚠️ *Tracking error*\n`%s`", escapeMarkdownV2(cycleErr.Error()))
	return c.sendMarkdownV2(ctx, text)
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(ctx context.Context, failureCount int) error {
	text := fmt.Sprintf("✅ *Tracking recovered* after %d consecutive failure\\(s\\)", failureCount)
	return c.sendMarkdownV2(ctx, text)
}

// MatchCompleted posts a summary of rec.
func (c *Client) MatchCompleted(ctx context.Context, rec models.MatchRecord) error {
	return c.sendMarkdownV2(ctx, formatMatch(rec))
}
