package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/digkill/engagebot/internal/period"
	"github.com/digkill/engagebot/internal/stats"
)

type StatsProvider interface {
	Summarize(ctx context.Context, scope stats.Scope, kind period.Kind) (*stats.Summary, error)
}

const helpText = `Commands:
/subscribe <restaurant> - receive milestone notifications
/unsubscribe <restaurant> - stop notifications
/progress <account> <restaurant> [day|week|month] - current progress`

// Bot answers owner commands and manages notification subscriptions.
// Only chats in the allow-list may run anything beyond /start and /help.
type Bot struct {
	api     *tgbotapi.BotAPI
	log     *slog.Logger
	stats   StatsProvider
	routes  *Routes
	allowed map[int64]struct{}
}

func NewBot(api *tgbotapi.BotAPI, log *slog.Logger, stats StatsProvider, routes *Routes, allowedChats []int64) *Bot {
	allowed := make(map[int64]struct{}, len(allowedChats))
	for _, id := range allowedChats {
		allowed[id] = struct{}{}
	}
	return &Bot{
		api:     api,
		log:     log,
		stats:   stats,
		routes:  routes,
		allowed: allowed,
	}
}

func (b *Bot) authorized(chatID int64) bool {
	_, ok := b.allowed[chatID]
	return ok
}

func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.log.Info("telegram bot started")

	for {
		select {
		case update := <-updates:
			if update.Message != nil {
				b.handleMessage(ctx, update.Message)
			}
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil || !msg.IsCommand() {
		return
	}
	chatID := msg.Chat.ID
	args := strings.Fields(msg.CommandArguments())

	cmd := msg.Command()
	if cmd == "start" || cmd == "help" {
		b.sendText(chatID, helpText)
		return
	}
	if !b.authorized(chatID) {
		b.log.Warn("unauthorized bot command", "chat_id", chatID, "command", cmd)
		b.sendText(chatID, "This chat is not allowed to use engagement commands.")
		return
	}

	switch cmd {
	case "subscribe":
		if len(args) != 1 {
			b.sendText(chatID, "Usage: /subscribe <restaurant>")
			return
		}
		b.routes.Subscribe(args[0], chatID)
		b.sendText(chatID, fmt.Sprintf("Subscribed to %s.", args[0]))
	case "unsubscribe":
		if len(args) != 1 {
			b.sendText(chatID, "Usage: /unsubscribe <restaurant>")
			return
		}
		b.routes.Unsubscribe(args[0], chatID)
		b.sendText(chatID, fmt.Sprintf("Unsubscribed from %s.", args[0]))
	case "progress":
		b.handleProgress(ctx, chatID, args)
	default:
		b.sendText(chatID, helpText)
	}
}

func (b *Bot) handleProgress(ctx context.Context, chatID int64, args []string) {
	if len(args) < 2 || len(args) > 3 {
		b.sendText(chatID, "Usage: /progress <account> <restaurant> [day|week|month]")
		return
	}
	raw := ""
	if len(args) == 3 {
		raw = args[2]
	}
	kind, err := period.ParseKind(raw)
	if err != nil {
		b.sendText(chatID, "Unknown period. Use day, week or month.")
		return
	}
	summary, err := b.stats.Summarize(ctx, stats.Scope{AccountID: args[0], RestaurantID: args[1]}, kind)
	if err != nil {
		b.log.Error("progress command", "account", args[0], "restaurant", args[1], "err", err)
		b.sendText(chatID, "Stats are temporarily unavailable, try again later.")
		return
	}
	b.sendText(chatID, FormatSummary(summary))
}

func FormatSummary(s *stats.Summary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%s)\n", s.RestaurantID, s.Period)
	fmt.Fprintf(&sb, "Menus sent: %d (%+d%%)\n", s.MenusSent, s.Trends.MenusSent)
	fmt.Fprintf(&sb, "Review requests: %d (%+d%%)\n", s.ReviewRequests, s.Trends.ReviewRequests)
	fmt.Fprintf(&sb, "Reviews collected: %d (%+d%%)\n", s.ReviewsCollected, s.Trends.ReviewsCollected)
	fmt.Fprintf(&sb, "Level %d, %d reviews to next level\n", s.Level, s.ReviewsToNextLevel)
	fmt.Fprintf(&sb, "Weekly goal: %d/%d (%d%%), streak %d\n", s.WeeklyGoal.Achieved, s.WeeklyGoal.Target, s.WeeklyGoal.Progress, s.CurrentStreak)
	fmt.Fprintf(&sb, "Messaging cost: %s", s.TotalStats.TotalCost)
	return sb.String()
}

func (b *Bot) sendText(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send text", "err", err)
	}
}
