package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/digkill/engagebot/internal/gamification"
	"github.com/digkill/engagebot/internal/models"
)

// Notifier sends gamification milestones to restaurant owners.
// Messages go to every chat subscribed to the restaurant, plus the fallback chat when set.
type Notifier struct {
	api          *tgbotapi.BotAPI
	log          *slog.Logger
	routes       *Routes
	fallbackChat int64
}

func NewNotifier(api *tgbotapi.BotAPI, log *slog.Logger, routes *Routes, fallbackChat int64) *Notifier {
	if routes == nil {
		routes = NewRoutes()
	}
	return &Notifier{
		api:          api,
		log:          log,
		routes:       routes,
		fallbackChat: fallbackChat,
	}
}

func (n *Notifier) Routes() *Routes {
	return n.routes
}

func (n *Notifier) NotifyProgress(ctx context.Context, restaurantID string, state models.GamificationState, tr gamification.Transition) error {
	text := FormatTransition(restaurantID, state, tr)
	if text == "" {
		return nil
	}

	chats := n.routes.Get(restaurantID)
	if n.fallbackChat != 0 && !containsChat(chats, n.fallbackChat) {
		chats = append(chats, n.fallbackChat)
	}

	var errs []error
	for _, chatID := range chats {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := n.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
			n.log.Error("send progress notification", "restaurant", restaurantID, "chat", chatID, "err", err)
			errs = append(errs, fmt.Errorf("send to chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

// FormatTransition renders tr as a plain-text message, or "" when nothing changed.
func FormatTransition(restaurantID string, state models.GamificationState, tr gamification.Transition) string {
	var lines []string
	if tr.LevelUp {
		lines = append(lines, fmt.Sprintf("Level up! %s reached level %d.", restaurantID, state.Level))
	}
	if tr.GoalCompleted {
		line := fmt.Sprintf("Weekly review goal completed for %s.", restaurantID)
		if state.CurrentStreak > 1 {
			line += fmt.Sprintf(" Streak: %d weeks.", state.CurrentStreak)
		}
		lines = append(lines, line)
	}
	for _, a := range tr.Unlocked {
		lines = append(lines, fmt.Sprintf("Achievement unlocked: %s (%s) - %s", a.Name, a.Rarity, a.Description))
	}
	return strings.Join(lines, "\n")
}

func containsChat(chats []int64, id int64) bool {
	for _, c := range chats {
		if c == id {
			return true
		}
	}
	return false
}
