package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/engagebot/internal/gamification"
	"github.com/digkill/engagebot/internal/models"
	"github.com/digkill/engagebot/internal/period"
	"github.com/digkill/engagebot/internal/stats"
)

type sentMessage struct {
	ChatID string
	Text   string
}

// fakeTelegram records sendMessage calls; chat "-1" is rejected.
type fakeTelegram struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (f *fakeTelegram) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func newTestAPI(t *testing.T) (*tgbotapi.BotAPI, *fakeTelegram) {
	t.Helper()
	fake := &fakeTelegram{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Engage","username":"engage_bot"}}`)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			_ = r.ParseForm()
			chatID := r.FormValue("chat_id")
			if chatID == "-1" {
				fmt.Fprint(w, `{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`)
				return
			}
			fake.mu.Lock()
			fake.sent = append(fake.sent, sentMessage{ChatID: chatID, Text: r.FormValue("text")})
			fake.mu.Unlock()
			fmt.Fprintf(w, `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":%s,"type":"private"}}}`, chatID)
		default:
			fmt.Fprint(w, `{"ok":false,"error_code":404,"description":"Not Found"}`)
		}
	}))
	t.Cleanup(srv.Close)

	api, err := tgbotapi.NewBotAPIWithClient("test-token", srv.URL+"/bot%s/%s", srv.Client())
	require.NoError(t, err)
	return api, fake
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRoutes(t *testing.T) {
	r := NewRoutes()
	r.Subscribe("rest", 30)
	r.Subscribe("rest", 10)
	r.Subscribe("rest", 30)
	assert.Equal(t, []int64{10, 30}, r.Get("rest"))

	r.Unsubscribe("rest", 10)
	r.Unsubscribe("rest", 30)
	assert.Empty(t, r.Get("rest"))
	r.Unsubscribe("other", 1)
}

func TestFormatTransition(t *testing.T) {
	state := models.GamificationState{Level: 4, CurrentStreak: 3}
	tr := gamification.Transition{
		LevelUp:       true,
		GoalCompleted: true,
		Unlocked: []gamification.Achievement{{AchievementDef: gamification.AchievementDef{
			Name: "Local Favorite", Description: "Collect 25 reviews", Rarity: gamification.RarityRare,
		}}},
	}
	text := FormatTransition("bistro", state, tr)
	assert.Contains(t, text, "reached level 4")
	assert.Contains(t, text, "Streak: 3 weeks")
	assert.Contains(t, text, "Achievement unlocked: Local Favorite (rare)")

	assert.Empty(t, FormatTransition("bistro", state, gamification.Transition{}))
}

func TestNotifier_SendsToRoutesAndFallback(t *testing.T) {
	api, fake := newTestAPI(t)
	routes := NewRoutes()
	routes.Subscribe("bistro", 42)
	n := NewNotifier(api, discardLogger(), routes, 7)

	err := n.NotifyProgress(context.Background(), "bistro", models.GamificationState{Level: 2}, gamification.Transition{LevelUp: true})
	require.NoError(t, err)

	sent := fake.messages()
	require.Len(t, sent, 2)
	assert.Equal(t, "42", sent[0].ChatID)
	assert.Equal(t, "7", sent[1].ChatID)
	assert.Contains(t, sent[0].Text, "level 2")

	require.NoError(t, n.NotifyProgress(context.Background(), "bistro", models.GamificationState{}, gamification.Transition{}))
	assert.Len(t, fake.messages(), 2, "nothing is sent without a transition")
}

func TestNotifier_ReportsSendFailures(t *testing.T) {
	api, fake := newTestAPI(t)
	routes := NewRoutes()
	routes.Subscribe("bistro", -1)
	routes.Subscribe("bistro", 5)
	n := NewNotifier(api, discardLogger(), routes, 0)

	err := n.NotifyProgress(context.Background(), "bistro", models.GamificationState{}, gamification.Transition{GoalCompleted: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat -1")
	assert.Len(t, fake.messages(), 1)
}

type fakeStats struct {
	summary *stats.Summary
	err     error
	scope   stats.Scope
	kind    period.Kind
}

func (f *fakeStats) Summarize(_ context.Context, scope stats.Scope, kind period.Kind) (*stats.Summary, error) {
	f.scope, f.kind = scope, kind
	return f.summary, f.err
}

func command(chatID int64, text string) *tgbotapi.Message {
	name := strings.Fields(text)[0]
	return &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: chatID},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
	}
}

func TestBot_SubscribeAndProgress(t *testing.T) {
	api, fake := newTestAPI(t)
	routes := NewRoutes()
	provider := &fakeStats{summary: &stats.Summary{
		RestaurantID: "bistro",
		Period:       period.Monthly,
		MenusSent:    12,
		Trends:       stats.Trends{MenusSent: -20},
		Level:        3,
		WeeklyGoal:   stats.WeeklyGoal{Target: 2, Achieved: 1, Progress: 50},
		TotalStats:   models.UsageTotals{TotalCost: 1091},
	}}
	bot := NewBot(api, discardLogger(), provider, routes, []int64{42})
	ctx := context.Background()

	bot.handleMessage(ctx, command(42, "/subscribe bistro"))
	assert.Equal(t, []int64{42}, routes.Get("bistro"))

	bot.handleMessage(ctx, command(42, "/progress acct bistro month"))
	assert.Equal(t, stats.Scope{AccountID: "acct", RestaurantID: "bistro"}, provider.scope)
	assert.Equal(t, period.Monthly, provider.kind)

	bot.handleMessage(ctx, command(42, "/unsubscribe bistro"))
	assert.Empty(t, routes.Get("bistro"))

	sent := fake.messages()
	require.Len(t, sent, 3)
	assert.Contains(t, sent[0].Text, "Subscribed to bistro")
	assert.Contains(t, sent[1].Text, "Menus sent: 12 (-20%)")
	assert.Contains(t, sent[1].Text, "Weekly goal: 1/2 (50%)")
	assert.Contains(t, sent[1].Text, "Messaging cost: 0.1091")
}

func TestBot_ProgressErrors(t *testing.T) {
	api, fake := newTestAPI(t)
	provider := &fakeStats{err: errors.New("stats temporarily unavailable")}
	bot := NewBot(api, discardLogger(), provider, NewRoutes(), []int64{9})
	ctx := context.Background()

	bot.handleMessage(ctx, command(9, "/progress acct"))
	bot.handleMessage(ctx, command(9, "/progress acct bistro fortnight"))
	bot.handleMessage(ctx, command(9, "/progress acct bistro"))
	bot.handleMessage(ctx, &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 9}, Text: "hello"})

	sent := fake.messages()
	require.Len(t, sent, 3)
	assert.Contains(t, sent[0].Text, "Usage: /progress")
	assert.Contains(t, sent[1].Text, "Unknown period")
	assert.Contains(t, sent[2].Text, "temporarily unavailable")
	assert.Equal(t, period.Weekly, provider.kind)
}

func TestBot_RejectsUnlistedChat(t *testing.T) {
	api, fake := newTestAPI(t)
	routes := NewRoutes()
	provider := &fakeStats{summary: &stats.Summary{RestaurantID: "bistro"}}
	bot := NewBot(api, discardLogger(), provider, routes, []int64{42})
	ctx := context.Background()

	bot.handleMessage(ctx, command(666, "/subscribe bistro"))
	bot.handleMessage(ctx, command(666, "/progress acct bistro"))
	bot.handleMessage(ctx, command(666, "/help"))

	assert.Empty(t, routes.Get("bistro"))
	assert.Equal(t, stats.Scope{}, provider.scope, "stats are never read for an unlisted chat")

	sent := fake.messages()
	require.Len(t, sent, 3)
	assert.Contains(t, sent[0].Text, "not allowed")
	assert.Contains(t, sent[1].Text, "not allowed")
	assert.Contains(t, sent[2].Text, "/subscribe")
}
