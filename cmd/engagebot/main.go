package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/digkill/engagebot/internal/admin"
	"github.com/digkill/engagebot/internal/billing"
	"github.com/digkill/engagebot/internal/cache"
	"github.com/digkill/engagebot/internal/clock"
	"github.com/digkill/engagebot/internal/config"
	"github.com/digkill/engagebot/internal/database"
	"github.com/digkill/engagebot/internal/gamification"
	"github.com/digkill/engagebot/internal/interaction"
	"github.com/digkill/engagebot/internal/memstore"
	"github.com/digkill/engagebot/internal/models"
	"github.com/digkill/engagebot/internal/period"
	"github.com/digkill/engagebot/internal/repository"
	"github.com/digkill/engagebot/internal/review"
	"github.com/digkill/engagebot/internal/service"
	"github.com/digkill/engagebot/internal/stats"
	"github.com/digkill/engagebot/internal/storage"
	"github.com/digkill/engagebot/internal/telegram"
	"github.com/digkill/engagebot/internal/usage"
	"github.com/digkill/engagebot/pkg/logger"
)

type reviewStore interface {
	stats.ReviewSource
	admin.ReviewImporter
}

type stores struct {
	interactions interaction.Store
	usage        usage.Store
	gamification gamification.Store
	reviews      reviewStore
}

func openStores(ctx context.Context, cfg config.Config) (stores, *sql.DB, error) {
	if cfg.StoreDriver == config.StoreMemory {
		mem := memstore.New()
		return stores{interactions: mem, usage: mem, gamification: mem, reviews: mem}, nil, nil
	}

	db, err := database.Connect(cfg.MySQLDSN)
	if err != nil {
		return stores{}, nil, err
	}
	if err := database.Migrate(ctx, db); err != nil {
		db.Close()
		return stores{}, nil, err
	}
	return stores{
		interactions: repository.NewInteractionRepository(db),
		usage:        repository.NewUsageRepository(db),
		gamification: repository.NewGamificationRepository(db),
		reviews:      repository.NewReviewRepository(db),
	}, db, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, db, err := openStores(ctx, cfg)
	if err != nil {
		log.Fatalf("open stores: %v", err)
	}
	if db != nil {
		defer db.Close()
	}
	logr.Info("stores ready", "driver", cfg.StoreDriver)

	clk := clock.Real{}
	calendar := period.NewCalendar(cfg.WeekStart)
	classifier := billing.NewClassifier(cfg.Rates)

	tracker := interaction.NewTracker(st.interactions, clk)
	ledger := usage.NewLedger(st.usage, classifier, calendar, clk, cfg.LedgerMaxRetries)
	gate := review.NewGate(clk, review.Config{DelayHours: cfg.ReviewDelayHours})
	engine := gamification.NewEngine(st.gamification, calendar, clk, nil)

	opts := stats.Options{RateVersion: classifier.Version()}

	if cfg.RedisAddr != "" {
		statsCache := cache.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.StatsCacheTTL)
		defer statsCache.Close()
		if err := statsCache.Ping(ctx); err != nil {
			logr.Warn("redis unavailable, stats cache disabled", "addr", cfg.RedisAddr, "err", err)
		} else {
			opts.Cache = statsCache
		}
	}

	var (
		routes *telegram.Routes
		botAPI *tgbotapi.BotAPI
	)
	if cfg.BotEnabled() {
		botAPI, err = tgbotapi.NewBotAPI(cfg.BotToken)
		if err != nil {
			log.Fatalf("telegram bot: %v", err)
		}
		routes = telegram.NewRoutes()
		opts.Notifier = telegram.NewNotifier(botAPI, logr, routes, cfg.NotifyChatID)
	}

	aggregator := stats.NewAggregator(logr, clk, calendar, ledger, tracker, engine, st.reviews, opts)
	engagement := service.NewEngagementService(logr, clk, tracker, ledger, gate)

	deps := admin.Deps{
		Engagement: engagement,
		Stats:      aggregator,
		Usage:      ledger,
		Reviews:    st.reviews,
	}
	if routes != nil {
		deps.Subscriptions = routes
	}

	if cfg.ReportsEnabled() {
		archive, err := storage.NewArchive(storage.Config{
			Endpoint:      cfg.S3Endpoint,
			Region:        cfg.S3Region,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Bucket:        cfg.S3Bucket,
			PublicBaseURL: cfg.S3PublicBaseURL,
			UsePathStyle:  cfg.S3UsePathStyle,
			Prefix:        cfg.S3Prefix,
		}, clk)
		if err != nil {
			log.Fatalf("report archive: %v", err)
		}
		deps.Reports = archive
	}

	if botAPI != nil {
		bot := telegram.NewBot(botAPI, logr, aggregator, routes, cfg.BotChats())
		go func() {
			if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logr.Error("bot stopped", "err", err)
			}
		}()
	}

	logStartup(logr, cfg, classifier)

	adminServer := admin.NewServer(cfg.AdminListenAddr, cfg.AdminUsername, cfg.AdminPassword, logr, deps)
	if err := adminServer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("admin server stopped", "err", err)
	}
}

func logStartup(logr *slog.Logger, cfg config.Config, classifier *billing.Classifier) {
	logr.Info("engagebot starting",
		"rate_version", classifier.Version(),
		"utility_price", classifier.Price(models.ConversationUtility).String(),
		"marketing_price", classifier.Price(models.ConversationMarketing).String(),
		"week_start", cfg.WeekStart.String(),
		"review_delay_hours", cfg.ReviewDelayHours,
		"reports", cfg.ReportsEnabled(),
		"telegram_bot", cfg.BotEnabled(),
		"bot_chats", len(cfg.BotChats()),
	)
}
