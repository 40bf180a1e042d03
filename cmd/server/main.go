// Command shop-server starts the digital goods shop core.
package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/avkuzmin/teleshop/internal/cache"
	"github.com/avkuzmin/teleshop/internal/config"
	"github.com/avkuzmin/teleshop/internal/limiter"
	"github.com/avkuzmin/teleshop/internal/migrate"
	"github.com/avkuzmin/teleshop/internal/notify"
	"github.com/avkuzmin/teleshop/internal/repository/postgres"
	"github.com/avkuzmin/teleshop/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main parses configuration, runs migrations, and wires the service graph.
func main() {
	cfg := config.New()

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
	)

	if cfg.DatabaseURI == "" {
		logger.Fatal("missing database DSN (DATABASE_URI or -d)")
	}

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, cfg.DatabaseURI); err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}

	// DB pool
	db, err := postgres.New(ctx, cfg.DatabaseURI)
	if err != nil {
		logger.Fatal("postgres.New", zap.Error(err))
	}
	defer db.Close()

	// Cache
	redisCache, err := cache.NewRedis(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Fatal("cache.NewRedis", zap.Error(err))
	}
	defer redisCache.Close()
	kvc := cache.NewQuiet(redisCache, cfg.CacheTTL(), logger)

	// Repositories
	userRepo := postgres.NewUserRepo(db)
	catalogRepo := postgres.NewCatalogRepo(db)
	accountRepo := postgres.NewAccountRepo(db)
	universalRepo := postgres.NewUniversalRepo(db)
	walletRepo := postgres.NewWalletRepo(db)
	promoRepo := postgres.NewPromoRepo(db)
	replenishRepo := postgres.NewReplenishRepo(db)
	referralRepo := postgres.NewReferralRepo(db)

	// Telegram delivery
	var sink service.EventSink = service.NopSink{}
	var probe service.Probe
	if cfg.BotToken != "" {
		bot, botErr := tgbotapi.NewBotAPI(cfg.BotToken)
		if botErr != nil {
			logger.Fatal("tgbotapi.NewBotAPI", zap.Error(botErr))
		}
		lim := limiter.NewSlidingWindow(cfg.RateSendMsgLimit, time.Second)
		sink = notify.New(bot, lim, int64(cfg.SemaphoreMailingLimit), logger)
		probe = notify.AccountProbe(bot, 5*time.Second)
	} else {
		logger.Warn("bot token not set, notifications disabled")
	}

	// Services
	walletSvc := service.NewWalletService(db, userRepo, walletRepo)
	referralSvc := service.NewReferralService(db, userRepo, referralRepo, walletSvc, logger)
	core := &service.Core{
		Users:     service.NewUserService(userRepo, cfg.DefaultLanguage, cfg.Languages()),
		Catalog:   service.NewCatalogService(db, catalogRepo, accountRepo, universalRepo, kvc),
		Inventory: service.NewInventoryService(db, catalogRepo, accountRepo, universalRepo, kvc, cfg.PageSize, logger),
		Promo:     service.NewPromoService(promoRepo, kvc),
		Wallet:    walletSvc,
		Referral:  referralSvc,
		Purchase: service.NewPurchaseService(db, catalogRepo, accountRepo, universalRepo,
			promoRepo, userRepo, walletSvc, kvc, sink, probe, logger),
		Replenish: service.NewReplenishService(db, replenishRepo, userRepo, walletSvc,
			referralSvc, sink, cfg.PaymentLifetime(), logger),
	}

	// Stale invoice sweeper
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := core.Replenish.ExpireStale(ctx); err != nil {
					logger.Error("expire stale replenishments", zap.Error(err))
				}
			}
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown complete")
}
