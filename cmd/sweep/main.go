// The sweep binary runs one pass of the subscription expiry sweep and
// exits. It is meant to be scheduled externally (cron, a Kubernetes
// CronJob) rather than looped in-process.
package main

import (
	"context"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/pixelmint/billing-service/internal/config"
	"github.com/pixelmint/billing-service/internal/domain/plan"
	"github.com/pixelmint/billing-service/internal/infrastructure/database"
	"github.com/pixelmint/billing-service/internal/infrastructure/provider/stripe"
	"github.com/pixelmint/billing-service/internal/usecase"
	"github.com/pixelmint/billing-service/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := logger.NewZapLogger(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: "stdout",
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	db, err := database.NewConnection(&cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := database.Close(db, zapLogger); err != nil {
			zapLogger.Error("Failed to close database connection", zap.Error(err))
		}
	}()

	repos := database.NewRepositories(db, zapLogger)
	gateway := stripe.NewGateway(cfg.Service.StripeSecretKey, zapLogger)

	catalog := plan.NewCatalog(
		cfg.Service.Plans.StarterPriceID,
		cfg.Service.Plans.ProPriceID,
		cfg.Service.Plans.EnterprisePriceID,
	)
	subscriptionSvc := usecase.NewSubscriptionService(
		repos.User,
		repos.Subscription,
		gateway,
		catalog,
		cfg.Service.ClientURL,
		zapLogger,
	)
	sweeper := usecase.NewExpirySweeper(repos.Subscription, subscriptionSvc, gateway, zapLogger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	summary, err := sweeper.Run(ctx)
	if err != nil {
		zapLogger.Fatal("Sweep run failed", zap.Error(err))
	}

	zapLogger.Info("Sweep completed",
		zap.Int("checked", summary.Checked),
		zap.Int("downgraded", summary.Downgraded),
		zap.Int("renewed", summary.Renewed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed))
}
