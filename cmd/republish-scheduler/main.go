// cmd/republish-scheduler periodically republishes delivery-status ledger
// entries stuck past failAfter (C4). Dual Lambda/local-loop shape grounded
// on the teacher's apps/subscription-processor/cmd/main.go: HandleRequest
// runs one batch for a scheduled Lambda invocation; LocalHandleRequest
// loops on a ticker so local/dev gets the same behavior without an external
// scheduler.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"poscore/internal/breaker"
	"poscore/internal/config"
	"poscore/internal/constants"
	"poscore/internal/eventbus"
	"poscore/internal/helpers"
	"poscore/internal/ledger"
	"poscore/internal/logger"
	"poscore/internal/store"
)

type application struct {
	ledger   *ledger.Ledger
	lookback time.Duration
	failAfter time.Duration
}

// HandleRequest runs one republish pass for the single tenant named by
// TENANT_ID, since the ledger is partitioned per tenant (§3.5 ledger records
// are tenant-scoped documents in C1). Other tenants are not scanned.
func (a *application) HandleRequest(ctx context.Context) error {
	tenantID := os.Getenv("TENANT_ID")
	result, err := a.ledger.RunOnce(ctx, tenantID, a.lookback, a.failAfter)
	if err != nil {
		logger.Error("republish pass failed", zap.Error(err))
		return err
	}
	logger.Info("republish pass complete",
		zap.Int("scanned", result.Scanned),
		zap.Int("republished", result.Republished),
		zap.Int("marked_failed", result.MarkedFailed))
	return nil
}

func (a *application) runLocalLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := a.HandleRequest(ctx); err != nil {
			logger.Error("local republish loop iteration failed", zap.Error(err))
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func main() {
	stage := os.Getenv("STAGE")
	if stage == "" {
		stage = constants.StageLocal
	}
	if !helpers.IsValidStage(stage) {
		fmt.Printf("invalid STAGE environment variable: %q, must be one of: %s, %s, %s\n",
			stage, constants.StageProd, constants.StageDev, constants.StageLocal)
		os.Exit(1)
	}
	logger.InitLogger(stage)
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		logger.Fatal("loading configuration", zap.Error(err))
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("connecting to postgres", zap.Error(err))
	}
	defer pool.Close()
	documentStore := store.New(pool)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Fatal("loading aws config", zap.Error(err))
	}
	sqsClient := sqs.NewFromConfig(awsCfg)

	br := breaker.New(cfg.BreakerFailureThreshold, cfg.BreakerResetTimeout)
	bus := eventbus.New(sqsClient, map[string]string{
		constants.TopicTranLog:      cfg.QueueURLTranLog,
		constants.TopicCashLog:      cfg.QueueURLCashLog,
		constants.TopicOpenCloseLog: cfg.QueueURLOpenCloseLog,
	}, br)

	subscribers := []string{constants.SubscriberJournal, constants.SubscriberReport, constants.SubscriberStock}
	app := &application{
		ledger:    ledger.New(documentStore, bus, subscribers),
		lookback:  cfg.RepublishLookback,
		failAfter: cfg.RepublishFailAfter,
	}

	if stage == constants.StageLocal {
		app.runLocalLoop(ctx, cfg.RepublishInterval)
		return
	}
	lambda.Start(app.HandleRequest)
}
