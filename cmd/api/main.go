// cmd/api runs the HTTP surface: cart, terminal, transaction, and report
// operations over gin. Wiring and graceful shutdown follow the teacher's
// cmd/api/main.go (signal-driven http.Server.Shutdown; .env loading is left
// to config.Load); the
// dependency chain itself (store -> eventbus -> ledger -> cart/txn/terminal
// services) is unique to this repo.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"poscore/internal/breaker"
	"poscore/internal/cart"
	"poscore/internal/cartsvc"
	"poscore/internal/config"
	"poscore/internal/constants"
	"poscore/internal/eventbus"
	"poscore/internal/formatter"
	"poscore/internal/handlers"
	"poscore/internal/helpers"
	"poscore/internal/ledger"
	"poscore/internal/logger"
	"poscore/internal/masterdata"
	"poscore/internal/payment"
	"poscore/internal/pricing"
	"poscore/internal/report"
	"poscore/internal/server"
	"poscore/internal/statestore"
	"poscore/internal/store"
	"poscore/internal/terminal"
	"poscore/internal/txn"
)

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
	cartCache := statestore.New(cfg.RedisAddr, cfg.RedisDB)

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
	led := ledger.New(documentStore, bus, subscribers)

	taxTable, err := masterdata.NewTaxTable(documentStore, 512, 10*time.Minute)
	if err != nil {
		logger.Fatal("building tax table", zap.Error(err))
	}

	pricingEngine := pricing.New(cfg.RoundingMode, cfg.CurrencyDecimalPlaces)
	paymentRegistry := payment.NewRegistry()
	paymentRegistry.RegisterDefaults()
	paymentEngine := payment.New(paymentRegistry)
	cartMachine := cart.New(pricingEngine, paymentEngine, taxTable.Lookup)

	formatterRegistry := formatter.NewRegistry()
	formatterRegistry.RegisterDefaults()

	svc := &handlers.Services{
		Carts:     cartsvc.New(documentStore, cartCache, cfg.CartCacheTTL, cartMachine),
		Terminals: terminal.New(documentStore, led),
		Txns:      txn.New(documentStore, led, formatterRegistry, formatter.Default.Code()),
		Reports:   report.New(documentStore),
	}

	router := server.New(svc)

	port := os.Getenv("API_PORT")
	if port == "" {
		port = "8000"
	}
	httpServer := &http.Server{Addr: fmt.Sprintf(":%s", port), Handler: router}

	go func() {
		logger.Info("server starting", zap.String("port", port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}
	logger.Info("server exited")
}
