// cmd/journal-consumer drains topic-tranlog/topic-cashlog/topic-opencloselog
// into the journal (C10). Dual Lambda/local shape grounded on the teacher's
// cmd/webhook-processor/main.go: HandleSQSEvent processes one Lambda batch;
// in local/dev there is no Lambda trigger, so a polling loop calls
// ReceiveMessage/DeleteMessage directly against the same queues.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"poscore/internal/breaker"
	"poscore/internal/config"
	"poscore/internal/constants"
	"poscore/internal/eventbus"
	"poscore/internal/helpers"
	"poscore/internal/journal"
	"poscore/internal/ledger"
	"poscore/internal/logger"
	"poscore/internal/model"
	"poscore/internal/statestore"
	"poscore/internal/store"
)

type application struct {
	consumer  *journal.Consumer
	sqsClient *sqs.Client
	queueURLs map[string]string
}

// HandleSQSEvent processes one Lambda-delivered batch of records.
func (a *application) HandleSQSEvent(ctx context.Context, sqsEvent events.SQSEvent) error {
	for _, record := range sqsEvent.Records {
		if err := a.processRecord(ctx, record); err != nil {
			logger.Error("failed to process journal record", zap.String("messageId", record.MessageId), zap.Error(err))
			return fmt.Errorf("processing message %s: %w", record.MessageId, err)
		}
	}
	return nil
}

func (a *application) processRecord(ctx context.Context, record events.SQSMessage) error {
	tenantID := eventbus.Attribute(record, "TenantId")
	eventType := eventbus.Attribute(record, "EventType")

	switch eventType {
	case "transaction":
		var event model.TransactionEvent
		if err := json.Unmarshal([]byte(record.Body), &event); err != nil {
			return err
		}
		return a.consumer.HandleTransactionEvent(ctx, tenantID, event)
	case "cash":
		var event model.CashEvent
		if err := json.Unmarshal([]byte(record.Body), &event); err != nil {
			return err
		}
		return a.consumer.HandleCashEvent(ctx, tenantID, event)
	case "session":
		var event model.SessionEvent
		if err := json.Unmarshal([]byte(record.Body), &event); err != nil {
			return err
		}
		return a.consumer.HandleSessionEvent(ctx, tenantID, event)
	default:
		logger.Warn("ignoring record with unrecognized EventType", zap.String("eventType", eventType))
		return nil
	}
}

// runLocalLoop polls every configured queue directly, since there is no
// Lambda event source mapping driving this process in local/dev.
func (a *application) runLocalLoop(ctx context.Context) {
	for {
		for topic, queueURL := range a.queueURLs {
			if queueURL == "" {
				continue
			}
			a.drainQueue(ctx, topic, queueURL)
		}
		select {
		case <-time.After(2 * time.Second):
		case <-ctx.Done():
			return
		}
	}
}

func (a *application) drainQueue(ctx context.Context, topic, queueURL string) {
	out, err := a.sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              &queueURL,
		MaxNumberOfMessages:   10,
		WaitTimeSeconds:       5,
		MessageAttributeNames: []string{"All"},
	})
	if err != nil {
		logger.Error("receive message failed", zap.String("topic", topic), zap.Error(err))
		return
	}

	for _, msg := range out.Messages {
		record := toSQSMessage(msg)
		if err := a.processRecord(ctx, record); err != nil {
			logger.Error("failed to process journal record", zap.String("messageId", record.MessageId), zap.Error(err))
			continue
		}
		if _, err := a.sqsClient.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      &queueURL,
			ReceiptHandle: msg.ReceiptHandle,
		}); err != nil {
			logger.Error("failed to delete processed message", zap.String("messageId", record.MessageId), zap.Error(err))
		}
	}
}

func toSQSMessage(msg sqstypes.Message) events.SQSMessage {
	attrs := make(map[string]events.SQSMessageAttribute, len(msg.MessageAttributes))
	for name, attr := range msg.MessageAttributes {
		attrs[name] = events.SQSMessageAttribute{StringValue: attr.StringValue}
	}
	var body, messageID string
	if msg.Body != nil {
		body = *msg.Body
	}
	if msg.MessageId != nil {
		messageID = *msg.MessageId
	}
	return events.SQSMessage{MessageId: messageID, Body: body, MessageAttributes: attrs}
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
	stateStore := statestore.New(cfg.RedisAddr, cfg.RedisDB)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Fatal("loading aws config", zap.Error(err))
	}
	sqsClient := sqs.NewFromConfig(awsCfg)

	br := breaker.New(cfg.BreakerFailureThreshold, cfg.BreakerResetTimeout)
	queueURLs := map[string]string{
		constants.TopicTranLog:      cfg.QueueURLTranLog,
		constants.TopicCashLog:      cfg.QueueURLCashLog,
		constants.TopicOpenCloseLog: cfg.QueueURLOpenCloseLog,
	}
	bus := eventbus.New(sqsClient, queueURLs, br)
	subscribers := []string{constants.SubscriberJournal, constants.SubscriberReport, constants.SubscriberStock}
	led := ledger.New(documentStore, bus, subscribers)

	app := &application{
		consumer:  journal.New(documentStore, stateStore, led, cfg.DedupTTL),
		sqsClient: sqsClient,
		queueURLs: queueURLs,
	}

	if stage == constants.StageLocal {
		app.runLocalLoop(ctx)
		return
	}
	lambda.Start(app.HandleSQSEvent)
}
