// Package eventbus implements the pub/sub client (C3): publish to one of
// the three topics, realized as three SQS queues, with the sidecar call
// wrapped in a circuit breaker. Grounded on the teacher's
// cmd/webhook-receiver/main.go (queueWebhookEvent's SendMessage +
// MessageAttributes shape) and cmd/webhook-processor/main.go (the
// lambda.Start(app.HandleSQSEvent) consumer shape).
package eventbus

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"poscore/internal/apperr"
	"poscore/internal/breaker"
)

// Topic names line up with constants.TopicTranLog etc; the bus maps each to
// a concrete queue URL at construction.
type Bus struct {
	client    *sqs.Client
	queueURLs map[string]string
	breaker   *breaker.Breaker
}

// New builds a Bus over an SQS client, a topic->queueURL map, and the
// shared circuit breaker guarding all sidecar publish calls.
func New(client *sqs.Client, queueURLs map[string]string, br *breaker.Breaker) *Bus {
	return &Bus{client: client, queueURLs: queueURLs, breaker: br}
}

// Publish sends payload to topic with messageAttributes (eventId, eventType,
// tenantId — mirroring the teacher's Provider/EventType/WorkspaceID
// attribute set) through the circuit breaker. Publish failures here do not
// imply the event is lost: the delivery-status ledger (C4) still owns the
// retry obligation per §4.5 step 2.
func (b *Bus) Publish(ctx context.Context, topic string, eventID string, payload any, attrs map[string]string) error {
	queueURL, ok := b.queueURLs[topic]
	if !ok {
		return apperr.Internal(apperr.Code(30, 2, 1), "event could not be published", errUnknownTopic{topic})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return apperr.Internal(apperr.Code(30, 2, 2), "event could not be published", err)
	}

	msgAttrs := map[string]types.MessageAttributeValue{
		"EventId": {DataType: aws.String("String"), StringValue: aws.String(eventID)},
	}
	for k, v := range attrs {
		msgAttrs[k] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
	}

	return b.breaker.Call(ctx, func(ctx context.Context) error {
		_, err := b.client.SendMessage(ctx, &sqs.SendMessageInput{
			QueueUrl:          aws.String(queueURL),
			MessageBody:       aws.String(string(body)),
			MessageAttributes: msgAttrs,
		})
		if err != nil {
			return apperr.Upstream(apperr.Code(30, 2, 3), "event could not be published", err)
		}
		return nil
	})
}

type errUnknownTopic struct{ topic string }

func (e errUnknownTopic) Error() string { return "unknown topic: " + e.topic }
