package eventbus

import (
	"github.com/aws/aws-lambda-go/events"
)

// Attribute reads a string message attribute off an SQS record, mirroring
// the teacher's extraction of WorkspaceID/Provider/EventType in
// cmd/webhook-processor/main.go's processWebhookRecord.
func Attribute(record events.SQSMessage, name string) string {
	attr, ok := record.MessageAttributes[name]
	if !ok || attr.StringValue == nil {
		return ""
	}
	return *attr.StringValue
}
