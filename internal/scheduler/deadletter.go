package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"dealwire/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// deadLetterRecord is the message body published for a poison item. The
// payload carries identifiers and accounting only, never the notification
// content.
type deadLetterRecord struct {
	ItemID       string `json:"item_id"`
	RecipientID  string `json:"recipient_id"`
	Category     string `json:"category"`
	Attempts     int    `json:"attempts"`
	ScheduledFor string `json:"scheduled_for"`
	Reason       string `json:"reason"`
}

// Compile-time assertion that SQSDeadLetter implements DeadLetterPublisher.
var _ DeadLetterPublisher = (*SQSDeadLetter)(nil)

// SQSDeadLetter publishes poison queue items to a dead-letter SQS queue for
// offline inspection. When no queue URL is configured it degrades to
// log-only.
type SQSDeadLetter struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewSQSDeadLetter creates an SQSDeadLetter. queueURL may be empty to
// disable publishing.
func NewSQSDeadLetter(client SQSSender, queueURL string, logger *slog.Logger) *SQSDeadLetter {
	return &SQSDeadLetter{client: client, queueURL: queueURL, logger: logger}
}

// Publish serializes the poison item record and sends it to the dead-letter
// queue.
func (d *SQSDeadLetter) Publish(ctx context.Context, item *types.QueuedNotification) error {
	if d.queueURL == "" {
		d.logger.WarnContext(ctx, "dead-letter queue not configured",
			"item_id", item.ID,
			"attempts", item.Attempts,
		)
		return nil
	}

	body, err := json.Marshal(deadLetterRecord{
		ItemID:       item.ID,
		RecipientID:  item.RecipientID,
		Category:     string(item.Category),
		Attempts:     item.Attempts,
		ScheduledFor: item.ScheduledFor.UTC().Format(time.RFC3339),
		Reason:       string(types.SkipMaxAttempts),
	})
	if err != nil {
		return fmt.Errorf("deadletter: failed to marshal record: %w", err)
	}

	_, err = d.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(d.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"reason": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(types.SkipMaxAttempts)),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("deadletter: failed to send to %s: %w", d.queueURL, err)
	}

	d.logger.InfoContext(ctx, "poison item dead-lettered",
		"item_id", item.ID,
		"recipient_id", item.RecipientID,
		"attempts", item.Attempts,
	)

	return nil
}
