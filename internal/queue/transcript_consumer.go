package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"

	"smart_parkai/internal/domain"
	"smart_parkai/internal/logger"
	"smart_parkai/internal/service"
)

// SQSAPI is the subset of *sqs.Client the consumer uses.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// CommandApplier is implemented by *service.BookingService.
type CommandApplier interface {
	ApplyCommand(ctx context.Context, id string, u service.Utterance) (domain.CommandResult, *domain.BookingSession, error)
}

// errDiscard marks messages that can never succeed; they are deleted instead of redelivered.
var errDiscard = errors.New("message discarded")

// TranscriptConsumer applies transcripts produced by an external speech
// pipeline to booking sessions.
type TranscriptConsumer struct {
	client   SQSAPI
	queueURL string
	bookings CommandApplier
	log      *zap.Logger
	retry    time.Duration
}

func NewTranscriptConsumer(client SQSAPI, queueURL string, bookings CommandApplier, log *zap.Logger) *TranscriptConsumer {
	return &TranscriptConsumer{
		client:   client,
		queueURL: queueURL,
		bookings: bookings,
		log:      logger.OrNop(log),
		retry:    5 * time.Second,
	}
}

func (c *TranscriptConsumer) Start(ctx context.Context) {
	c.log.Info("transcript consumer listening", zap.String("queue_url", c.queueURL))
	for {
		select {
		case <-ctx.Done():
			c.log.Info("transcript consumer stopped")
			return
		default:
		}

		result, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
			VisibilityTimeout:   60,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("failed to receive messages", zap.Error(err))
			select {
			case <-time.After(c.retry):
			case <-ctx.Done():
				return
			}
			continue
		}

		for _, message := range result.Messages {
			body := aws.ToString(message.Body)
			err := c.Process(ctx, body)
			switch {
			case err == nil:
				c.deleteMessage(ctx, message.ReceiptHandle)
			case errors.Is(err, errDiscard):
				c.log.Warn("discarding transcript message", zap.String("message_id", aws.ToString(message.MessageId)), zap.Error(err))
				c.deleteMessage(ctx, message.ReceiptHandle)
			default:
				c.log.Warn("transcript message failed, will be redelivered after visibility timeout",
					zap.String("message_id", aws.ToString(message.MessageId)), zap.Error(err))
			}
		}
	}
}

// Process applies one message body. It returns an error wrapping errDiscard
// for malformed messages and messages addressed to sessions that no longer exist.
func (c *TranscriptConsumer) Process(ctx context.Context, body string) error {
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("%w: empty body", errDiscard)
	}
	var msg domain.TranscriptMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return fmt.Errorf("%w: %v", errDiscard, err)
	}
	if msg.SessionID == "" {
		return fmt.Errorf("%w: missing session_id", errDiscard)
	}

	result, _, err := c.bookings.ApplyCommand(ctx, msg.SessionID, service.TextUtterance(msg.Transcript))
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			return fmt.Errorf("%w: session %s: %v", errDiscard, msg.SessionID, err)
		}
		return err
	}
	c.log.Debug("transcript applied", zap.String("session_id", msg.SessionID), zap.Bool("understood", result.Understood))
	return nil
}

func (c *TranscriptConsumer) deleteMessage(ctx context.Context, receiptHandle *string) {
	if receiptHandle == nil {
		c.log.Warn("receipt handle is empty, cannot delete message")
		return
	}
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: receiptHandle,
	})
	if err != nil {
		c.log.Warn("failed to delete message", zap.Error(err))
	}
}
