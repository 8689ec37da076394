package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ticketfight/appeal-service/internal/pkg/logger"
)

// Consumer long-polls the queue and runs handler for each job. Failed jobs
// are left on the queue and reappear after the visibility timeout.
type Consumer struct {
	client      SQSAPI
	queueURL    string
	handler     Handler
	waitSeconds int32
	visibility  int32
	errBackoff  time.Duration
	log         *logger.Logger
	done        chan struct{}
	stopOnce    sync.Once
}

func NewConsumer(client SQSAPI, queueURL string, handler Handler, waitSeconds, visibilitySeconds int32, log *logger.Logger) *Consumer {
	if log == nil {
		log = logger.Default()
	}
	return &Consumer{
		client:      client,
		queueURL:    queueURL,
		handler:     handler,
		waitSeconds: waitSeconds,
		visibility:  visibilitySeconds,
		errBackoff:  5 * time.Second,
		log:         log.With("component", "queue_consumer"),
		done:        make(chan struct{}),
	}
}

// Run polls until ctx is cancelled or Stop is called.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info("sqs consumer started", "queue", c.queueURL)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		default:
		}

		out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     c.waitSeconds,
			VisibilityTimeout:   c.visibility,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Warn("sqs receive failed", "error", err)
			select {
			case <-time.After(c.errBackoff):
			case <-ctx.Done():
				return nil
			}
			continue
		}

		for _, msg := range out.Messages {
			var job Job
			if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &job); err != nil || job.IntakeID == "" {
				c.log.Warn("dropping malformed job", "message_id", aws.ToString(msg.MessageId))
				c.delete(ctx, msg.ReceiptHandle)
				continue
			}
			if err := c.handler(ctx, job); err != nil {
				c.log.Warn("job failed, leaving for redelivery", "intake_id", job.IntakeID, "error", err)
				continue
			}
			c.delete(ctx, msg.ReceiptHandle)
		}
	}
}

func (c *Consumer) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

func (c *Consumer) delete(ctx context.Context, handle *string) {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: handle,
	})
	if err != nil {
		c.log.Warn("sqs delete failed", "error", err)
	}
}
