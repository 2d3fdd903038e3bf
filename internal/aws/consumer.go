package aws

import (
	"context"
	"errors"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/smithy-go"
	"github.com/sirupsen/logrus"
)

// MessageHandler processes one message body. Returning nil deletes the
// message; an error leaves it on the queue for redelivery.
type MessageHandler func(ctx context.Context, body string) error

// Consumer long-polls an SQS queue and hands each message to a handler, one
// at a time.
type Consumer struct {
	SQS         SQSAPI
	QueueURL    string
	WaitSeconds int32
	MaxMessages int32
	Backoff     time.Duration // pause after a failed receive

	log *logrus.Entry
}

// NewConsumer returns a Consumer with long polling enabled.
func NewConsumer(sqsClient SQSAPI, queueURL string, log *logrus.Entry) *Consumer {
	return &Consumer{
		SQS:         sqsClient,
		QueueURL:    queueURL,
		WaitSeconds: 20,
		MaxMessages: 10,
		Backoff:     5 * time.Second,
		log:         log,
	}
}

// Run polls until ctx is cancelled. It only returns nil.
func (c *Consumer) Run(ctx context.Context, handle MessageHandler) error {
	c.log.WithField("queue_url", c.QueueURL).Info("consuming queue")
	for {
		if ctx.Err() != nil {
			return nil
		}
		out, err := c.SQS.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            &c.QueueURL,
			MaxNumberOfMessages: c.MaxMessages,
			WaitTimeSeconds:     c.WaitSeconds,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logAPIError(err, "receive messages failed")
			if !sleepCtx(ctx, c.Backoff) {
				return nil
			}
			continue
		}

		for _, m := range out.Messages {
			entry := c.log.WithField("message_id", sdkaws.ToString(m.MessageId))
			if err := handle(ctx, sdkaws.ToString(m.Body)); err != nil {
				entry.WithError(err).Warn("message left on queue for redelivery")
				continue
			}
			_, err := c.SQS.DeleteMessage(ctx, &sqs.DeleteMessageInput{
				QueueUrl:      &c.QueueURL,
				ReceiptHandle: m.ReceiptHandle,
			})
			if err != nil {
				c.logAPIError(err, "delete message failed")
			}
		}
	}
}

func (c *Consumer) logAPIError(err error, msg string) {
	entry := c.log.WithError(err)
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		entry = entry.WithFields(logrus.Fields{
			"aws_code":    apiErr.ErrorCode(),
			"aws_message": apiErr.ErrorMessage(),
		})
	}
	entry.Error(msg)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
