package aws_test

import (
	"context"
	"errors"
	"testing"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"

	internalaws "github.com/imrishuroy/go-mailorder-bridge/internal/aws"
	"github.com/imrishuroy/go-mailorder-bridge/internal/aws/awstest"
)

func TestPublisher_Send(t *testing.T) {
	fake := &awstest.SQS{}
	p := internalaws.NewPublisher(fake, "https://sqs.local/notify")

	err := p.Send(context.Background(), `{"a":1}`, map[string]string{"event": "order.ingested"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.Sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(fake.Sent))
	}
	in := fake.Sent[0]
	if sdkaws.ToString(in.QueueUrl) != "https://sqs.local/notify" {
		t.Fatalf("queue url mismatch: %s", sdkaws.ToString(in.QueueUrl))
	}
	attr, ok := in.MessageAttributes["event"]
	if !ok || sdkaws.ToString(attr.StringValue) != "order.ingested" || sdkaws.ToString(attr.DataType) != "String" {
		t.Fatalf("attribute not set correctly: %+v", in.MessageAttributes)
	}
}

func TestPublisher_PublishJSON(t *testing.T) {
	fake := &awstest.SQS{}
	p := internalaws.NewPublisher(fake, "q")

	event := struct {
		Event   string `json:"event"`
		OrderID string `json:"order_id"`
	}{"order.ingested", "A1"}
	if err := p.PublishJSON(context.Background(), event, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := fake.SentBodies(); len(got) != 1 || got[0] != `{"event":"order.ingested","order_id":"A1"}` {
		t.Fatalf("unexpected body: %v", got)
	}
	if fake.Sent[0].MessageAttributes != nil {
		t.Fatalf("expected no attributes")
	}
}

func TestPublisher_SendError(t *testing.T) {
	boom := errors.New("boom")
	p := internalaws.NewPublisher(&awstest.SQS{SendErr: boom}, "q")
	if err := p.Send(context.Background(), "x", nil); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped send error, got %v", err)
	}
}
