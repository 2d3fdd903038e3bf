// Package awstest provides in-memory fakes of the AWS client interfaces.
package awstest

import (
	"context"
	"fmt"
	"sync"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQS is a very small in-memory queue. Every Receive call pops the next
// scripted batch; once the script is exhausted OnDrained is invoked and an
// empty batch is returned.
type SQS struct {
	mu sync.Mutex

	Sent      []*sqs.SendMessageInput
	Deleted   []string
	Batches   [][]sqstypes.Message
	SendErr   error
	RecvErrs  []error // consumed before Batches, one per call
	OnDrained func()

	receiveCalls int
}

// Message builds a queue message with the given body.
func Message(n int, body string) sqstypes.Message {
	return sqstypes.Message{
		MessageId:     sdkaws.String(fmt.Sprintf("m%d", n)),
		ReceiptHandle: sdkaws.String(fmt.Sprintf("r%d", n)),
		Body:          sdkaws.String(body),
	}
}

func (f *SQS) SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return nil, f.SendErr
	}
	f.Sent = append(f.Sent, in)
	return &sqs.SendMessageOutput{MessageId: sdkaws.String(fmt.Sprintf("sent-%d", len(f.Sent)))}, nil
}

func (f *SQS) ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	f.receiveCalls++
	if len(f.RecvErrs) > 0 {
		err := f.RecvErrs[0]
		f.RecvErrs = f.RecvErrs[1:]
		f.mu.Unlock()
		return nil, err
	}
	if len(f.Batches) > 0 {
		batch := f.Batches[0]
		f.Batches = f.Batches[1:]
		f.mu.Unlock()
		return &sqs.ReceiveMessageOutput{Messages: batch}, nil
	}
	drained := f.OnDrained
	f.mu.Unlock()
	if drained != nil {
		drained()
	}
	return &sqs.ReceiveMessageOutput{}, nil
}

func (f *SQS) DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Deleted = append(f.Deleted, sdkaws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

// ReceiveCalls reports how many times ReceiveMessage was invoked.
func (f *SQS) ReceiveCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.receiveCalls
}

// SentBodies returns the bodies of all sent messages in order.
func (f *SQS) SentBodies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.Sent))
	for _, in := range f.Sent {
		out = append(out, sdkaws.ToString(in.MessageBody))
	}
	return out
}

// CloudWatch records PutMetricData calls.
type CloudWatch struct {
	mu sync.Mutex

	Data []cwtypes.MetricDatum
	Err  error
}

func (f *CloudWatch) PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	f.Data = append(f.Data, in.MetricData...)
	return &cloudwatch.PutMetricDataOutput{}, nil
}
