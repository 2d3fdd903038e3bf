package ingest

import (
	"context"
	"fmt"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/imrishuroy/go-mailorder-bridge/internal/aws"
	"github.com/imrishuroy/go-mailorder-bridge/internal/orders"
)

// EventOrderIngested is the event name published for every stored order.
const EventOrderIngested = "order.ingested"

// IngestedEvent is the body of the notification message.
type IngestedEvent struct {
	Event   string `json:"event"`
	OrderID string `json:"order_id"`
	Bucket  string `json:"bucket"`
	File    string `json:"file"`
}

// NotifyHook publishes an IngestedEvent to an SQS queue.
type NotifyHook struct {
	Publisher *aws.Publisher
}

func (NotifyHook) Name() string { return "notify" }

func (n NotifyHook) OrderStored(ctx context.Context, doc *orders.Document, h orders.Handle) error {
	event := IngestedEvent{
		Event:   EventOrderIngested,
		OrderID: doc.ID(),
		Bucket:  string(h.Bucket),
		File:    h.Name,
	}
	return n.Publisher.PublishJSON(ctx, event, map[string]string{"event": EventOrderIngested})
}

// CloudWatchHook emits an OrdersIngested count per stored order.
type CloudWatchHook struct {
	Client    aws.CloudWatchAPI
	Namespace string
	nowFunc   func() time.Time
}

// NewCloudWatchHook returns a hook publishing into namespace.
func NewCloudWatchHook(client aws.CloudWatchAPI, namespace string) *CloudWatchHook {
	return &CloudWatchHook{Client: client, Namespace: namespace, nowFunc: time.Now}
}

func (*CloudWatchHook) Name() string { return "cloudwatch" }

func (c *CloudWatchHook) OrderStored(ctx context.Context, doc *orders.Document, h orders.Handle) error {
	_, err := c.Client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: sdkaws.String(c.Namespace),
		MetricData: []cwtypes.MetricDatum{{
			MetricName: sdkaws.String("OrdersIngested"),
			Unit:       cwtypes.StandardUnitCount,
			Value:      sdkaws.Float64(1),
			Timestamp:  sdkaws.Time(c.nowFunc()),
		}},
	})
	if err != nil {
		return fmt.Errorf("put metric data: %w", err)
	}
	return nil
}
