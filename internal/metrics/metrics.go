// Package metrics publishes business counters (orders placed, safety blocks,
// refill alerts) to CloudWatch.
package metrics

import (
	"context"
	"sort"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/sirupsen/logrus"

	"pharmabot/internal/aws"
)

const (
	OrdersPlaced        = "OrdersPlaced"
	OrderRevenue        = "OrderRevenue"
	SafetyBlocks        = "SafetyBlocks"
	RefillAlertsCreated = "RefillAlertsCreated"
	NotificationsFailed = "NotificationsFailed"
	IntentFallbacks     = "IntentFallbacks"
)

// Recorder records a single data point. Implementations never fail the caller.
type Recorder interface {
	Count(ctx context.Context, name string, value float64, dims map[string]string)
}

// Nop discards every data point.
type Nop struct{}

func (Nop) Count(context.Context, string, float64, map[string]string) {}

// CloudWatch sends each data point with PutMetricData under a fixed namespace.
type CloudWatch struct {
	client    aws.CloudWatchAPI
	namespace string
	log       logrus.FieldLogger
	now       func() time.Time
}

func NewCloudWatch(client aws.CloudWatchAPI, namespace string, log logrus.FieldLogger) *CloudWatch {
	return &CloudWatch{
		client:    client,
		namespace: namespace,
		log:       log,
		now:       time.Now,
	}
}

func (c *CloudWatch) Count(ctx context.Context, name string, value float64, dims map[string]string) {
	keys := make([]string, 0, len(dims))
	for k := range dims {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	dimensions := make([]cwtypes.Dimension, 0, len(keys))
	for _, k := range keys {
		dimensions = append(dimensions, cwtypes.Dimension{
			Name:  sdkaws.String(k),
			Value: sdkaws.String(dims[k]),
		})
	}

	_, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: sdkaws.String(c.namespace),
		MetricData: []cwtypes.MetricDatum{{
			MetricName: sdkaws.String(name),
			Dimensions: dimensions,
			Timestamp:  sdkaws.Time(c.now()),
			Unit:       cwtypes.StandardUnitCount,
			Value:      sdkaws.Float64(value),
		}},
	})
	if err != nil {
		c.log.WithError(err).WithField("metric", name).Warn("put metric data failed")
	}
}
