package metrics

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (f *fakeCloudWatch) PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.inputs = append(f.inputs, in)
	return &cloudwatch.PutMetricDataOutput{}, f.err
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestCloudWatch_Count(t *testing.T) {
	cw := &fakeCloudWatch{}
	rec := NewCloudWatch(cw, "Pharmabot", quietLogger())

	rec.Count(context.Background(), OrdersPlaced, 1, map[string]string{"product": "Paracetamol", "channel": "chat"})

	require.Len(t, cw.inputs, 1)
	in := cw.inputs[0]
	assert.Equal(t, "Pharmabot", *in.Namespace)
	require.Len(t, in.MetricData, 1)
	d := in.MetricData[0]
	assert.Equal(t, OrdersPlaced, *d.MetricName)
	assert.Equal(t, 1.0, *d.Value)
	assert.Equal(t, cwtypes.StandardUnitCount, d.Unit)
	require.Len(t, d.Dimensions, 2)
	assert.Equal(t, "channel", *d.Dimensions[0].Name)
	assert.Equal(t, "product", *d.Dimensions[1].Name)
}

func TestCloudWatch_ErrorIsSwallowed(t *testing.T) {
	cw := &fakeCloudWatch{err: errors.New("denied")}
	rec := NewCloudWatch(cw, "Pharmabot", quietLogger())

	assert.NotPanics(t, func() {
		rec.Count(context.Background(), SafetyBlocks, 1, nil)
	})
	assert.Len(t, cw.inputs, 1)
}
