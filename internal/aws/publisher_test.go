package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (f *fakeSQS) SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SendMessageOutput{}, nil
}

func TestPublisher_Send(t *testing.T) {
	q := &fakeSQS{}
	p := NewPublisher(q, "https://sqs.local/queue")

	err := p.Send(context.Background(), `{"order_id":1}`, map[string]string{"event": "order.placed"})
	require.NoError(t, err)
	require.Len(t, q.inputs, 1)

	in := q.inputs[0]
	assert.Equal(t, "https://sqs.local/queue", *in.QueueUrl)
	assert.Equal(t, `{"order_id":1}`, *in.MessageBody)
	require.Contains(t, in.MessageAttributes, "event")
	assert.Equal(t, "order.placed", *in.MessageAttributes["event"].StringValue)
	assert.Equal(t, "String", *in.MessageAttributes["event"].DataType)
}

func TestPublisher_SendError(t *testing.T) {
	q := &fakeSQS{err: errors.New("throttled")}
	p := NewPublisher(q, "q")

	err := p.Send(context.Background(), "{}", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
	assert.Nil(t, q.inputs[0].MessageAttributes)
}
