package fulfillment

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmabot/internal/domain"
	"pharmabot/internal/notify"
)

type fakeOrders struct {
	orders   map[int64]*domain.Order
	advances int
}

func (f *fakeOrders) GetOrder(_ context.Context, id int64) (*domain.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrders) AdvanceStatus(_ context.Context, id int64, next domain.OrderStatus) (*domain.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if expected, ok := o.Status.Next(); !ok || expected != next {
		return nil, domain.ErrInvalidState
	}
	f.advances++
	o.Status = next
	cp := *o
	return &cp, nil
}

func record(t *testing.T, msg notify.Message) events.SQSMessage {
	t.Helper()
	b, err := json.Marshal(msg)
	require.NoError(t, err)
	return events.SQSMessage{MessageId: "m-1", Body: string(b)}
}

func newProcessor(orders *fakeOrders) *Processor {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewProcessor(orders, log)
}

func TestHandle_MovesPlacedToProcessing(t *testing.T) {
	orders := &fakeOrders{orders: map[int64]*domain.Order{7: {ID: 7, Status: domain.OrderStatusPlaced}}}
	p := newProcessor(orders)

	ev := events.SQSEvent{Records: []events.SQSMessage{record(t, notify.Message{Event: notify.EventOrderPlaced, OrderID: 7})}}
	require.NoError(t, p.Handle(context.Background(), ev))
	assert.Equal(t, domain.OrderStatusProcessing, orders.orders[7].Status)

	// redelivery is a no-op
	require.NoError(t, p.Handle(context.Background(), ev))
	assert.Equal(t, 1, orders.advances)
	assert.Equal(t, domain.OrderStatusProcessing, orders.orders[7].Status)
}

func TestHandle_SkipsOtherEvents(t *testing.T) {
	orders := &fakeOrders{orders: map[int64]*domain.Order{}}
	p := newProcessor(orders)
	ev := events.SQSEvent{Records: []events.SQSMessage{
		record(t, notify.Message{Event: notify.EventRefillDue, PatientID: "P1"}),
		record(t, notify.Message{Event: notify.EventLowStock}),
	}}
	require.NoError(t, p.Handle(context.Background(), ev))
	assert.Zero(t, orders.advances)
}

func TestHandle_Errors(t *testing.T) {
	p := newProcessor(&fakeOrders{orders: map[int64]*domain.Order{}})

	t.Run("bad body", func(t *testing.T) {
		err := p.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{{Body: "{"}}})
		assert.Error(t, err)
	})
	t.Run("unknown order", func(t *testing.T) {
		ev := events.SQSEvent{Records: []events.SQSMessage{record(t, notify.Message{Event: notify.EventOrderPlaced, OrderID: 99})}}
		assert.ErrorIs(t, p.Handle(context.Background(), ev), domain.ErrNotFound)
	})
	t.Run("missing id", func(t *testing.T) {
		ev := events.SQSEvent{Records: []events.SQSMessage{record(t, notify.Message{Event: notify.EventOrderPlaced})}}
		assert.Error(t, p.Handle(context.Background(), ev))
	})
}
