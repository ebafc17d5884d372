// Package fulfillment picks placed orders off the notification queue and
// hands them to the warehouse by moving them to processing.
package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/sirupsen/logrus"

	"pharmabot/internal/domain"
	"pharmabot/internal/notify"
)

// Orders is the part of the order service the processor needs.
type Orders interface {
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	AdvanceStatus(ctx context.Context, id int64, next domain.OrderStatus) (*domain.Order, error)
}

// Processor handles SQS batches carrying notify.Message payloads.
type Processor struct {
	orders Orders
	log    logrus.FieldLogger
}

func NewProcessor(orders Orders, log logrus.FieldLogger) *Processor {
	return &Processor{orders: orders, log: log}
}

// Handle processes every record. Returning an error makes Lambda retry the
// batch and eventually send it to the DLQ.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) error {
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.log.WithError(err).WithField("message_id", rec.MessageId).Error("fulfillment failed")
			return err
		}
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var msg notify.Message
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}
	log := p.log.WithFields(logrus.Fields{"event": msg.Event, "order_id": msg.OrderID})
	if msg.Event != notify.EventOrderPlaced {
		log.Debug("not an order event, skipping")
		return nil
	}
	if msg.OrderID <= 0 {
		return fmt.Errorf("order event without order_id")
	}

	_, err := p.orders.AdvanceStatus(ctx, msg.OrderID, domain.OrderStatusProcessing)
	if errors.Is(err, domain.ErrInvalidState) {
		// redelivery: anything past placed was already handled
		current, getErr := p.orders.GetOrder(ctx, msg.OrderID)
		if getErr != nil {
			return fmt.Errorf("failed to fetch order: %w", getErr)
		}
		log.WithField("status", current.Status).Info("duplicate order event")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to move order %d to processing: %w", msg.OrderID, err)
	}
	log.Info("order sent to fulfillment")
	return nil
}
