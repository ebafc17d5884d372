// Package notify fans order and refill events out to the configured channels.
// Delivery is at-most-once: failures are recorded and logged, never returned.
package notify

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"pharmabot/internal/domain"
	"pharmabot/internal/metrics"
	"pharmabot/internal/repository"
)

const (
	ChannelLog      = "log"
	ChannelWebhook  = "webhook"
	ChannelQueue    = "queue"
	ChannelPGNotify = "pgnotify"
)

const (
	EventOrderPlaced = "order.placed"
	EventRefillDue   = "refill.due"
	EventLowStock    = "stock.low"
)

// Message is one notification before it is fanned out.
type Message struct {
	Event     string            `json:"event"`
	Recipient string            `json:"recipient"`
	Subject   string            `json:"subject"`
	Body      string            `json:"body"`
	OrderID   int64             `json:"order_id,omitempty"`
	PatientID string            `json:"patient_id,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
}

// Sender delivers a message over one channel.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Dispatcher рассылает уведомления по всем настроенным каналам
type Dispatcher struct {
	repo    repository.NotificationRepository
	senders map[string]Sender
	async   bool
	metrics metrics.Recorder
	log     logrus.FieldLogger
	wg      sync.WaitGroup
}

func NewDispatcher(repo repository.NotificationRepository, senders map[string]Sender, async bool, rec metrics.Recorder, log logrus.FieldLogger) *Dispatcher {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Dispatcher{repo: repo, senders: senders, async: async, metrics: rec, log: log}
}

// Channels returns the configured channel names in stable order.
func (d *Dispatcher) Channels() []string {
	out := make([]string, 0, len(d.senders))
	for ch := range d.senders {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

// Dispatch sends msg on every channel. In async mode it returns immediately
// and the caller's cancellation does not abort delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) {
	if d.async {
		ctx = context.WithoutCancel(ctx)
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.fanOut(ctx, msg)
		}()
		return
	}
	d.fanOut(ctx, msg)
}

// Wait blocks until all asynchronous deliveries have finished.
func (d *Dispatcher) Wait() { d.wg.Wait() }

func (d *Dispatcher) fanOut(ctx context.Context, msg Message) {
	for _, ch := range d.Channels() {
		d.send(ctx, ch, d.senders[ch], msg)
	}
}

func (d *Dispatcher) send(ctx context.Context, channel string, sender Sender, msg Message) {
	log := d.log.WithFields(logrus.Fields{"channel": channel, "event": msg.Event, "order_id": msg.OrderID})
	n := &domain.Notification{
		Channel:   channel,
		Event:     msg.Event,
		Recipient: msg.Recipient,
		Subject:   msg.Subject,
		Body:      msg.Body,
		Status:    domain.NotificationPending,
		OrderID:   msg.OrderID,
		CreatedAt: time.Now().UTC(),
	}
	recorded := true
	if err := d.repo.Create(ctx, n); err != nil {
		recorded = false
		log.WithError(err).Warn("could not record notification")
	}

	if err := sender.Send(ctx, msg); err != nil {
		n.Status = domain.NotificationFailed
		n.FailureReason = err.Error()
		log.WithError(fmt.Errorf("%w: %v", domain.ErrNotificationFailure, err)).Error("notification not delivered")
		d.metrics.Count(ctx, metrics.NotificationsFailed, 1, map[string]string{"channel": channel})
	} else {
		now := time.Now().UTC()
		n.Status = domain.NotificationSent
		n.SentAt = &now
		log.Debug("notification sent")
	}

	if recorded {
		if err := d.repo.Update(ctx, n); err != nil {
			log.WithError(err).Warn("could not update notification status")
		}
	}
}
