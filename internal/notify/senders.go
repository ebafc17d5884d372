package notify

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"pharmabot/internal/aws"
)

// LogSender writes the message to the application log.
type LogSender struct {
	log logrus.FieldLogger
}

func NewLogSender(log logrus.FieldLogger) *LogSender { return &LogSender{log: log} }

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.log.WithFields(logrus.Fields{
		"event":      msg.Event,
		"recipient":  msg.Recipient,
		"patient_id": msg.PatientID,
		"order_id":   msg.OrderID,
	}).Infof("notification: %s", msg.Subject)
	return nil
}

// WebhookSender POSTs the message as JSON, authenticating with a bearer token.
type WebhookSender struct {
	url    string
	token  string
	client *http.Client
}

func NewWebhookSender(url, token string, timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookSender{url: url, token: token, client: &http.Client{Timeout: timeout}}
}

func (s *WebhookSender) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal webhook payload")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "webhook request")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// QueueSender publishes the message to SQS with the event as a message attribute.
type QueueSender struct {
	publisher *aws.Publisher
}

func NewQueueSender(publisher *aws.Publisher) *QueueSender { return &QueueSender{publisher: publisher} }

func (s *QueueSender) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal queue message")
	}
	attrs := map[string]string{"event": msg.Event}
	if msg.PatientID != "" {
		attrs["patient_id"] = msg.PatientID
	}
	return s.publisher.Send(ctx, string(body), attrs)
}

// PGNotifySender emits the message on a PostgreSQL NOTIFY channel so dashboards
// listening on the same database see it immediately.
type PGNotifySender struct {
	db      *sql.DB
	channel string
}

func NewPGNotifySender(db *sql.DB, channel string) *PGNotifySender {
	return &PGNotifySender{db: db, channel: channel}
}

func (s *PGNotifySender) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal notify payload")
	}
	// NOTIFY takes no bind parameters
	stmt := fmt.Sprintf("NOTIFY %s, %s", pq.QuoteIdentifier(s.channel), pq.QuoteLiteral(string(payload)))
	_, err = s.db.ExecContext(ctx, stmt)
	return errors.Wrap(err, "pg notify")
}
