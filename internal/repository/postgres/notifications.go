package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"pharmabot/internal/domain"
	"pharmabot/internal/repository"
)

// Notifications is the PostgreSQL NotificationRepository.
type Notifications struct{ store *Store }

func NewNotifications(store *Store) *Notifications { return &Notifications{store: store} }

var _ repository.NotificationRepository = (*Notifications)(nil)

func (r *Notifications) Create(ctx context.Context, n *domain.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	_, err := r.store.conn(ctx).ExecContext(ctx,
		`INSERT INTO notifications (id, channel, event, recipient, subject, body, status, failure_reason, order_id, created_at, sent_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		n.ID, n.Channel, n.Event, n.Recipient, n.Subject, n.Body, string(n.Status), n.FailureReason, n.OrderID, n.CreatedAt, n.SentAt,
	)
	return errors.Wrap(err, "insert notification")
}

func (r *Notifications) Update(ctx context.Context, n *domain.Notification) error {
	res, err := r.store.conn(ctx).ExecContext(ctx,
		`UPDATE notifications SET status = $1, failure_reason = $2, sent_at = $3 WHERE id = $4`,
		string(n.Status), n.FailureReason, n.SentAt, n.ID)
	if err != nil {
		return errors.Wrap(err, "update notification")
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}
