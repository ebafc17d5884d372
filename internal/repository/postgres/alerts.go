package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"pharmabot/internal/domain"
	"pharmabot/internal/repository"
)

type alertRow struct {
	ID              string    `db:"id"`
	AlertKey        string    `db:"alert_key"`
	PatientID       string    `db:"patient_id"`
	ProductName     string    `db:"product_name"`
	Quantity        int64     `db:"quantity"`
	DaysUntilRefill int       `db:"days_until_refill"`
	DueDate         time.Time `db:"due_date"`
	AlertDay        string    `db:"alert_day"`
	Status          string    `db:"status"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (r alertRow) toDomain() domain.RefillAlert {
	return domain.RefillAlert{
		ID:              r.ID,
		PatientID:       r.PatientID,
		ProductName:     r.ProductName,
		Quantity:        r.Quantity,
		DaysUntilRefill: r.DaysUntilRefill,
		DueDate:         r.DueDate.UTC(),
		AlertDay:        r.AlertDay,
		Status:          domain.AlertStatus(r.Status),
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}

const alertColumns = `id, alert_key, patient_id, product_name, quantity, days_until_refill, due_date, alert_day, status, created_at, updated_at`

// Alerts is the PostgreSQL RefillAlertRepository.
type Alerts struct{ store *Store }

func NewAlerts(store *Store) *Alerts { return &Alerts{store: store} }

var _ repository.RefillAlertRepository = (*Alerts)(nil)

func (r *Alerts) CreateIfAbsent(ctx context.Context, a *domain.RefillAlert) (*domain.RefillAlert, bool, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = domain.AlertStatusPending
	}
	now := time.Now().UTC()
	var row alertRow
	err := r.store.conn(ctx).GetContext(ctx, &row,
		`INSERT INTO refill_alerts (`+alertColumns+`)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
         ON CONFLICT (alert_key) DO NOTHING
         RETURNING `+alertColumns,
		a.ID, a.Key(), a.PatientID, a.ProductName, a.Quantity, a.DaysUntilRefill, a.DueDate, a.AlertDay, string(a.Status), now)
	if err == nil {
		out := row.toDomain()
		return &out, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, errors.Wrap(err, "insert refill alert")
	}
	if err := r.store.conn(ctx).GetContext(ctx, &row,
		`SELECT `+alertColumns+` FROM refill_alerts WHERE alert_key = $1`, a.Key()); err != nil {
		return nil, false, errors.Wrap(err, "load existing refill alert")
	}
	out := row.toDomain()
	return &out, false, nil
}

func (r *Alerts) GetByID(ctx context.Context, id string) (*domain.RefillAlert, error) {
	var row alertRow
	if err := r.store.conn(ctx).GetContext(ctx, &row,
		`SELECT `+alertColumns+` FROM refill_alerts WHERE id = $1`, id); err != nil {
		return nil, notFound(err)
	}
	out := row.toDomain()
	return &out, nil
}

func (r *Alerts) UpdateStatus(ctx context.Context, id string, status domain.AlertStatus) (*domain.RefillAlert, error) {
	var row alertRow
	if err := r.store.conn(ctx).GetContext(ctx, &row,
		`UPDATE refill_alerts SET status = $1, updated_at = now() WHERE id = $2 RETURNING `+alertColumns,
		string(status), id); err != nil {
		return nil, notFound(err)
	}
	out := row.toDomain()
	return &out, nil
}

func (r *Alerts) List(ctx context.Context, status domain.AlertStatus) ([]domain.RefillAlert, error) {
	var rows []alertRow
	if err := r.store.conn(ctx).SelectContext(ctx, &rows,
		`SELECT `+alertColumns+` FROM refill_alerts
         WHERE ($1 = '' OR status = $1)
         ORDER BY created_at DESC, alert_key`, string(status)); err != nil {
		return nil, errors.Wrap(err, "list refill alerts")
	}
	out := make([]domain.RefillAlert, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
