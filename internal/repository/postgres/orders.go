package postgres

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"pharmabot/internal/domain"
	"pharmabot/internal/repository"
)

type orderRow struct {
	ID          int64     `db:"id"`
	PatientID   string    `db:"patient_id"`
	MedicineID  int64     `db:"medicine_id"`
	ProductName string    `db:"product_name"`
	Quantity    int64     `db:"quantity"`
	UnitPrice   float64   `db:"unit_price"`
	TotalPrice  float64   `db:"total_price"`
	Status      string    `db:"status"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r orderRow) toDomain() domain.Order {
	return domain.Order{
		ID:          r.ID,
		PatientID:   r.PatientID,
		MedicineID:  r.MedicineID,
		ProductName: r.ProductName,
		Quantity:    r.Quantity,
		UnitPrice:   r.UnitPrice,
		TotalPrice:  r.TotalPrice,
		Status:      domain.OrderStatus(r.Status),
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

const orderColumns = `id, patient_id, medicine_id, product_name, quantity, unit_price, total_price, status, created_at, updated_at`

// Orders is the PostgreSQL OrderRepository.
type Orders struct{ store *Store }

func NewOrders(store *Store) *Orders { return &Orders{store: store} }

var _ repository.OrderRepository = (*Orders)(nil)

func (r *Orders) Create(ctx context.Context, o *domain.Order) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	o.UpdatedAt = o.CreatedAt
	err := r.store.conn(ctx).QueryRowxContext(ctx,
		`INSERT INTO orders (patient_id, medicine_id, product_name, quantity, unit_price, total_price, status, created_at, updated_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
         RETURNING id`,
		o.PatientID, o.MedicineID, o.ProductName, o.Quantity, o.UnitPrice, o.TotalPrice, string(o.Status), o.CreatedAt, o.UpdatedAt,
	).Scan(&o.ID)
	return errors.Wrap(err, "insert order")
}

func (r *Orders) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	var row orderRow
	if err := r.store.conn(ctx).GetContext(ctx, &row,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id); err != nil {
		return nil, notFound(err)
	}
	o := row.toDomain()
	return &o, nil
}

func (r *Orders) Update(ctx context.Context, o *domain.Order) error {
	o.UpdatedAt = time.Now().UTC()
	res, err := r.store.conn(ctx).ExecContext(ctx,
		`UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3`,
		string(o.Status), o.UpdatedAt, o.ID)
	if err != nil {
		return errors.Wrap(err, "update order")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "update order")
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *Orders) List(ctx context.Context, f repository.OrderFilter) ([]domain.Order, error) {
	var rows []orderRow
	err := r.store.conn(ctx).SelectContext(ctx, &rows,
		`SELECT `+orderColumns+` FROM orders
         WHERE ($1 = '' OR patient_id = $1)
         ORDER BY created_at DESC, id DESC`, f.PatientID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	out := make([]domain.Order, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
