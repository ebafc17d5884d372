package postgres

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"pharmabot/internal/domain"
	"pharmabot/internal/repository"
)

type medicineRow struct {
	ID                   int64          `db:"id"`
	ProductCode          string         `db:"product_code"`
	Name                 string         `db:"name"`
	Description          string         `db:"description"`
	Category             string         `db:"category"`
	Indications          pq.StringArray `db:"indications"`
	PackageSize          string         `db:"package_size"`
	Price                float64        `db:"price"`
	Stock                int64          `db:"stock"`
	RequiresPrescription bool           `db:"prescription_required"`
}

func (r medicineRow) toDomain() *domain.Medicine {
	return &domain.Medicine{
		ID:                   r.ID,
		ProductCode:          r.ProductCode,
		Name:                 r.Name,
		Description:          r.Description,
		Category:             r.Category,
		Indications:          []string(r.Indications),
		PackageSize:          r.PackageSize,
		Price:                r.Price,
		Stock:                r.Stock,
		RequiresPrescription: r.RequiresPrescription,
	}
}

const medicineColumns = `id, product_code, name, description, category, indications, package_size, price, stock, prescription_required`

// Medicines is the PostgreSQL MedicineRepository.
type Medicines struct{ store *Store }

func NewMedicines(store *Store) *Medicines { return &Medicines{store: store} }

var _ repository.MedicineRepository = (*Medicines)(nil)

func (r *Medicines) Create(ctx context.Context, m *domain.Medicine) error {
	err := r.store.conn(ctx).QueryRowxContext(ctx,
		`INSERT INTO medicines (product_code, name, description, category, indications, package_size, price, stock, prescription_required)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
         RETURNING id`,
		m.ProductCode, m.Name, m.Description, m.Category, pq.Array(m.Indications), m.PackageSize, m.Price, m.Stock, m.RequiresPrescription,
	).Scan(&m.ID)
	if isUniqueViolation(err) {
		return repository.ErrAlreadyExists
	}
	return errors.Wrap(err, "insert medicine")
}

func (r *Medicines) GetByID(ctx context.Context, id int64) (*domain.Medicine, error) {
	var row medicineRow
	err := r.store.conn(ctx).GetContext(ctx, &row,
		`SELECT `+medicineColumns+` FROM medicines WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err)
	}
	return row.toDomain(), nil
}

func (r *Medicines) GetByName(ctx context.Context, name string) (*domain.Medicine, error) {
	var row medicineRow
	err := r.store.conn(ctx).GetContext(ctx, &row,
		`SELECT `+medicineColumns+` FROM medicines WHERE lower(name) = lower(trim($1))`, name)
	if err != nil {
		return nil, notFound(err)
	}
	return row.toDomain(), nil
}

func (r *Medicines) List(ctx context.Context, f repository.MedicineFilter) ([]domain.Medicine, error) {
	var rows []medicineRow
	err := r.store.conn(ctx).SelectContext(ctx, &rows,
		`SELECT `+medicineColumns+` FROM medicines
         WHERE ($1 = '' OR name ILIKE '%' || $1 || '%')
           AND (NOT $2 OR stock > 0)
         ORDER BY id`,
		f.NameSubstring, f.InStockOnly)
	if err != nil {
		return nil, errors.Wrap(err, "list medicines")
	}
	out := make([]domain.Medicine, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row.toDomain())
	}
	return out, nil
}

// DecrementStock is a single conditional UPDATE, so concurrent orders for the
// same row serialise on the row lock and the stock never goes negative.
func (r *Medicines) DecrementStock(ctx context.Context, id int64, qty int64) (*domain.Medicine, error) {
	var row medicineRow
	err := r.store.conn(ctx).GetContext(ctx, &row,
		`UPDATE medicines SET stock = stock - $1
         WHERE id = $2 AND stock >= $1 AND $1 > 0
         RETURNING `+medicineColumns, qty, id)
	if err == nil {
		return row.toDomain(), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(err, "decrement stock")
	}
	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, repository.ErrInsufficientStock
}
