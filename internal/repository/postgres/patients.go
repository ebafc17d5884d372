package postgres

import (
	"context"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"pharmabot/internal/domain"
	"pharmabot/internal/repository"
)

type patientRow struct {
	ID                  string         `db:"id"`
	Name                string         `db:"name"`
	Age                 int            `db:"age"`
	Gender              string         `db:"gender"`
	Email               string         `db:"email"`
	Phone               string         `db:"phone"`
	Address             string         `db:"address"`
	Language            string         `db:"language"`
	PrescriptionsOnFile pq.StringArray `db:"prescriptions_on_file"`
}

func (r patientRow) toDomain() *domain.Patient {
	return &domain.Patient{
		ID:                  r.ID,
		Name:                r.Name,
		Age:                 r.Age,
		Gender:              r.Gender,
		Email:               r.Email,
		Phone:               r.Phone,
		Address:             r.Address,
		Language:            domain.Language(r.Language),
		PrescriptionsOnFile: []string(r.PrescriptionsOnFile),
	}
}

const patientColumns = `id, name, age, gender, email, phone, address, language, prescriptions_on_file`

// Patients is the PostgreSQL PatientRepository.
type Patients struct{ store *Store }

func NewPatients(store *Store) *Patients { return &Patients{store: store} }

var _ repository.PatientRepository = (*Patients)(nil)

func (r *Patients) Create(ctx context.Context, p *domain.Patient) error {
	_, err := r.store.conn(ctx).ExecContext(ctx,
		`INSERT INTO patients (`+patientColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.Name, p.Age, p.Gender, p.Email, p.Phone, p.Address, string(p.Language), pq.Array(p.PrescriptionsOnFile),
	)
	if isUniqueViolation(err) {
		return repository.ErrAlreadyExists
	}
	return errors.Wrap(err, "insert patient")
}

func (r *Patients) GetByID(ctx context.Context, id string) (*domain.Patient, error) {
	var row patientRow
	if err := r.store.conn(ctx).GetContext(ctx, &row,
		`SELECT `+patientColumns+` FROM patients WHERE id = $1`, id); err != nil {
		return nil, notFound(err)
	}
	return row.toDomain(), nil
}

func (r *Patients) List(ctx context.Context) ([]domain.Patient, error) {
	var rows []patientRow
	if err := r.store.conn(ctx).SelectContext(ctx, &rows,
		`SELECT `+patientColumns+` FROM patients ORDER BY id`); err != nil {
		return nil, errors.Wrap(err, "list patients")
	}
	out := make([]domain.Patient, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row.toDomain())
	}
	return out, nil
}

func (r *Patients) AddPrescription(ctx context.Context, patientID, productName string) (*domain.Patient, error) {
	var row patientRow
	err := r.store.conn(ctx).GetContext(ctx, &row,
		`UPDATE patients
         SET prescriptions_on_file = CASE
             WHEN EXISTS (SELECT 1 FROM unnest(prescriptions_on_file) p WHERE lower(p) = lower($2))
             THEN prescriptions_on_file
             ELSE array_append(prescriptions_on_file, $2)
         END
         WHERE id = $1
         RETURNING `+patientColumns, patientID, productName)
	if err != nil {
		return nil, notFound(err)
	}
	return row.toDomain(), nil
}
