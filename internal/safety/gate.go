// Package safety decides whether an order request may be executed.
package safety

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"pharmabot/internal/advisor"
	"pharmabot/internal/domain"
	"pharmabot/internal/repository"
)

const substituteLimit = 3

// Substituter suggests catalog alternatives for a blocked request.
type Substituter interface {
	Alternatives(ctx context.Context, q advisor.AlternativeQuery) ([]domain.Medicine, error)
}

// Request is a candidate order line.
type Request struct {
	PatientID   string
	ProductName string
	Quantity    int64
}

// Approval is returned when every check passed.
type Approval struct {
	Medicine domain.Medicine
	Patient  domain.Patient
	Quantity int64
}

// Gate проверяет запрос на заказ перед исполнением
type Gate struct {
	medicines    repository.MedicineRepository
	patients     repository.PatientRepository
	orders       repository.OrderRepository
	table        *InteractionTable
	subs         Substituter
	activeWindow time.Duration
	now          func() time.Time
	log          logrus.FieldLogger
}

func NewGate(
	medicines repository.MedicineRepository,
	patients repository.PatientRepository,
	orders repository.OrderRepository,
	table *InteractionTable,
	subs Substituter,
	activeDays int,
	log logrus.FieldLogger,
) *Gate {
	if activeDays <= 0 {
		activeDays = 90
	}
	return &Gate{
		medicines:    medicines,
		patients:     patients,
		orders:       orders,
		table:        table,
		subs:         subs,
		activeWindow: time.Duration(activeDays) * 24 * time.Hour,
		now:          func() time.Time { return time.Now().UTC() },
		log:          log,
	}
}

func (r Request) validate() error {
	switch {
	case strings.TrimSpace(r.PatientID) == "":
		return domain.Validationf("patient_id is required")
	case strings.TrimSpace(r.ProductName) == "":
		return domain.Validationf("product_name is required")
	case r.Quantity <= 0:
		return domain.Validationf("quantity must be positive, got %d", r.Quantity)
	}
	return nil
}

// Check runs the checks in order and stops at the first failure:
// product exists, stock covers the quantity, prescription on file when
// required, no interaction with the patient's active medicines.
func (g *Gate) Check(ctx context.Context, req Request) (*Approval, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	patient, err := g.patients.GetByID(ctx, req.PatientID)
	if err != nil {
		return nil, fmt.Errorf("patient %s: %w", req.PatientID, err)
	}
	active, err := g.activeMedicines(ctx, patient.ID)
	if err != nil {
		return nil, err
	}

	med, err := g.medicines.GetByName(ctx, req.ProductName)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, g.block(ctx, &domain.SafetyError{
			Code:    domain.SafetyUnknownProduct,
			Product: req.ProductName,
			Reason:  fmt.Sprintf("%s is not available in our catalog", req.ProductName),
		}, advisor.AlternativeQuery{Name: req.ProductName}, req, patient, active)
	}

	if !med.InStock(req.Quantity) {
		return nil, g.block(ctx, &domain.SafetyError{
			Code:      domain.SafetyOutOfStock,
			Product:   med.Name,
			Available: med.Stock,
			Reason:    fmt.Sprintf("only %d units of %s are in stock, %d requested", med.Stock, med.Name, req.Quantity),
		}, advisor.AlternativeQuery{Name: med.Name, Original: med}, req, patient, active)
	}

	if med.RequiresPrescription && !patient.HasPrescriptionFor(med.Name) {
		return nil, g.block(ctx, &domain.SafetyError{
			Code:    domain.SafetyPrescriptionRequired,
			Product: med.Name,
			Reason:  fmt.Sprintf("%s requires a valid prescription on file", med.Name),
		}, advisor.AlternativeQuery{Name: med.Name, Original: med}, req, patient, active)
	}

	for _, current := range active {
		in, ok := g.table.Lookup(med.Name, current)
		if !ok {
			continue
		}
		return nil, g.block(ctx, &domain.SafetyError{
			Code:      domain.SafetyInteractionWarning,
			Product:   med.Name,
			Interacts: current,
			Reason: fmt.Sprintf("%s may interact with %s (%s risk): %s %s",
				med.Name, current, in.Severity, in.Description, in.Recommendation),
		}, advisor.AlternativeQuery{Name: med.Name, Original: med}, req, patient, active)
	}

	return &Approval{Medicine: *med, Patient: *patient, Quantity: req.Quantity}, nil
}

// activeMedicines returns distinct product names ordered within the active window.
func (g *Gate) activeMedicines(ctx context.Context, patientID string) ([]string, error) {
	history, err := g.orders.List(ctx, repository.OrderFilter{PatientID: patientID})
	if err != nil {
		return nil, err
	}
	since := g.now().Add(-g.activeWindow)
	seen := map[string]bool{}
	var out []string
	for _, o := range history {
		if o.CreatedAt.Before(since) {
			continue
		}
		key := strings.ToLower(o.ProductName)
		if !seen[key] {
			seen[key] = true
			out = append(out, o.ProductName)
		}
	}
	return out, nil
}

// block attaches substitutes the patient could actually order and logs the refusal.
func (g *Gate) block(ctx context.Context, serr *domain.SafetyError, q advisor.AlternativeQuery, req Request, patient *domain.Patient, active []string) error {
	if g.subs != nil {
		q.Quantity = req.Quantity
		q.Limit = substituteLimit
		q.Exclude = func(m domain.Medicine) bool {
			if m.RequiresPrescription && !patient.HasPrescriptionFor(m.Name) {
				return true
			}
			for _, current := range active {
				if _, ok := g.table.Lookup(m.Name, current); ok {
					return true
				}
			}
			return false
		}
		subs, err := g.subs.Alternatives(ctx, q)
		if err != nil {
			g.log.WithError(err).Warn("substitute lookup failed")
		}
		serr.Substitutes = subs
	}
	g.log.WithFields(logrus.Fields{
		"patient_id": req.PatientID,
		"product":    req.ProductName,
		"quantity":   req.Quantity,
		"code":       serr.Code,
	}).Info("order request blocked")
	return serr
}
