package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"pharmabot/internal/domain"
	"pharmabot/internal/metrics"
	"pharmabot/internal/notify"
	"pharmabot/internal/repository"
)

const (
	day            = 24 * time.Hour
	scanWorkers    = 4
	defaultHorizon = 3
)

// RefillService находит пациентов, которым скоро понадобится повторная покупка
type RefillService struct {
	patients   repository.PatientRepository
	orders     repository.OrderRepository
	alerts     repository.RefillAlertRepository
	notifier   Notifier
	metrics    metrics.Recorder
	supplyDays int
	now        func() time.Time
	log        logrus.FieldLogger
}

func NewRefillService(
	patients repository.PatientRepository,
	orders repository.OrderRepository,
	alerts repository.RefillAlertRepository,
	notifier Notifier,
	rec metrics.Recorder,
	defaultSupplyDays int,
	log logrus.FieldLogger,
) *RefillService {
	if rec == nil {
		rec = metrics.Nop{}
	}
	if defaultSupplyDays <= 0 {
		defaultSupplyDays = 30
	}
	return &RefillService{
		patients:   patients,
		orders:     orders,
		alerts:     alerts,
		notifier:   notifier,
		metrics:    rec,
		supplyDays: defaultSupplyDays,
		now:        func() time.Time { return time.Now().UTC() },
		log:        log,
	}
}

func truncateDay(t time.Time) time.Time {
	return t.UTC().Truncate(day)
}

// refillDue is the projected run-out of one product for one patient.
type refillDue struct {
	product  string
	quantity int64
	due      time.Time
}

// project estimates when each product in the history runs out. history may be
// in any order.
func (s *RefillService) project(history []domain.Order) []refillDue {
	byProduct := make(map[string][]domain.Order)
	for _, o := range history {
		key := strings.ToLower(strings.TrimSpace(o.ProductName))
		if key == "" {
			continue
		}
		byProduct[key] = append(byProduct[key], o)
	}
	out := make([]refillDue, 0, len(byProduct))
	for _, orders := range byProduct {
		sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.Before(orders[j].CreatedAt) })
		first, last := orders[0], orders[len(orders)-1]
		cadence := time.Duration(s.supplyDays) * day
		if len(orders) >= 2 {
			cadence = last.CreatedAt.Sub(first.CreatedAt) / time.Duration(len(orders)-1)
		}
		out = append(out, refillDue{
			product:  last.ProductName,
			quantity: last.Quantity,
			due:      truncateDay(last.CreatedAt.Add(cadence)),
		})
	}
	return out
}

// Scan checks every patient's order history and creates one alert per
// patient, product and due day for refills due within horizonDays. Running it
// again returns the same alerts and creates nothing until new orders move the
// projected due day.
func (s *RefillService) Scan(ctx context.Context, horizonDays int) ([]domain.RefillAlert, error) {
	if horizonDays < 0 {
		return nil, domain.Validationf("horizon_days must not be negative")
	}
	patients, err := s.patients.List(ctx)
	if err != nil {
		return nil, err
	}
	today := truncateDay(s.now())

	var (
		mu     sync.Mutex
		result []domain.RefillAlert
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scanWorkers)
	for _, p := range patients {
		p := p
		g.Go(func() error {
			alerts, err := s.scanPatient(gctx, p, today, horizonDays)
			if err != nil {
				return err
			}
			mu.Lock()
			result = append(result, alerts...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].PatientID != result[j].PatientID {
			return result[i].PatientID < result[j].PatientID
		}
		return result[i].ProductName < result[j].ProductName
	})
	s.log.WithFields(logrus.Fields{"horizon_days": horizonDays, "alerts": len(result)}).Info("refill scan finished")
	return result, nil
}

func (s *RefillService) scanPatient(ctx context.Context, p domain.Patient, today time.Time, horizon int) ([]domain.RefillAlert, error) {
	history, err := s.orders.List(ctx, repository.OrderFilter{PatientID: p.ID})
	if err != nil {
		return nil, err
	}
	var out []domain.RefillAlert
	for _, d := range s.project(history) {
		days := int(d.due.Sub(today) / day)
		if days < 0 || days > horizon {
			continue
		}
		alert, err := s.store(ctx, p, domain.RefillAlert{
			PatientID:       p.ID,
			ProductName:     d.product,
			Quantity:        d.quantity,
			DaysUntilRefill: days,
			DueDate:         d.due,
			AlertDay:        today.Format(domain.AlertDayLayout),
		})
		if err != nil {
			return nil, err
		}
		// a stored alert may come from an earlier day
		alert.DaysUntilRefill = days
		out = append(out, *alert)
	}
	return out, nil
}

// store creates the alert unless one exists for the same key, and reminds the
// patient only when it was created now.
func (s *RefillService) store(ctx context.Context, p domain.Patient, a domain.RefillAlert) (*domain.RefillAlert, error) {
	a.Status = domain.AlertStatusPending
	stored, created, err := s.alerts.CreateIfAbsent(ctx, &a)
	if err != nil {
		return nil, err
	}
	if created {
		s.log.WithFields(logrus.Fields{
			"alert_id":   stored.ID,
			"patient_id": stored.PatientID,
			"product":    stored.ProductName,
			"days_until": stored.DaysUntilRefill,
		}).Info("refill alert created")
		s.metrics.Count(ctx, metrics.RefillAlertsCreated, 1, nil)
		if s.notifier != nil {
			s.notifier.Dispatch(ctx, notify.RefillDue(*stored, p))
		}
	}
	return stored, nil
}

// CreateAlertInput is a manually raised refill alert.
type CreateAlertInput struct {
	PatientID       string
	ProductName     string
	Quantity        int64
	DaysUntilRefill int
}

// Create raises an alert by hand and reminds the patient like Scan does. It
// shares the de-duplication key with Scan, so a second call for the same due
// day returns the existing alert.
func (s *RefillService) Create(ctx context.Context, in CreateAlertInput) (*domain.RefillAlert, bool, error) {
	switch {
	case strings.TrimSpace(in.PatientID) == "":
		return nil, false, domain.Validationf("patient_id is required")
	case strings.TrimSpace(in.ProductName) == "":
		return nil, false, domain.Validationf("product_name is required")
	case in.Quantity < 0 || in.DaysUntilRefill < 0:
		return nil, false, domain.Validationf("quantity and days_until_refill must not be negative")
	}
	p, err := s.patients.GetByID(ctx, in.PatientID)
	if err != nil {
		return nil, false, err
	}
	today := truncateDay(s.now())
	a := domain.RefillAlert{
		PatientID:       p.ID,
		ProductName:     strings.TrimSpace(in.ProductName),
		Quantity:        in.Quantity,
		DaysUntilRefill: in.DaysUntilRefill,
		DueDate:         today.AddDate(0, 0, in.DaysUntilRefill),
		AlertDay:        today.Format(domain.AlertDayLayout),
		Status:          domain.AlertStatusPending,
	}
	stored, created, err := s.alerts.CreateIfAbsent(ctx, &a)
	if err != nil {
		return nil, false, err
	}
	if created {
		s.metrics.Count(ctx, metrics.RefillAlertsCreated, 1, map[string]string{"source": "manual"})
		if s.notifier != nil {
			s.notifier.Dispatch(ctx, notify.RefillDue(*stored, *p))
		}
	}
	return stored, created, nil
}

// UpdateStatus sets the alert status, e.g. when the patient acknowledges it.
func (s *RefillService) UpdateStatus(ctx context.Context, id string, status domain.AlertStatus) (*domain.RefillAlert, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.Validationf("id is required")
	}
	if !status.Valid() {
		return nil, domain.Validationf("unknown alert status %q", status)
	}
	return s.alerts.UpdateStatus(ctx, id, status)
}

func (s *RefillService) List(ctx context.Context, status domain.AlertStatus) ([]domain.RefillAlert, error) {
	if status != "" && !status.Valid() {
		return nil, domain.Validationf("unknown alert status %q", status)
	}
	return s.alerts.List(ctx, status)
}

// ForPatient projects the patient's refills due within horizonDays without
// storing anything. Used by the chat refill check.
func (s *RefillService) ForPatient(ctx context.Context, patientID string, horizonDays int) ([]domain.RefillAlert, error) {
	if horizonDays < 0 {
		horizonDays = defaultHorizon
	}
	if _, err := s.patients.GetByID(ctx, patientID); err != nil {
		return nil, err
	}
	history, err := s.orders.List(ctx, repository.OrderFilter{PatientID: patientID})
	if err != nil {
		return nil, err
	}
	today := truncateDay(s.now())
	var out []domain.RefillAlert
	for _, d := range s.project(history) {
		days := int(d.due.Sub(today) / day)
		if days < 0 || days > horizonDays {
			continue
		}
		out = append(out, domain.RefillAlert{
			PatientID:       patientID,
			ProductName:     d.product,
			Quantity:        d.quantity,
			DaysUntilRefill: days,
			DueDate:         d.due,
			AlertDay:        today.Format(domain.AlertDayLayout),
			Status:          domain.AlertStatusPending,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DaysUntilRefill < out[j].DaysUntilRefill })
	return out, nil
}
