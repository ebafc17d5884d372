package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pharmabot/internal/domain"
	"pharmabot/internal/repository"
)

// openTestStore connects to PHARMABOT_TEST_DATABASE_URL and skips otherwise.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("PHARMABOT_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("PHARMABOT_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for _, table := range []string{"notifications", "refill_alerts", "orders", "patients", "medicines"} {
		if _, err := s.db.ExecContext(ctx, "TRUNCATE "+table+" RESTART IDENTITY CASCADE"); err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPostgres_DecrementStockConcurrent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	meds := NewMedicines(s)

	m := &domain.Medicine{Name: "Paracetamol", Price: 10, Stock: 10}
	if err := meds.Create(ctx, m); err != nil {
		t.Fatalf("create: %v", err)
	}

	var ok int64
	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := meds.DecrementStock(ctx, m.ID, 1); err == nil {
				atomic.AddInt64(&ok, 1)
			} else if !errors.Is(err, repository.ErrInsufficientStock) {
				t.Errorf("unexpected err: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 10 {
		t.Fatalf("expected 10 successful decrements, got %d", ok)
	}
	got, err := meds.GetByID(ctx, m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Stock != 0 {
		t.Fatalf("expected stock 0, got %d", got.Stock)
	}
	if _, err := meds.DecrementStock(ctx, 9999, 1); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing id, got %v", err)
	}
}

func TestPostgres_TransactionRollsBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	meds := NewMedicines(s)
	patients := NewPatients(s)
	orders := NewOrders(s)

	m := &domain.Medicine{Name: "Cetirizine", Price: 4.5, Stock: 3}
	if err := meds.Create(ctx, m); err != nil {
		t.Fatalf("create medicine: %v", err)
	}
	if err := patients.Create(ctx, &domain.Patient{ID: "P1", Name: "Asha"}); err != nil {
		t.Fatalf("create patient: %v", err)
	}

	boom := fmt.Errorf("boom")
	err := s.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := meds.DecrementStock(ctx, m.ID, 2); err != nil {
			return err
		}
		if err := orders.Create(ctx, &domain.Order{
			PatientID: "P1", MedicineID: m.ID, ProductName: m.Name,
			Quantity: 2, UnitPrice: 4.5, TotalPrice: 9, Status: domain.OrderStatusPlaced,
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	got, _ := meds.GetByID(ctx, m.ID)
	if got.Stock != 3 {
		t.Fatalf("stock should be restored to 3, got %d", got.Stock)
	}
	list, _ := orders.List(ctx, repository.OrderFilter{PatientID: "P1"})
	if len(list) != 0 {
		t.Fatalf("expected no orders after rollback, got %d", len(list))
	}
}

func TestPostgres_AlertsDedupe(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := NewPatients(s).Create(ctx, &domain.Patient{ID: "P2", Name: "Ravi"}); err != nil {
		t.Fatalf("create patient: %v", err)
	}
	alerts := NewAlerts(s)

	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	mk := func() *domain.RefillAlert {
		return &domain.RefillAlert{
			PatientID: "P2", ProductName: "Metformin", Quantity: 30,
			DaysUntilRefill: 2, DueDate: day.AddDate(0, 0, 2), AlertDay: day.Format(domain.AlertDayLayout),
		}
	}
	first, created, err := alerts.CreateIfAbsent(ctx, mk())
	if err != nil || !created {
		t.Fatalf("first create: created=%v err=%v", created, err)
	}
	second, created, err := alerts.CreateIfAbsent(ctx, mk())
	if err != nil || created {
		t.Fatalf("second create: created=%v err=%v", created, err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same alert, got %s and %s", first.ID, second.ID)
	}

	acked, err := alerts.UpdateStatus(ctx, first.ID, domain.AlertStatusAcknowledged)
	if err != nil {
		t.Fatalf("ack: %v", err)
	}
	if acked.Status != domain.AlertStatusAcknowledged {
		t.Fatalf("expected acknowledged, got %s", acked.Status)
	}
	if _, err := alerts.UpdateStatus(ctx, "missing", domain.AlertStatusAcknowledged); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
