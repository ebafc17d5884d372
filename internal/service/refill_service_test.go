package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"pharmabot/internal/domain"
	"pharmabot/internal/notify"
	"pharmabot/internal/repository"
)

var scanNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newRefillEnv(t *testing.T) (*RefillService, *repository.MemoryAlerts, *recordingNotifier) {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemoryStore()
	patients := repository.NewMemoryPatients(store)
	orders := repository.NewMemoryOrders(store)
	alerts := repository.NewMemoryAlerts(store)
	rec := &recordingNotifier{}

	for _, p := range []domain.Patient{
		{ID: "P1", Name: "Asha", Language: domain.LangEnglish},
		{ID: "P2", Name: "Ravi", Language: domain.LangHindi},
		{ID: "P3", Name: "Meera", Language: domain.LangMarathi},
	} {
		p := p
		if err := patients.Create(ctx, &p); err != nil {
			t.Fatalf("create patient: %v", err)
		}
	}
	ago := func(days int) time.Time { return scanNow.AddDate(0, 0, -days) }
	for _, o := range []domain.Order{
		// single order, default 30-day supply: due in 2 days
		{PatientID: "P1", ProductName: "Metformin", Quantity: 30, CreatedAt: ago(28)},
		// two orders 10 days apart: due today
		{PatientID: "P2", ProductName: "Amlodipine", Quantity: 10, CreatedAt: ago(20)},
		{PatientID: "P2", ProductName: "Amlodipine", Quantity: 10, CreatedAt: ago(10)},
		// due in 25 days: outside the horizon
		{PatientID: "P3", ProductName: "Cetirizine", Quantity: 10, CreatedAt: ago(5)},
		// overdue: not alerted
		{PatientID: "P3", ProductName: "Omeprazole", Quantity: 14, CreatedAt: ago(45)},
	} {
		o := o
		o.Status = domain.OrderStatusDelivered
		if err := orders.Create(ctx, &o); err != nil {
			t.Fatalf("create order: %v", err)
		}
	}

	svc := NewRefillService(patients, orders, alerts, rec, nil, 30, quietLogger())
	svc.now = func() time.Time { return scanNow }
	return svc, alerts, rec
}

func TestRefillScan(t *testing.T) {
	svc, _, rec := newRefillEnv(t)
	got, err := svc.Scan(context.Background(), 3)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 alerts, got %d: %+v", len(got), got)
	}
	if got[0].PatientID != "P1" || got[0].ProductName != "Metformin" || got[0].DaysUntilRefill != 2 {
		t.Fatalf("unexpected first alert: %+v", got[0])
	}
	if got[1].PatientID != "P2" || got[1].ProductName != "Amlodipine" || got[1].DaysUntilRefill != 0 {
		t.Fatalf("unexpected second alert: %+v", got[1])
	}
	if got[0].AlertDay != "2026-03-10" || got[0].Status != domain.AlertStatusPending {
		t.Fatalf("unexpected alert day/status: %+v", got[0])
	}
	events := rec.events()
	if len(events) != 2 || events[0] != notify.EventRefillDue {
		t.Fatalf("expected two refill reminders, got %v", events)
	}
}

func TestRefillScan_Idempotent(t *testing.T) {
	ctx := context.Background()
	svc, alerts, rec := newRefillEnv(t)
	first, err := svc.Scan(ctx, 3)
	if err != nil {
		t.Fatalf("first scan: %v", err)
	}
	second, err := svc.Scan(ctx, 3)
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("alert sets differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("alert %d changed identity: %s vs %s", i, first[i].ID, second[i].ID)
		}
	}
	stored, _ := alerts.List(ctx, "")
	if len(stored) != 2 {
		t.Fatalf("expected 2 stored alerts, got %d", len(stored))
	}
	if n := len(rec.events()); n != 2 {
		t.Fatalf("reminders must only go out once, got %d", n)
	}
}

func TestRefillScan_AcknowledgedStaysQuietNextDay(t *testing.T) {
	ctx := context.Background()
	svc, alerts, rec := newRefillEnv(t)
	first, err := svc.Scan(ctx, 3)
	if err != nil {
		t.Fatalf("first scan: %v", err)
	}
	for _, a := range first {
		if _, err := svc.UpdateStatus(ctx, a.ID, domain.AlertStatusAcknowledged); err != nil {
			t.Fatalf("ack: %v", err)
		}
	}

	svc.now = func() time.Time { return scanNow.AddDate(0, 0, 1) }
	second, err := svc.Scan(ctx, 3)
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	// Amlodipine was due yesterday and is overdue now
	if len(second) != 1 || second[0].ProductName != "Metformin" {
		t.Fatalf("unexpected alerts: %+v", second)
	}
	if second[0].ID != first[0].ID || second[0].Status != domain.AlertStatusAcknowledged {
		t.Fatalf("expected the acknowledged alert back, got %+v", second[0])
	}
	if second[0].DaysUntilRefill != 1 {
		t.Fatalf("expected 1 day left, got %d", second[0].DaysUntilRefill)
	}
	stored, _ := alerts.List(ctx, "")
	if len(stored) != 2 {
		t.Fatalf("expected 2 stored alerts, got %d", len(stored))
	}
	pending, _ := alerts.List(ctx, domain.AlertStatusPending)
	if len(pending) != 0 {
		t.Fatalf("expected no pending alerts, got %d", len(pending))
	}
	if n := len(rec.events()); n != 2 {
		t.Fatalf("expected no new reminders, got %d", n)
	}
}

func TestRefillScan_WiderHorizon(t *testing.T) {
	svc, _, _ := newRefillEnv(t)
	got, err := svc.Scan(context.Background(), 30)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 alerts with 30-day horizon, got %d", len(got))
	}
	if _, err := svc.Scan(context.Background(), -1); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRefillCreateAndAcknowledge(t *testing.T) {
	ctx := context.Background()
	svc, _, rec := newRefillEnv(t)

	a, created, err := svc.Create(ctx, CreateAlertInput{PatientID: "P3", ProductName: "Cetirizine", Quantity: 10, DaysUntilRefill: 1})
	if err != nil || !created {
		t.Fatalf("create: created=%v err=%v", created, err)
	}
	again, created, err := svc.Create(ctx, CreateAlertInput{PatientID: "P3", ProductName: "cetirizine", Quantity: 10, DaysUntilRefill: 1})
	if err != nil || created || again.ID != a.ID {
		t.Fatalf("duplicate create must return the existing alert: created=%v err=%v", created, err)
	}
	if events := rec.events(); len(events) != 1 || events[0] != notify.EventRefillDue {
		t.Fatalf("expected one reminder for the manual alert, got %v", events)
	}
	if _, _, err := svc.Create(ctx, CreateAlertInput{PatientID: "nobody", ProductName: "X"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	acked, err := svc.UpdateStatus(ctx, a.ID, domain.AlertStatusAcknowledged)
	if err != nil || acked.Status != domain.AlertStatusAcknowledged {
		t.Fatalf("ack: %v %v", acked, err)
	}
	if _, err := svc.UpdateStatus(ctx, a.ID, "snoozed"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	pending, _ := svc.List(ctx, domain.AlertStatusPending)
	if len(pending) != 0 {
		t.Fatalf("expected no pending alerts, got %d", len(pending))
	}
}

func TestRefillForPatient(t *testing.T) {
	svc, alerts, _ := newRefillEnv(t)
	got, err := svc.ForPatient(context.Background(), "P2", 3)
	if err != nil {
		t.Fatalf("for patient: %v", err)
	}
	if len(got) != 1 || got[0].ProductName != "Amlodipine" {
		t.Fatalf("unexpected projection: %+v", got)
	}
	stored, _ := alerts.List(context.Background(), "")
	if len(stored) != 0 {
		t.Fatalf("projection must not store alerts")
	}
}
