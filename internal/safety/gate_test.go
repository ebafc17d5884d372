package safety

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmabot/internal/advisor"
	"pharmabot/internal/domain"
	"pharmabot/internal/repository"
)

type fixture struct {
	store    *repository.MemoryStore
	patients *repository.MemoryPatients
	orders   *repository.MemoryOrders
	gate     *Gate
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	store := repository.NewMemoryStore()
	patients := repository.NewMemoryPatients(store)
	orders := repository.NewMemoryOrders(store)
	ctx := context.Background()

	for _, m := range []domain.Medicine{
		{Name: "Paracetamol", Category: "analgesic", Indications: []string{"fever", "pain"}, Price: 10, Stock: 5},
		{Name: "Ibuprofen", Category: "analgesic", Indications: []string{"pain", "fever"}, Price: 15, Stock: 20},
		{Name: "Aspirin", Category: "analgesic", Indications: []string{"pain"}, Price: 8, Stock: 40},
		{Name: "Tramadol", Category: "analgesic", Indications: []string{"pain"}, Price: 60, Stock: 10, RequiresPrescription: true},
		{Name: "Warfarin", Category: "anticoagulant", Indications: []string{"blood clots"}, Price: 45, Stock: 10, RequiresPrescription: true},
	} {
		m := m
		require.NoError(t, store.Create(ctx, &m))
	}
	require.NoError(t, patients.Create(ctx, &domain.Patient{ID: "P1", Name: "Asha", Language: domain.LangEnglish}))
	require.NoError(t, patients.Create(ctx, &domain.Patient{ID: "P2", Name: "Ravi", Language: domain.LangHindi, PrescriptionsOnFile: []string{"Warfarin"}}))

	adv := advisor.New(store, nil, log)
	gate := NewGate(store, patients, orders, DefaultInteractions(), adv, 90, log)
	return &fixture{store: store, patients: patients, orders: orders, gate: gate}
}

func (f *fixture) pastOrder(t *testing.T, patientID, product string, age time.Duration) {
	t.Helper()
	require.NoError(t, f.orders.Create(context.Background(), &domain.Order{
		PatientID:   patientID,
		ProductName: product,
		Quantity:    1,
		Status:      domain.OrderStatusDelivered,
		CreatedAt:   time.Now().UTC().Add(-age),
	}))
}

func requireSafety(t *testing.T, err error, code domain.SafetyCode) *domain.SafetyError {
	t.Helper()
	require.Error(t, err)
	serr, ok := domain.AsSafetyError(err)
	require.True(t, ok, "expected SafetyError, got %v", err)
	require.Equal(t, code, serr.Code)
	assert.True(t, errors.Is(err, domain.ErrSafetyBlock))
	assert.NotEmpty(t, serr.Reason)
	return serr
}

func TestGate_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, req := range []Request{
		{ProductName: "Paracetamol", Quantity: 1},
		{PatientID: "P1", Quantity: 1},
		{PatientID: "P1", ProductName: "Paracetamol", Quantity: 0},
	} {
		_, err := f.gate.Check(ctx, req)
		assert.ErrorIs(t, err, domain.ErrValidation)
	}
}

func TestGate_UnknownPatient(t *testing.T) {
	f := newFixture(t)
	_, err := f.gate.Check(context.Background(), Request{PatientID: "nobody", ProductName: "Paracetamol", Quantity: 1})
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, isSafety := domain.AsSafetyError(err)
	assert.False(t, isSafety)
}

func TestGate_Pass(t *testing.T) {
	f := newFixture(t)
	ok, err := f.gate.Check(context.Background(), Request{PatientID: "P1", ProductName: "paracetamol", Quantity: 3})
	require.NoError(t, err)
	assert.Equal(t, "Paracetamol", ok.Medicine.Name)
	assert.Equal(t, "P1", ok.Patient.ID)
	assert.Equal(t, int64(3), ok.Quantity)
}

func TestGate_UnknownProduct(t *testing.T) {
	f := newFixture(t)
	_, err := f.gate.Check(context.Background(), Request{PatientID: "P1", ProductName: "Paracetamoll", Quantity: 1})
	serr := requireSafety(t, err, domain.SafetyUnknownProduct)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	require.NotEmpty(t, serr.Substitutes)
	assert.Equal(t, "Paracetamol", serr.Substitutes[0].Name)
}

func TestGate_OutOfStock(t *testing.T) {
	f := newFixture(t)
	_, err := f.gate.Check(context.Background(), Request{PatientID: "P1", ProductName: "Paracetamol", Quantity: 10})
	serr := requireSafety(t, err, domain.SafetyOutOfStock)
	assert.Equal(t, int64(5), serr.Available)
	require.NotEmpty(t, serr.Substitutes)
	for _, m := range serr.Substitutes {
		assert.NotEqual(t, "Paracetamol", m.Name)
		assert.False(t, m.RequiresPrescription, "substitute %s needs a prescription", m.Name)
	}
}

func TestGate_PrescriptionRequired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.gate.Check(ctx, Request{PatientID: "P1", ProductName: "Tramadol", Quantity: 1})
	serr := requireSafety(t, err, domain.SafetyPrescriptionRequired)
	for _, m := range serr.Substitutes {
		assert.False(t, m.RequiresPrescription)
	}

	_, err = f.patients.AddPrescription(ctx, "P1", "tramadol")
	require.NoError(t, err)
	_, err = f.gate.Check(ctx, Request{PatientID: "P1", ProductName: "Tramadol", Quantity: 1})
	require.NoError(t, err)
}

func TestGate_InteractionWarning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.pastOrder(t, "P2", "Warfarin", 10*24*time.Hour)

	_, err := f.gate.Check(ctx, Request{PatientID: "P2", ProductName: "Aspirin", Quantity: 1})
	serr := requireSafety(t, err, domain.SafetyInteractionWarning)
	assert.Equal(t, "Warfarin", serr.Interacts)
	assert.Contains(t, serr.Reason, "high")
	for _, m := range serr.Substitutes {
		assert.NotEqual(t, "Ibuprofen", m.Name, "ibuprofen also interacts with warfarin")
		assert.NotEqual(t, "Aspirin", m.Name)
	}

	// reordering the same drug is not an interaction
	_, err = f.gate.Check(ctx, Request{PatientID: "P2", ProductName: "Warfarin", Quantity: 1})
	require.NoError(t, err)
}

func TestGate_OldOrdersAreNotActive(t *testing.T) {
	f := newFixture(t)
	f.pastOrder(t, "P2", "Warfarin", 200*24*time.Hour)

	_, err := f.gate.Check(context.Background(), Request{PatientID: "P2", ProductName: "Aspirin", Quantity: 1})
	require.NoError(t, err)
}

func TestGate_ChecksShortCircuitInOrder(t *testing.T) {
	f := newFixture(t)
	f.pastOrder(t, "P1", "Aspirin", 24*time.Hour)

	// Warfarin needs a prescription and would interact with aspirin: prescription wins
	_, err := f.gate.Check(context.Background(), Request{PatientID: "P1", ProductName: "Warfarin", Quantity: 1})
	requireSafety(t, err, domain.SafetyPrescriptionRequired)

	// and stock beats prescription
	_, err = f.gate.Check(context.Background(), Request{PatientID: "P1", ProductName: "Warfarin", Quantity: 11})
	requireSafety(t, err, domain.SafetyOutOfStock)
}

func TestInteractionTable(t *testing.T) {
	tbl := DefaultInteractions()

	assert.Equal(t, "ibuprofen", tbl.Canonical("Advil 200mg"))
	assert.Equal(t, "paracetamol", tbl.Canonical("Tylenol"))
	assert.Equal(t, "ace inhibitors", tbl.Canonical("Lisinopril 10 mg"))
	assert.Equal(t, "", tbl.Canonical("Vitamin C"))

	in, ok := tbl.Lookup("Nurofen", "Coumadin")
	require.True(t, ok)
	assert.Equal(t, "high", in.Severity)

	_, ok = tbl.Lookup("Paracetamol", "Vitamin C")
	assert.False(t, ok)
	_, ok = tbl.Lookup("Advil", "Ibuprofen")
	assert.False(t, ok)
}

func TestLoadInteractions_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "table.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"aliases": {"brand-x": "drug a"},
		"interactions": [{"drugs": ["drug a", "drug b"], "severity": "low", "description": "d", "recommendation": "r"}]
	}`), 0o600))

	tbl, err := LoadInteractions(path)
	require.NoError(t, err)
	in, ok := tbl.Lookup("Brand-X", "Drug B")
	require.True(t, ok)
	assert.Equal(t, "low", in.Severity)

	_, err = LoadInteractions(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
