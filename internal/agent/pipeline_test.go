package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmabot/internal/advisor"
	"pharmabot/internal/domain"
	"pharmabot/internal/notify"
	"pharmabot/internal/repository"
	"pharmabot/internal/safety"
	"pharmabot/internal/service"
)

type nopNotifier struct{}

func (nopNotifier) Dispatch(context.Context, notify.Message) {}

type fakeSpeaker struct{}

func (fakeSpeaker) AudioURL(text string, lang domain.Language) string {
	return "https://speech.test/" + string(lang)
}

type fixture struct {
	pipeline *Pipeline
	meds     *service.MedicineService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := quietLogger()
	ctx := context.Background()

	store := repository.NewMemoryStore()
	patients := repository.NewMemoryPatients(store)
	orders := repository.NewMemoryOrders(store)
	alerts := repository.NewMemoryAlerts(store)
	adv := advisor.New(store, nil, log)
	gate := safety.NewGate(store, patients, orders, safety.DefaultInteractions(), adv, 90, log)

	meds := service.NewMedicineService(store)
	patientSvc := service.NewPatientService(patients, orders, store)
	orderSvc := service.NewOrderService(orders, store, repository.NewMemoryTx(store), gate, nopNotifier{}, nil, 0, log)
	refillSvc := service.NewRefillService(patients, orders, alerts, nopNotifier{}, nil, 30, log)

	for _, m := range []domain.Medicine{
		{Name: "Paracetamol", Category: "analgesic", Indications: []string{"fever", "pain", "headache"}, Price: 10, Stock: 5},
		{Name: "Benadryl Cough Syrup", Category: "cough and cold", Indications: []string{"cough", "sore throat"}, Price: 95, Stock: 8},
		{Name: "Amoxicillin", Category: "antibiotic", Indications: []string{"bacterial infection"}, Price: 80, Stock: 12, RequiresPrescription: true},
		{Name: "Digene", Category: "antacid", Indications: []string{"acidity", "heartburn"}, Price: 40, Stock: 30},
	} {
		_, err := meds.Create(ctx, m)
		require.NoError(t, err)
	}
	_, err := patientSvc.Create(ctx, domain.Patient{ID: "P1", Name: "Asha", Age: 34, Phone: "+91-9000000001", Language: domain.LangEnglish})
	require.NoError(t, err)

	p := New(Deps{
		Router:    NewRouter(nil, nil, log),
		Languages: NewLanguageDetector([]domain.Language{domain.LangEnglish, domain.LangHindi, domain.LangMarathi}, domain.LangEnglish, nil, log),
		Sessions:  NewSessionStore(0),
		Catalog:   adv,
		Medicines: meds,
		Orders:    orderSvc,
		Patients:  patientSvc,
		Refills:   refillSvc,
		Speech:    fakeSpeaker{},
		Log:       log,
	}, Options{})
	return &fixture{pipeline: p, meds: meds}
}

// flakyPatients panics on the first lookup.
type flakyPatients struct {
	Patients
	panicked bool
}

func (f *flakyPatients) Get(ctx context.Context, id string) (*domain.Patient, error) {
	if !f.panicked {
		f.panicked = true
		panic("patient lookup exploded")
	}
	return f.Patients.Get(ctx, id)
}

func (f *fixture) say(t *testing.T, session, text string) *Reply {
	t.Helper()
	r, err := f.pipeline.Handle(context.Background(), Turn{SessionID: session, PatientID: "P1", Text: text})
	require.NoError(t, err)
	require.Equal(t, session, r.SessionID)
	return r
}

func (f *fixture) stock(t *testing.T, name string) int64 {
	t.Helper()
	m, err := f.meds.GetByName(context.Background(), name)
	require.NoError(t, err)
	return m.Stock
}

func TestHandle_SymptomsRecommendCatalogOnly(t *testing.T) {
	f := newFixture(t)
	r := f.say(t, "s1", "I have fever and cough")

	assert.Equal(t, domain.IntentSymptomQuery, r.Intent)
	assert.Equal(t, domain.LangEnglish, r.Language)
	assert.ElementsMatch(t, []string{"Paracetamol", "Benadryl Cough Syrup"}, medicineNames(r.Recommendations))
	assert.Contains(t, r.Text, "not a diagnosis")
	assert.False(t, r.RequiresConfirmation)
}

func TestHandle_OrderNeedsConfirmation(t *testing.T) {
	f := newFixture(t)

	r := f.say(t, "s1", "I want to order 3 Paracetamol")
	assert.Equal(t, domain.IntentOrderPlacement, r.Intent)
	assert.True(t, r.RequiresConfirmation)
	assert.Nil(t, r.Order)
	assert.Contains(t, r.Text, "total ₹30.00")
	assert.Equal(t, int64(5), f.stock(t, "Paracetamol"), "nothing reserved before confirmation")

	r = f.say(t, "s1", "yes")
	require.NotNil(t, r.Order)
	assert.Equal(t, domain.OrderStatusPlaced, r.Order.Status)
	assert.Equal(t, int64(3), r.Order.Quantity)
	assert.Equal(t, 30.0, r.Order.TotalPrice)
	assert.False(t, r.RequiresConfirmation)
	assert.Equal(t, int64(2), f.stock(t, "Paracetamol"))

	r = f.say(t, "s1", "order 10 paracetamol")
	require.NotNil(t, r.Safety)
	assert.Equal(t, domain.SafetyOutOfStock, r.Safety.Code)
	assert.Contains(t, r.Text, "only have 2 units")
	assert.False(t, r.RequiresConfirmation)

	r = f.say(t, "s1", "show my order history")
	assert.Equal(t, domain.IntentOrderHistory, r.Intent)
	assert.Contains(t, r.Text, "3 x Paracetamol")
}

func TestHandle_DeclineDropsOrder(t *testing.T) {
	f := newFixture(t)
	f.say(t, "s1", "order 1 paracetamol")

	r := f.say(t, "s1", "no")
	assert.Nil(t, r.Order)
	assert.Contains(t, r.Text, "cancelled")
	assert.Equal(t, int64(5), f.stock(t, "Paracetamol"))

	// nothing is pending any more
	r = f.say(t, "s1", "yes")
	assert.Nil(t, r.Order)
	assert.Equal(t, domain.IntentGeneralChat, r.Intent)
}

func TestHandle_UnclearAnswerAsksAgain(t *testing.T) {
	f := newFixture(t)
	f.say(t, "s1", "order 2 paracetamol")

	r := f.say(t, "s1", "hmm")
	assert.True(t, r.RequiresConfirmation)
	assert.Contains(t, r.Text, "Please reply yes")

	r = f.say(t, "s1", "ok")
	require.NotNil(t, r.Order)
	assert.Equal(t, int64(2), r.Order.Quantity)
	assert.Equal(t, int64(3), f.stock(t, "Paracetamol"))
}

func TestHandle_TopicChangeDropsPendingOrder(t *testing.T) {
	f := newFixture(t)
	f.say(t, "s1", "order 1 digene")

	r := f.say(t, "s1", "show my profile")
	assert.Equal(t, domain.IntentProfileView, r.Intent)
	assert.Contains(t, r.Text, "Asha")

	r = f.say(t, "s1", "yes")
	assert.Nil(t, r.Order)
	assert.Equal(t, int64(30), f.stock(t, "Digene"))
}

func TestHandle_PrescriptionRequired(t *testing.T) {
	f := newFixture(t)
	r := f.say(t, "s1", "buy amoxicillin")

	require.NotNil(t, r.Safety)
	assert.Equal(t, domain.SafetyPrescriptionRequired, r.Safety.Code)
	assert.Contains(t, r.Text, "needs a prescription")
	assert.False(t, r.RequiresConfirmation)
	assert.Equal(t, int64(12), f.stock(t, "Amoxicillin"))
}

func TestHandle_UnknownProduct(t *testing.T) {
	f := newFixture(t)
	r := f.say(t, "s1", "order 2 unobtainium")

	require.NotNil(t, r.Safety)
	assert.Equal(t, domain.SafetyUnknownProduct, r.Safety.Code)
	assert.Contains(t, r.Text, "not in our catalog")
}

func TestHandle_RepliesInDetectedLanguage(t *testing.T) {
	f := newFixture(t)

	r := f.say(t, "s1", "नमस्ते")
	assert.Equal(t, domain.IntentGreeting, r.Intent)
	assert.Equal(t, domain.LangHindi, r.Language)
	assert.Contains(t, r.Text, "नमस्ते Asha")

	r = f.say(t, "s2", "मला ताप आहे")
	assert.Equal(t, domain.IntentSymptomQuery, r.Intent)
	assert.Equal(t, domain.LangMarathi, r.Language)
	assert.Contains(t, r.Text, "तुमची लक्षणे")
	assert.Contains(t, medicineNames(r.Recommendations), "Paracetamol")
}

func TestHandle_RefillsAndCatalog(t *testing.T) {
	f := newFixture(t)

	r := f.say(t, "s1", "when is my next refill")
	assert.Equal(t, domain.IntentRefillCheck, r.Intent)
	assert.Contains(t, r.Text, "No refills are due in the next 3 days")

	r = f.say(t, "s1", "what medicines do you have")
	assert.Equal(t, domain.IntentRecommendation, r.Intent)
	assert.Len(t, r.Recommendations, 4)
}

func TestHandle_Voice(t *testing.T) {
	f := newFixture(t)
	r, err := f.pipeline.Handle(context.Background(), Turn{PatientID: "P1", Text: "hello", Voice: true})
	require.NoError(t, err)
	assert.NotEmpty(t, r.SessionID)
	assert.Equal(t, "https://speech.test/en", r.AudioURL)

	r = f.say(t, "s1", "hello")
	assert.Empty(t, r.AudioURL)
}

func TestHandle_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.pipeline.Handle(ctx, Turn{Text: "hello"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.pipeline.Handle(ctx, Turn{PatientID: "P1", Text: "   "})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.pipeline.Handle(ctx, Turn{PatientID: "P404", Text: "hello"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestHandle_PanicReleasesSession(t *testing.T) {
	f := newFixture(t)
	f.say(t, "s1", "order 1 paracetamol")
	f.pipeline.Patients = &flakyPatients{Patients: f.pipeline.Patients}

	func() {
		defer func() { require.NotNil(t, recover()) }()
		_, _ = f.pipeline.Handle(context.Background(), Turn{SessionID: "s1", PatientID: "P1", Text: "yes"})
	}()

	done := make(chan *Reply, 1)
	go func() {
		r, err := f.pipeline.Handle(context.Background(), Turn{SessionID: "s1", PatientID: "P1", Text: "yes"})
		if err != nil {
			r = nil
		}
		done <- r
	}()
	select {
	case r := <-done:
		require.NotNil(t, r)
		require.NotNil(t, r.Order, "pending order survives the failed turn")
		assert.Equal(t, int64(4), f.stock(t, "Paracetamol"))
	case <-time.After(2 * time.Second):
		t.Fatal("session still locked after a panicking turn")
	}
}
