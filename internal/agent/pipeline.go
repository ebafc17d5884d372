// Package agent turns a chat or voice utterance into a reply: it detects the
// language, routes the intent and runs the matching handler, holding order
// requests for an explicit confirmation before they are executed.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"pharmabot/internal/advisor"
	"pharmabot/internal/domain"
	"pharmabot/internal/llm"
	"pharmabot/internal/repository"
	"pharmabot/internal/safety"
	"pharmabot/internal/service"
)

const (
	historyLimit = 5
	catalogLimit = 10
)

// Catalog finds and recommends products.
type Catalog interface {
	Recommend(ctx context.Context, symptoms []string, limit int) ([]domain.Medicine, error)
	FindProduct(ctx context.Context, text string) (*domain.Medicine, bool, error)
	Advice(ctx context.Context, an advisor.Analysis, lang domain.Language, recommended []domain.Medicine) string
}

type Medicines interface {
	List(ctx context.Context, f repository.MedicineFilter) ([]domain.Medicine, error)
}

// Orders checks and places orders.
type Orders interface {
	Check(ctx context.Context, in service.PlaceOrderInput) (*safety.Approval, error)
	PlaceOrder(ctx context.Context, in service.PlaceOrderInput) (*domain.Order, error)
}

type Patients interface {
	Get(ctx context.Context, id string) (*domain.Patient, error)
	Orders(ctx context.Context, id string) ([]domain.Order, error)
}

type Refills interface {
	ForPatient(ctx context.Context, patientID string, horizonDays int) ([]domain.RefillAlert, error)
}

// Speaker builds the audio pointer for a voice reply.
type Speaker interface {
	AudioURL(text string, lang domain.Language) string
}

// Deps are the collaborators of a Pipeline. Chat and Speech may be nil.
type Deps struct {
	Router    *Router
	Languages *LanguageDetector
	Sessions  *SessionStore
	Catalog   Catalog
	Medicines Medicines
	Orders    Orders
	Patients  Patients
	Refills   Refills
	Speech    Speaker
	Chat      llm.Client
	Log       logrus.FieldLogger
}

type Options struct {
	RefillHorizonDays int
	RecommendLimit    int
}

// Pipeline обрабатывает одну реплику пользователя от начала до конца
type Pipeline struct {
	Deps
	opts     Options
	handlers map[domain.Intent]Step
}

func New(deps Deps, opts Options) *Pipeline {
	if opts.RecommendLimit <= 0 {
		opts.RecommendLimit = 3
	}
	if opts.RefillHorizonDays <= 0 {
		opts.RefillHorizonDays = 3
	}
	if deps.Sessions == nil {
		deps.Sessions = NewSessionStore(0)
	}
	p := &Pipeline{Deps: deps, opts: opts}
	p.handlers = map[domain.Intent]Step{
		domain.IntentGreeting:       p.greet,
		domain.IntentSymptomQuery:   p.symptoms,
		domain.IntentRecommendation: p.recommend,
		domain.IntentOrderPlacement: p.order,
		domain.IntentOrderHistory:   p.history,
		domain.IntentRefillCheck:    p.refills,
		domain.IntentProfileView:    p.profile,
		domain.IntentGeneralChat:    p.chat,
	}
	return p
}

// Handle runs one turn. Turns of the same session are serialised; the
// session id is generated when the turn has none.
func (p *Pipeline) Handle(ctx context.Context, turn Turn) (*Reply, error) {
	turn.Text = strings.TrimSpace(turn.Text)
	turn.PatientID = strings.TrimSpace(turn.PatientID)
	switch {
	case turn.PatientID == "":
		return nil, domain.Validationf("patient_id is required")
	case turn.Text == "":
		return nil, domain.Validationf("message is required")
	}
	if turn.SessionID == "" {
		turn.SessionID = uuid.NewString()
	}

	lease := p.Sessions.Acquire(turn.SessionID)
	// keep the old memory unless the turn completes
	keep := lease.Memory()
	defer func() { lease.Release(keep) }()

	s, err := run(ctx, State{Turn: turn, Memory: keep},
		p.identify,
		p.detectLanguage,
		p.route,
		p.respond,
		p.remember,
		p.speak,
	)
	if err != nil {
		return nil, err
	}
	keep = s.Memory

	p.Log.WithFields(logrus.Fields{
		"session_id": turn.SessionID,
		"patient_id": turn.PatientID,
		"intent":     s.Classification.Intent,
		"source":     s.Classification.Source,
		"language":   s.Language,
	}).Info("turn handled")
	return s.reply(), nil
}

func (p *Pipeline) identify(ctx context.Context, s State) (State, error) {
	patient, err := p.Patients.Get(ctx, s.Turn.PatientID)
	if err != nil {
		return s, err
	}
	s.Patient = *patient
	return s, nil
}

func (p *Pipeline) detectLanguage(ctx context.Context, s State) (State, error) {
	hint := s.Turn.Language
	if hint == "" {
		hint = s.Memory.Language
	}
	if hint == "" {
		hint = s.Patient.Language
	}
	s.Language = p.Languages.Detect(ctx, s.Turn.Text, hint)
	return s, nil
}

func (p *Pipeline) route(ctx context.Context, s State) (State, error) {
	s.Classification = p.Router.Classify(ctx, s.Turn.Text, s.Memory)
	c := s.Classification
	unclearAnswer := c.Intent == domain.IntentGeneralChat && c.Source == SourceFallback
	if s.Memory.Pending != nil && c.Confirmation == ConfirmNone && !unclearAnswer {
		// the user moved on without answering
		s.Memory.Pending = nil
	}
	return s, nil
}

func (p *Pipeline) respond(ctx context.Context, s State) (State, error) {
	handler, ok := p.handlers[s.Classification.Intent]
	if !ok {
		handler = p.chat
	}
	out, err := run(ctx, s, handler)
	if err != nil {
		return s, err
	}
	out.Done = false
	return out, nil
}

func (p *Pipeline) remember(_ context.Context, s State) (State, error) {
	s.Memory.LastIntent = s.Classification.Intent
	s.Memory.Language = s.Language
	s.Memory.Turns++
	return s, nil
}

func (p *Pipeline) speak(_ context.Context, s State) (State, error) {
	if s.Turn.Voice && p.Speech != nil {
		s.AudioURL = p.Speech.AudioURL(s.Reply, s.Language)
	}
	return s, nil
}

func (p *Pipeline) greet(_ context.Context, s State) (State, error) {
	return s.withReply(say(s.Language, phGreeting, s.Patient.Name)), nil
}

func (p *Pipeline) symptoms(ctx context.Context, s State) (State, error) {
	an := advisor.Analyze(s.Turn.Text)
	if an.Empty() && len(s.Memory.LastSymptoms) > 0 {
		an = advisor.Analyze(strings.Join(s.Memory.LastSymptoms, " "))
	}
	if an.Empty() {
		return s.withReply(say(s.Language, phNoSymptom)), nil
	}
	s.Analysis = an
	s.Memory.LastSymptoms = append([]string(nil), an.Symptoms...)
	if an.Urgent {
		return s.withRecommendations(nil).withReply(say(s.Language, phUrgent, strings.Join(an.Symptoms, ", "))), nil
	}

	recs, err := p.Catalog.Recommend(ctx, an.Symptoms, p.opts.RecommendLimit)
	if err != nil {
		return s, err
	}
	s = s.withRecommendations(recs)

	text := say(s.Language, phSymptoms, strings.Join(an.Symptoms, ", "), strings.Join(an.Conditions, ", "))
	if advice := p.Catalog.Advice(ctx, an, s.Language, recs); advice != "" {
		text = advice
	}
	if len(recs) == 0 {
		return s.withReply(text + "\n" + say(s.Language, phNoMatch)), nil
	}
	lines := make([]string, 0, len(recs))
	for _, m := range recs {
		lines = append(lines, medicineLine(s.Language, m))
	}
	return s.withReply(text + "\n" + say(s.Language, phRecommend) + bulletList(lines)), nil
}

func (p *Pipeline) recommend(ctx context.Context, s State) (State, error) {
	med, found, err := p.Catalog.FindProduct(ctx, s.Turn.Text)
	if err != nil {
		return s, err
	}
	if found {
		s = s.withRecommendations([]domain.Medicine{*med})
		return s.withReply(medicineLine(s.Language, *med)), nil
	}
	if !advisor.Analyze(s.Turn.Text).Empty() || len(s.Memory.LastSymptoms) > 0 {
		return p.symptoms(ctx, s)
	}

	meds, err := p.Medicines.List(ctx, repository.MedicineFilter{InStockOnly: true})
	if err != nil {
		return s, err
	}
	if len(meds) > catalogLimit {
		meds = meds[:catalogLimit]
	}
	lines := make([]string, 0, len(meds))
	for _, m := range meds {
		lines = append(lines, medicineLine(s.Language, m))
	}
	return s.withRecommendations(meds).withReply(say(s.Language, phCatalog) + bulletList(lines)), nil
}

func (p *Pipeline) channel(s State) string {
	if s.Turn.Voice {
		return "voice"
	}
	return "chat"
}

// order handles a new order request or the answer to a pending one.
func (p *Pipeline) order(ctx context.Context, s State) (State, error) {
	switch s.Classification.Confirmation {
	case ConfirmYes:
		return run(ctx, s, p.execute)
	case ConfirmNo:
		s.Memory.Pending = nil
		return s.withReply(say(s.Language, phOrderCancelled)), nil
	}
	return run(ctx, s, p.checkOrder)
}

// productFor names the product the user is ordering: a catalog match, the
// only product just recommended, or whatever words remain.
func (p *Pipeline) productFor(ctx context.Context, s State) (string, error) {
	med, found, err := p.Catalog.FindProduct(ctx, s.Turn.Text)
	if err != nil {
		return "", err
	}
	if found {
		return med.Name, nil
	}
	if guess := GuessProductName(s.Turn.Text); guess != "" {
		return guess, nil
	}
	if len(s.Memory.LastRecommendations) == 1 {
		return s.Memory.LastRecommendations[0], nil
	}
	return "", nil
}

func (p *Pipeline) checkOrder(ctx context.Context, s State) (State, error) {
	name, err := p.productFor(ctx, s)
	if err != nil {
		return s, err
	}
	if name == "" {
		return s.withReply(say(s.Language, phAskProduct)), nil
	}
	qty := ParseQuantity(s.Turn.Text)

	approval, err := p.Orders.Check(ctx, service.PlaceOrderInput{
		PatientID:   s.Patient.ID,
		ProductName: name,
		Quantity:    qty,
		Channel:     p.channel(s),
	})
	if serr, ok := domain.AsSafetyError(err); ok {
		return p.blocked(s, serr), nil
	}
	if errors.Is(err, domain.ErrValidation) {
		return s.withReply(say(s.Language, phAskProduct)), nil
	}
	if err != nil {
		return s, err
	}

	med := approval.Medicine
	total := decimal.NewFromFloat(med.Price).Mul(decimal.NewFromInt(qty)).Round(2).InexactFloat64()
	s.Memory.Pending = &PendingOrder{ProductName: med.Name, Quantity: qty, UnitPrice: med.Price}
	s.RequiresConfirmation = true
	s = s.withRecommendations([]domain.Medicine{med})
	return s.withReply(say(s.Language, phConfirmOrder, qty, med.Name, med.Price, total)), nil
}

// execute places the pending order. The gate runs again inside PlaceOrder,
// so stock or prescriptions that changed since the question are honoured.
func (p *Pipeline) execute(ctx context.Context, s State) (State, error) {
	pending := s.Memory.Pending
	s.Memory.Pending = nil
	if pending == nil {
		return s.withReply(say(s.Language, phAskProduct)), nil
	}
	o, err := p.Orders.PlaceOrder(ctx, service.PlaceOrderInput{
		PatientID:   s.Patient.ID,
		ProductName: pending.ProductName,
		Quantity:    pending.Quantity,
		Channel:     p.channel(s),
	})
	if serr, ok := domain.AsSafetyError(err); ok {
		return p.blocked(s, serr), nil
	}
	if err != nil {
		return s, err
	}
	s.Order = o
	return s.withReply(say(s.Language, phOrderPlaced, o.ID, o.Quantity, o.ProductName, o.TotalPrice)), nil
}

func (p *Pipeline) blocked(s State, serr *domain.SafetyError) State {
	s.Safety = serr
	s.Memory.Pending = nil
	return s.withRecommendations(serr.Substitutes).withReply(safetyReply(s.Language, serr))
}

func (p *Pipeline) history(ctx context.Context, s State) (State, error) {
	orders, err := p.Patients.Orders(ctx, s.Patient.ID)
	if err != nil {
		return s, err
	}
	if len(orders) == 0 {
		return s.withReply(say(s.Language, phNoOrders)), nil
	}
	if len(orders) > historyLimit {
		orders = orders[:historyLimit]
	}
	lines := make([]string, 0, len(orders))
	for _, o := range orders {
		lines = append(lines, fmt.Sprintf("#%d %s: %d x %s, ₹%.2f (%s)",
			o.ID, o.CreatedAt.Format(domain.AlertDayLayout), o.Quantity, o.ProductName, o.TotalPrice, o.Status))
	}
	return s.withReply(say(s.Language, phHistory) + bulletList(lines)), nil
}

func (p *Pipeline) refills(ctx context.Context, s State) (State, error) {
	due, err := p.Refills.ForPatient(ctx, s.Patient.ID, p.opts.RefillHorizonDays)
	if err != nil {
		return s, err
	}
	if len(due) == 0 {
		return s.withReply(say(s.Language, phNoRefills, p.opts.RefillHorizonDays)), nil
	}
	lines := make([]string, 0, len(due))
	for _, a := range due {
		lines = append(lines, fmt.Sprintf("%s: %d, %s", a.ProductName, a.DaysUntilRefill, a.DueDate.Format(domain.AlertDayLayout)))
	}
	return s.withReply(say(s.Language, phRefills) + bulletList(lines)), nil
}

func (p *Pipeline) profile(_ context.Context, s State) (State, error) {
	pt := s.Patient
	return s.withReply(say(s.Language, phProfile, pt.Name, pt.Age, pt.Phone, pt.Email, pt.Address, pt.Language)), nil
}

func (p *Pipeline) chat(ctx context.Context, s State) (State, error) {
	if pending := s.Memory.Pending; pending != nil {
		s.RequiresConfirmation = true
		return s.withReply(say(s.Language, phAskConfirm, pending.ProductName)), nil
	}
	if p.Chat != nil {
		answer, err := p.Chat.Chat(ctx, []llm.Message{
			llm.System(fmt.Sprintf("You are a friendly pharmacy assistant. Reply briefly in language %q. "+
				"Do not diagnose and do not name medicines; offer to check symptoms, orders or refills instead.", s.Language)),
			llm.User(s.Turn.Text),
		})
		if err == nil && answer != "" {
			return s.withReply(answer), nil
		}
		if err != nil {
			p.Log.WithError(err).Warn("general chat failed")
		}
	}
	return s.withReply(say(s.Language, phHelp)), nil
}
