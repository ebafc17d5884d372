package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"pharmabot/internal/advisor"
	"pharmabot/internal/domain"
	"pharmabot/internal/llm"
	"pharmabot/internal/metrics"
)

// Confirmation is the answer to a pending order question.
type Confirmation int

const (
	ConfirmNone Confirmation = iota
	ConfirmYes
	ConfirmNo
)

// Source tells how an intent was decided.
type Source string

const (
	SourceRule     Source = "rule"
	SourceModel    Source = "model"
	SourceFallback Source = "fallback"
)

// Classification is the router's decision for one utterance.
type Classification struct {
	Intent       domain.Intent
	Confirmation Confirmation
	Source       Source
}

type rule struct {
	intent  domain.Intent
	phrases []string
}

var (
	confirmPhrases = []string{
		"yes", "yeah", "yep", "sure", "ok", "okay", "confirm", "confirmed", "proceed", "go ahead",
		"place order", "place the order", "order it", "please do", "do it", "yes please",
		"हाँ", "हां", "जी हाँ", "ठीक है", "पुष्टि", "कन्फर्म",
		"होय", "चालेल", "ठीक आहे", "नक्की",
	}
	declinePhrases = []string{
		"no", "nope", "cancel", "abort", "stop", "don't", "do not", "not now", "later",
		"नहीं", "नही", "रद्द", "कैंसल",
		"नको", "नाही",
	}

	// checked in order; the first rule with a matching phrase wins
	rules = []rule{
		{domain.IntentOrderHistory, []string{
			"order history", "my orders", "past orders", "previous orders", "order status",
			"what i ordered", "my purchases", "track my order", "where is my order", "my order",
			"मेरे ऑर्डर", "ऑर्डर इतिहास", "ऑर्डर की स्थिति",
			"माझे ऑर्डर", "ऑर्डरचा इतिहास",
		}},
		{domain.IntentRefillCheck, []string{
			"refill", "refills", "reminder", "reminders", "running out", "run out", "next refill",
			"रिफिल", "दोबारा कब", "याद दिलाना",
			"आठवण", "पुन्हा कधी",
		}},
		{domain.IntentProfileView, []string{
			"my profile", "profile", "my account", "my details", "my info", "my information",
			"मेरी प्रोफाइल", "प्रोफाइल", "प्रोफ़ाइल", "मेरी जानकारी",
			"माझी प्रोफाइल", "माझी माहिती",
		}},
		{domain.IntentOrderPlacement, []string{
			"order", "buy", "purchase", "i want to order", "i want to buy", "can i get", "give me",
			"send me", "deliver",
			"ऑर्डर", "खरीद", "मंगवा", "भेज दो",
			"विकत", "मागवा", "पाठवा",
		}},
		{domain.IntentSymptomQuery, []string{
			"symptom", "symptoms", "suffering", "not feeling well", "feeling unwell", "i feel sick",
			"तकलीफ", "बीमार",
			"त्रास", "आजारी",
		}},
		{domain.IntentRecommendation, []string{
			"recommend", "suggest", "medicine for", "medicines for", "what medicines", "which medicine",
			"show medicines", "list medicines", "available medicines", "catalog", "catalogue",
			"do you have", "in stock", "price of", "how much", "tell me about",
			"कौन सी दवा", "दवा बताइए", "सुझाव", "दवाइयां",
			"कोणते औषध", "औषध सुचवा", "औषधे",
		}},
		{domain.IntentGreeting, []string{
			"hello", "hi", "hey", "good morning", "good afternoon", "good evening", "namaste", "namaskar",
			"नमस्ते", "नमस्कार", "राम राम",
		}},
	}
)

// matchWords is matchAny restricted to whole words in every script, for
// short answers like "हाँ" that also occur inside longer words.
func matchWords(norm string, phrases []string) bool {
	padded := " " + norm + " "
	for _, p := range phrases {
		if strings.Contains(padded, " "+p+" ") {
			return true
		}
	}
	return false
}

func matchAny(norm string, phrases []string) bool {
	for _, p := range phrases {
		if advisor.Mentions(norm, p) {
			return true
		}
	}
	return false
}

// Router классифицирует реплику пользователя
type Router struct {
	llm     llm.Client
	metrics metrics.Recorder
	log     logrus.FieldLogger
}

// NewRouter returns a Router. client may be nil, in which case unmatched
// utterances go straight to GENERAL_CHAT.
func NewRouter(client llm.Client, rec metrics.Recorder, log logrus.FieldLogger) *Router {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Router{llm: client, metrics: rec, log: log}
}

// Classify picks the intent of text. While an order awaits confirmation,
// yes/no answers outrank every other rule. Classification never fails:
// anything unresolved becomes GENERAL_CHAT.
func (r *Router) Classify(ctx context.Context, text string, mem Memory) Classification {
	norm := advisor.Normalize(text)

	if mem.Pending != nil {
		switch {
		case matchWords(norm, declinePhrases):
			return Classification{Intent: domain.IntentOrderPlacement, Confirmation: ConfirmNo, Source: SourceRule}
		case matchWords(norm, confirmPhrases):
			return Classification{Intent: domain.IntentOrderPlacement, Confirmation: ConfirmYes, Source: SourceRule}
		}
	}

	for _, rl := range rules {
		if rl.intent == domain.IntentSymptomQuery && advisor.HasSymptom(text) {
			return Classification{Intent: rl.intent, Source: SourceRule}
		}
		if matchAny(norm, rl.phrases) {
			return Classification{Intent: rl.intent, Source: SourceRule}
		}
	}

	if mem.Pending != nil {
		// unclear answer to a pending question; the pipeline asks again
		return Classification{Intent: domain.IntentGeneralChat, Source: SourceFallback}
	}

	intent, err := r.classifyWithModel(ctx, text)
	if err != nil {
		r.log.WithError(fmt.Errorf("%w: %v", domain.ErrClassificationFallback, err)).Info("intent fallback")
		r.metrics.Count(ctx, metrics.IntentFallbacks, 1, nil)
		return Classification{Intent: domain.IntentGeneralChat, Source: SourceFallback}
	}
	return Classification{Intent: intent, Source: SourceModel}
}

func (r *Router) classifyWithModel(ctx context.Context, text string) (domain.Intent, error) {
	if r.llm == nil {
		return "", llm.ErrNotConfigured
	}
	labels := make([]string, 0, len(domain.Intents))
	for _, in := range domain.Intents {
		labels = append(labels, string(in))
	}
	prompt := fmt.Sprintf("Classify the intent of this pharmacy customer message: %q\n"+
		"Answer with exactly one of: %s", text, strings.Join(labels, ", "))
	answer, err := r.llm.Chat(ctx, []llm.Message{
		llm.System("You route messages for a pharmacy assistant. Reply with the label only."),
		llm.User(prompt),
	})
	if err != nil {
		return "", err
	}
	label := strings.ToUpper(strings.Trim(strings.TrimSpace(answer), ".\"'`"))
	if in, ok := domain.ParseIntent(label); ok {
		return in, nil
	}
	for _, in := range domain.Intents {
		if strings.Contains(label, string(in)) {
			return in, nil
		}
	}
	return "", fmt.Errorf("unknown label %q", answer)
}
