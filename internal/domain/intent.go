package domain

// Intent назначение реплики пользователя
type Intent string

const (
	IntentGreeting       Intent = "GREETING"
	IntentSymptomQuery   Intent = "SYMPTOM_QUERY"
	IntentRecommendation Intent = "MEDICINE_RECOMMENDATION"
	IntentOrderPlacement Intent = "ORDER_PLACEMENT"
	IntentOrderHistory   Intent = "ORDER_HISTORY"
	IntentRefillCheck    Intent = "REFILL_CHECK"
	IntentProfileView    Intent = "PROFILE_VIEW"
	IntentGeneralChat    Intent = "GENERAL_CHAT"
)

// Intents lists the fixed intent set.
var Intents = []Intent{
	IntentGreeting,
	IntentSymptomQuery,
	IntentRecommendation,
	IntentOrderPlacement,
	IntentOrderHistory,
	IntentRefillCheck,
	IntentProfileView,
	IntentGeneralChat,
}

// ParseIntent maps a label to a known intent.
func ParseIntent(label string) (Intent, bool) {
	for _, in := range Intents {
		if string(in) == label {
			return in, true
		}
	}
	return "", false
}

// Language ISO 639-1 код языка
type Language string

const (
	LangEnglish   Language = "en"
	LangHindi     Language = "hi"
	LangMarathi   Language = "mr"
	LangBengali   Language = "bn"
	LangGujarati  Language = "gu"
	LangMalayalam Language = "ml"
	LangTamil     Language = "ta"
)

// Languages lists every language the assistant can detect.
var Languages = []Language{LangEnglish, LangHindi, LangMarathi, LangBengali, LangGujarati, LangMalayalam, LangTamil}

func (l Language) Valid() bool {
	for _, known := range Languages {
		if l == known {
			return true
		}
	}
	return false
}
