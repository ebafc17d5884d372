package advisor

import (
	"sort"
	"strings"
	"unicode"
)

// symptom describes one recognised complaint: the phrases that mention it
// (en/hi/mr), what it may indicate and which catalog terms treat it.
type symptom struct {
	name       string
	phrases    []string
	conditions []string
	keywords   []string
	urgent     bool
}

var symptomTable = []symptom{
	{
		name:       "fever",
		phrases:    []string{"fever", "feverish", "high temperature", "बुखार", "ज्वर", "ताप"},
		conditions: []string{"viral infection", "flu", "common cold"},
		keywords:   []string{"fever", "antipyretic", "pain"},
	},
	{
		name:       "cough",
		phrases:    []string{"cough", "coughing", "खांसी", "खाँसी", "खोकला"},
		conditions: []string{"common cold", "throat irritation", "bronchitis"},
		keywords:   []string{"cough", "expectorant", "throat"},
	},
	{
		name:       "cold",
		phrases:    []string{"cold", "blocked nose", "stuffy nose", "सर्दी", "जुकाम"},
		conditions: []string{"common cold", "allergic rhinitis"},
		keywords:   []string{"cold", "congestion", "sneezing"},
	},
	{
		name:       "runny nose",
		phrases:    []string{"runny nose", "sneezing", "नाक बहना", "छींक", "शिंका"},
		conditions: []string{"common cold", "allergic rhinitis"},
		keywords:   []string{"runny nose", "sneezing", "allergy", "cold"},
	},
	{
		name:       "headache",
		phrases:    []string{"headache", "head ache", "migraine", "सिरदर्द", "सिर दर्द", "डोकेदुखी", "डोके दुखते"},
		conditions: []string{"tension headache", "migraine", "dehydration"},
		keywords:   []string{"headache", "migraine", "pain"},
	},
	{
		name:       "body ache",
		phrases:    []string{"body ache", "body pain", "muscle pain", "बदन दर्द", "शरीर दर्द", "अंगदुखी"},
		conditions: []string{"viral infection", "muscle strain"},
		keywords:   []string{"pain", "body ache", "inflammation"},
	},
	{
		name:       "sore throat",
		phrases:    []string{"sore throat", "throat pain", "गले में खराश", "गला खराब", "घसा खवखव"},
		conditions: []string{"pharyngitis", "common cold"},
		keywords:   []string{"throat", "cough"},
	},
	{
		name:       "stomach pain",
		phrases:    []string{"stomach pain", "stomach ache", "abdominal pain", "पेट दर्द", "पेट में दर्द", "पोटदुखी", "पोट दुखते"},
		conditions: []string{"indigestion", "gastritis", "food poisoning"},
		keywords:   []string{"stomach", "abdominal", "gastric", "antacid"},
	},
	{
		name:       "acidity",
		phrases:    []string{"acidity", "heartburn", "acid reflux", "एसिडिटी", "अम्लपित्त", "जलन"},
		conditions: []string{"acid reflux", "gastritis"},
		keywords:   []string{"acidity", "heartburn", "antacid", "gastric"},
	},
	{
		name:       "vomiting",
		phrases:    []string{"vomiting", "vomit", "throwing up", "उल्टी", "उलटी"},
		conditions: []string{"food poisoning", "gastroenteritis"},
		keywords:   []string{"vomiting", "nausea"},
	},
	{
		name:       "nausea",
		phrases:    []string{"nausea", "nauseous", "मतली", "जी मिचलाना", "मळमळ"},
		conditions: []string{"indigestion", "motion sickness"},
		keywords:   []string{"nausea", "vomiting"},
	},
	{
		name:       "diarrhea",
		phrases:    []string{"diarrhea", "diarrhoea", "loose motion", "loose motions", "दस्त", "जुलाब"},
		conditions: []string{"gastroenteritis", "food poisoning"},
		keywords:   []string{"diarrhea", "rehydration", "electrolyte"},
	},
	{
		name:       "allergy",
		phrases:    []string{"allergy", "allergic", "itching", "rash", "एलर्जी", "खुजली", "खाज"},
		conditions: []string{"allergic reaction", "skin irritation"},
		keywords:   []string{"allergy", "antihistamine", "itching"},
	},
	{
		name:       "dizziness",
		phrases:    []string{"dizzy", "dizziness", "चक्कर"},
		conditions: []string{"low blood pressure", "dehydration", "vertigo"},
		keywords:   []string{"dizziness", "vertigo"},
	},
	{
		name:       "fatigue",
		phrases:    []string{"tired", "weak", "weakness", "fatigue", "थकान", "कमजोरी", "थकवा", "अशक्तपणा"},
		conditions: []string{"vitamin deficiency", "anaemia", "poor sleep"},
		keywords:   []string{"vitamin", "supplement", "weakness"},
	},
	{
		name:       "chest pain",
		phrases:    []string{"chest pain", "सीने में दर्द", "छाती में दर्द", "छातीत दुखणे"},
		conditions: []string{"cardiac condition", "severe acidity"},
		urgent:     true,
	},
	{
		name:       "breathing difficulty",
		phrases:    []string{"breathing difficulty", "shortness of breath", "can't breathe", "cannot breathe", "सांस लेने में तकलीफ", "श्वास घेण्यास त्रास"},
		conditions: []string{"asthma", "respiratory infection"},
		urgent:     true,
	},
}

// Analysis is the result of reading symptoms out of an utterance.
type Analysis struct {
	Symptoms   []string `json:"symptoms"`
	Conditions []string `json:"possible_conditions"`
	// Urgent is set when a symptom needs a doctor rather than an OTC product.
	Urgent bool `json:"urgent"`
}

func (a Analysis) Empty() bool { return len(a.Symptoms) == 0 }

// normalize lowercases text, turns punctuation into spaces and pads it so
// whole-word phrases can be matched with a plain substring search.
func normalize(text string) string {
	var b strings.Builder
	b.WriteByte(' ')
	for _, r := range strings.ToLower(text) {
		switch {
		case r == '\'':
			b.WriteRune(r)
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte(' ')
	return strings.Join(strings.Fields(b.String()), " ")
}

func containsPhrase(normText, phrase string) bool {
	return strings.Contains(" "+normText+" ", " "+phrase+" ")
}

// Analyze finds the known symptoms in text. Devanagari phrases match as
// substrings since postpositions are often attached to the noun.
func Analyze(text string) Analysis {
	norm := normalize(text)
	var out Analysis
	seenCond := map[string]bool{}
	for _, s := range symptomTable {
		matched := false
		for _, p := range s.phrases {
			if matched = Mentions(norm, p); matched {
				break
			}
		}
		if !matched {
			continue
		}
		out.Symptoms = append(out.Symptoms, s.name)
		out.Urgent = out.Urgent || s.urgent
		for _, c := range s.conditions {
			if !seenCond[c] {
				seenCond[c] = true
				out.Conditions = append(out.Conditions, c)
			}
		}
	}
	return out
}

// Normalize is the form Mentions expects as its first argument.
func Normalize(text string) string { return normalize(text) }

// Mentions reports whether normalized text contains phrase. Latin phrases
// must match whole words, other scripts match as substrings.
func Mentions(norm, phrase string) bool {
	if isLatin(phrase) {
		return containsPhrase(norm, phrase)
	}
	return strings.Contains(norm, phrase)
}

// HasSymptom reports whether text mentions any known symptom.
func HasSymptom(text string) bool { return !Analyze(text).Empty() }

func keywordsFor(symptoms []string) []string {
	set := map[string]bool{}
	for _, name := range symptoms {
		for _, s := range symptomTable {
			if s.name == name {
				for _, k := range s.keywords {
					set[k] = true
				}
			}
		}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func isLatin(s string) bool {
	for _, r := range s {
		if r > unicode.MaxLatin1 {
			return false
		}
	}
	return true
}
