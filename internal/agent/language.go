package agent

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"

	"pharmabot/internal/domain"
	"pharmabot/internal/llm"
)

var scripts = []struct {
	table *unicode.RangeTable
	lang  domain.Language
}{
	{unicode.Devanagari, domain.LangHindi},
	{unicode.Bengali, domain.LangBengali},
	{unicode.Gujarati, domain.LangGujarati},
	{unicode.Malayalam, domain.LangMalayalam},
	{unicode.Tamil, domain.LangTamil},
	{unicode.Latin, domain.LangEnglish},
}

// words that only show up in one of the two Devanagari languages
var (
	marathiMarkers = []string{"आहे", "आहेत", "मला", "मी", "तुम्ही", "माझे", "माझी", "माझा", "काय", "नाही", "पाहिजे", "हवे", "औषध", "आजार", "ताप"}
	hindiMarkers   = []string{"है", "हैं", "मुझे", "मैं", "आप", "मेरा", "मेरी", "मेरे", "क्या", "नहीं", "चाहिए", "दवा", "दवाई", "बुखार"}
)

// Latin-script markers: plain English and the common romanized spellings.
var (
	englishMarkers = []string{
		"i", "me", "my", "you", "your", "the", "a", "an", "is", "am", "are", "have", "has", "want", "need",
		"to", "for", "of", "and", "what", "how", "when", "where", "can", "please", "show", "tell",
		"yes", "no", "ok", "okay", "hi", "hello", "thanks", "thank",
	}
	romanHindiMarkers = []string{
		"mujhe", "mujhko", "hai", "hain", "mera", "meri", "mere", "kya", "nahi", "nahin", "chahiye",
		"dawa", "dawai", "bukhar", "dard", "aap", "kaise", "haan",
	}
	romanMarathiMarkers = []string{
		"mala", "aahe", "ahe", "aahet", "majha", "majhe", "majhi", "kay", "nahee", "pahije",
		"aushadh", "taap", "dukhat", "tumhi", "hoy",
	}
)

// LanguageDetector guesses the language of an utterance from its script and
// marker words, asking the model when those do not settle it.
type LanguageDetector struct {
	supported map[domain.Language]bool
	fallback  domain.Language
	llm       llm.Client
	log       logrus.FieldLogger
}

// NewLanguageDetector returns a detector. client may be nil, in which case
// ambiguous text keeps its script language.
func NewLanguageDetector(supported []domain.Language, fallback domain.Language, client llm.Client, log logrus.FieldLogger) *LanguageDetector {
	if log == nil {
		log = logrus.StandardLogger()
	}
	d := &LanguageDetector{supported: make(map[domain.Language]bool), fallback: fallback, llm: client, log: log}
	for _, l := range supported {
		d.supported[l] = true
	}
	if fallback == "" {
		d.fallback = domain.LangEnglish
	}
	d.supported[d.fallback] = true
	return d
}

// Supported reports whether replies may be given in lang.
func (d *LanguageDetector) Supported(lang domain.Language) bool { return d.supported[lang] }

// Detect returns the language of text when it is supported, else the client
// hint when supported, else the default language. Latin text without English
// or romanized markers, and Devanagari text without Hindi or Marathi markers,
// goes to the model; when the model cannot help the script language is used.
func (d *LanguageDetector) Detect(ctx context.Context, text string, hint domain.Language) domain.Language {
	if lang, ok := d.detect(ctx, text, hint); ok && d.supported[lang] {
		return lang
	}
	if d.supported[hint] {
		return hint
	}
	return d.fallback
}

func (d *LanguageDetector) detect(ctx context.Context, text string, hint domain.Language) (domain.Language, bool) {
	script, ok := detectScript(text)
	if !ok {
		return "", false
	}
	switch script {
	case domain.LangHindi:
		if lang, ok := byMarkers(text, hindiMarkers, marathiMarkers, domain.LangHindi, domain.LangMarathi); ok {
			return lang, true
		}
		if lang, ok := d.askModel(ctx, text); ok {
			return lang, true
		}
		// short answers like "होय" keep the language of the conversation
		if hint == domain.LangMarathi && d.supported[hint] {
			return hint, true
		}
		return domain.LangHindi, true
	case domain.LangEnglish:
		words := wordSet(strings.ToLower(text))
		if countMarkers(words, englishMarkers) > 0 &&
			countMarkers(words, englishMarkers) >= countMarkers(words, romanHindiMarkers)+countMarkers(words, romanMarathiMarkers) {
			return domain.LangEnglish, true
		}
		if lang, ok := byMarkers(strings.ToLower(text), romanHindiMarkers, romanMarathiMarkers, domain.LangHindi, domain.LangMarathi); ok {
			return lang, true
		}
		if lang, ok := d.askModel(ctx, text); ok {
			return lang, true
		}
		return domain.LangEnglish, true
	}
	return script, true
}

// askModel asks for the language code of text among the supported ones.
func (d *LanguageDetector) askModel(ctx context.Context, text string) (domain.Language, bool) {
	if d.llm == nil {
		return "", false
	}
	codes := make([]string, 0, len(d.supported))
	for _, l := range domain.Languages {
		if d.supported[l] {
			codes = append(codes, string(l))
		}
	}
	prompt := fmt.Sprintf("Which language is this pharmacy customer message written in? It may be "+
		"romanized.\nMessage: %q\nAnswer with exactly one code from: %s", text, strings.Join(codes, ", "))
	answer, err := d.llm.Chat(ctx, []llm.Message{
		llm.System("You identify the language of short messages. Reply with the language code only."),
		llm.User(prompt),
	})
	if err != nil {
		d.log.WithError(err).Info("language model fallback failed")
		return "", false
	}
	code := domain.Language(strings.ToLower(strings.Trim(strings.TrimSpace(answer), ".\"'`")))
	if code.Valid() && d.supported[code] {
		return code, true
	}
	d.log.WithField("answer", answer).Info("language model gave an unusable answer")
	return "", false
}

func detectScript(text string) (domain.Language, bool) {
	counts := make([]int, len(scripts))
	for _, r := range text {
		if !unicode.IsLetter(r) && !unicode.IsMark(r) {
			continue
		}
		for i, s := range scripts {
			if unicode.Is(s.table, r) {
				counts[i]++
				break
			}
		}
	}
	best := -1
	for i, c := range counts {
		if c > 0 && (best < 0 || c > counts[best]) {
			best = i
		}
	}
	if best < 0 {
		return "", false
	}
	return scripts[best].lang, true
}

func wordSet(text string) map[string]bool {
	words := map[string]bool{}
	for _, w := range strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsMark(r)
	}) {
		words[w] = true
	}
	return words
}

func countMarkers(words map[string]bool, markers []string) int {
	n := 0
	for _, m := range markers {
		if words[m] {
			n++
		}
	}
	return n
}

// byMarkers picks a or b by which marker list text matches more; a tie is
// undecided.
func byMarkers(text string, aMarkers, bMarkers []string, a, b domain.Language) (domain.Language, bool) {
	words := wordSet(text)
	na, nb := countMarkers(words, aMarkers), countMarkers(words, bMarkers)
	switch {
	case na > nb:
		return a, true
	case nb > na:
		return b, true
	}
	return "", false
}
