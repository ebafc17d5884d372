// Package advisor reads symptoms out of user text and recommends products
// from the catalog. It never returns a name that is not in the catalog.
package advisor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/sirupsen/logrus"

	"pharmabot/internal/domain"
	"pharmabot/internal/llm"
	"pharmabot/internal/repository"
)

const (
	// similar names for an unknown product must be at least this close
	nameSimilarity = 0.5
	// a misspelled word still counts as a keyword/product hit at this ratio
	wordSimilarity = 0.8
)

// Advisor рекомендует товары из каталога по симптомам
type Advisor struct {
	medicines repository.MedicineRepository
	llm       llm.Client
	log       logrus.FieldLogger
}

// New returns an Advisor. client may be nil.
func New(medicines repository.MedicineRepository, client llm.Client, log logrus.FieldLogger) *Advisor {
	return &Advisor{medicines: medicines, llm: client, log: log}
}

// similarity is 1 - normalised edit distance, on lowercased input.
func similarity(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == b {
		return 1
	}
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

type scored struct {
	med   domain.Medicine
	score float64
}

func rank(list []scored, limit int) []domain.Medicine {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].score != list[j].score {
			return list[i].score > list[j].score
		}
		if (list[i].med.Stock > 0) != (list[j].med.Stock > 0) {
			return list[i].med.Stock > 0
		}
		return list[i].med.Name < list[j].med.Name
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	out := make([]domain.Medicine, 0, len(list))
	for _, s := range list {
		out = append(out, s.med)
	}
	return out
}

// keywordScore counts keyword hits: 2 for an indication, 1 for the other text fields.
func keywordScore(m domain.Medicine, keywords []string) float64 {
	var score float64
	text := strings.ToLower(m.Name + " " + m.Description + " " + m.Category)
	for _, k := range keywords {
		hit := false
		for _, ind := range m.Indications {
			ind = strings.ToLower(ind)
			if strings.Contains(ind, k) || similarity(ind, k) >= wordSimilarity {
				score += 2
				hit = true
				break
			}
		}
		if !hit && strings.Contains(text, k) {
			score++
		}
	}
	return score
}

// Recommend returns up to limit catalog products that treat the given
// symptoms, best match first, in-stock before out-of-stock.
func (a *Advisor) Recommend(ctx context.Context, symptoms []string, limit int) ([]domain.Medicine, error) {
	keywords := keywordsFor(symptoms)
	if len(keywords) == 0 {
		return nil, nil
	}
	catalog, err := a.medicines.List(ctx, repository.MedicineFilter{})
	if err != nil {
		return nil, err
	}
	var hits []scored
	for _, m := range catalog {
		if s := keywordScore(m, keywords); s > 0 {
			hits = append(hits, scored{med: m, score: s})
		}
	}
	return rank(hits, limit), nil
}

// AlternativeQuery describes what to substitute. Original is nil when the
// requested product is not in the catalog.
type AlternativeQuery struct {
	Name     string
	Original *domain.Medicine
	Quantity int64
	// Exclude drops candidates, e.g. prescription-only or interacting products.
	Exclude func(domain.Medicine) bool
	Limit   int
}

// Alternatives suggests in-stock substitutes: similar names for unknown
// products, otherwise products sharing category or indications.
func (a *Advisor) Alternatives(ctx context.Context, q AlternativeQuery) ([]domain.Medicine, error) {
	catalog, err := a.medicines.List(ctx, repository.MedicineFilter{InStockOnly: true})
	if err != nil {
		return nil, err
	}
	qty := q.Quantity
	if qty <= 0 {
		qty = 1
	}
	var hits []scored
	for _, m := range catalog {
		if !m.InStock(qty) {
			continue
		}
		if q.Exclude != nil && q.Exclude(m) {
			continue
		}
		if q.Original != nil {
			if m.ID == q.Original.ID {
				continue
			}
			var score float64
			if q.Original.Category != "" && strings.EqualFold(m.Category, q.Original.Category) {
				score += 2
			}
			score += keywordScore(m, lowerAll(q.Original.Indications))
			if score > 0 {
				hits = append(hits, scored{med: m, score: score})
			}
			continue
		}
		if s := similarity(m.Name, q.Name); s >= nameSimilarity {
			hits = append(hits, scored{med: m, score: s})
		}
	}
	return rank(hits, q.Limit), nil
}

// FindProduct locates a catalog product mentioned in text: the longest exact
// name first, then the closest single-word match.
func (a *Advisor) FindProduct(ctx context.Context, text string) (*domain.Medicine, bool, error) {
	catalog, err := a.medicines.List(ctx, repository.MedicineFilter{})
	if err != nil {
		return nil, false, err
	}
	norm := normalize(text)

	var exact *domain.Medicine
	for i := range catalog {
		name := normalize(catalog[i].Name)
		if name != "" && containsPhrase(norm, name) {
			if exact == nil || len(name) > len(normalize(exact.Name)) {
				exact = &catalog[i]
			}
		}
	}
	if exact != nil {
		return exact, true, nil
	}

	var (
		best      *domain.Medicine
		bestScore float64
	)
	for _, word := range strings.Fields(norm) {
		if utf8.RuneCountInString(word) < 4 {
			continue
		}
		for i := range catalog {
			first := strings.Fields(normalize(catalog[i].Name))
			if len(first) == 0 {
				continue
			}
			if s := similarity(word, first[0]); s >= wordSimilarity && s > bestScore {
				best, bestScore = &catalog[i], s
			}
		}
	}
	return best, best != nil, nil
}

// Advice asks the model for a short, safe explanation of the analysis in the
// given language. It returns "" when no model is configured or the call fails.
func (a *Advisor) Advice(ctx context.Context, an Analysis, lang domain.Language, recommended []domain.Medicine) string {
	if a.llm == nil || an.Empty() {
		return ""
	}
	names := make([]string, 0, len(recommended))
	for _, m := range recommended {
		names = append(names, m.Name)
	}
	prompt := fmt.Sprintf(
		"Symptoms: %s. Possible conditions: %s. Catalog products: %s. "+
			"Reply in language %q in at most three sentences. Do not diagnose. "+
			"Only mention products from the catalog list. Advise seeing a doctor if symptoms persist.",
		strings.Join(an.Symptoms, ", "), strings.Join(an.Conditions, ", "), strings.Join(names, ", "), string(lang))
	reply, err := a.llm.Chat(ctx, []llm.Message{
		llm.System("You are a careful pharmacy assistant."),
		llm.User(prompt),
	})
	if err != nil {
		a.log.WithError(err).Warn("advice generation failed")
		return ""
	}
	return reply
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
