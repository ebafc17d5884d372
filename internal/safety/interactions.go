package safety

import (
	_ "embed"
	"encoding/json"
	"os"
	"sort"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

//go:embed interactions.json
var defaultInteractions []byte

// Interaction is a known conflict between two drugs.
type Interaction struct {
	Drugs          [2]string `json:"drugs"`
	Severity       string    `json:"severity"`
	Description    string    `json:"description"`
	Recommendation string    `json:"recommendation"`
}

type interactionFile struct {
	Aliases      map[string]string `json:"aliases"`
	Interactions []Interaction     `json:"interactions"`
}

// InteractionTable resolves brand names to a canonical drug and looks up
// pairwise conflicts.
type InteractionTable struct {
	aliases map[string]string
	known   []string // every alias and canonical name, longest first
	pairs   map[string]Interaction
}

// LoadInteractions reads the table from path, or the built-in table when path is empty.
func LoadInteractions(path string) (*InteractionTable, error) {
	data := defaultInteractions
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read interactions file %s", path)
		}
		data = b
	}
	var f interactionFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "parse interactions")
	}
	return newInteractionTable(f), nil
}

// DefaultInteractions returns the built-in table.
func DefaultInteractions() *InteractionTable {
	t, err := LoadInteractions("")
	if err != nil {
		panic(err)
	}
	return t
}

func newInteractionTable(f interactionFile) *InteractionTable {
	t := &InteractionTable{
		aliases: make(map[string]string, len(f.Aliases)),
		pairs:   make(map[string]Interaction, len(f.Interactions)),
	}
	seen := map[string]bool{}
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			t.known = append(t.known, name)
		}
	}
	for alias, canonical := range f.Aliases {
		alias, canonical = strings.ToLower(alias), strings.ToLower(canonical)
		t.aliases[alias] = canonical
		add(alias)
		add(canonical)
	}
	for _, in := range f.Interactions {
		a, b := strings.ToLower(in.Drugs[0]), strings.ToLower(in.Drugs[1])
		add(a)
		add(b)
		t.pairs[pairKey(a, b)] = in
	}
	// longest first so "ace inhibitors" wins over a shorter overlapping name
	sort.Slice(t.known, func(i, j int) bool {
		if len(t.known[i]) != len(t.known[j]) {
			return len(t.known[i]) > len(t.known[j])
		}
		return t.known[i] < t.known[j]
	})
	return t
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// Canonical maps a product name such as "Advil 200mg" to the drug it
// contains, or "" when the table does not know it.
func (t *InteractionTable) Canonical(productName string) string {
	name := " " + wordsOnly(productName) + " "
	for _, k := range t.known {
		if strings.Contains(name, " "+k+" ") {
			if c, ok := t.aliases[k]; ok {
				return c
			}
			return k
		}
	}
	return ""
}

// Lookup returns the interaction between two products, if any.
func (t *InteractionTable) Lookup(productA, productB string) (Interaction, bool) {
	a, b := t.Canonical(productA), t.Canonical(productB)
	if a == "" || b == "" || a == b {
		return Interaction{}, false
	}
	in, ok := t.pairs[pairKey(a, b)]
	return in, ok
}

func wordsOnly(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
