// Package speech builds pointers to synthesised audio for voice replies.
// Synthesis itself happens in an external TTS service.
package speech

import (
	"net/url"
	"strings"

	"pharmabot/internal/domain"
)

// maxTextRunes keeps generated URLs under common gateway limits.
const maxTextRunes = 1000

type URLBuilder struct {
	base *url.URL
}

// NewURLBuilder parses base. An empty base disables audio pointers.
func NewURLBuilder(base string) (*URLBuilder, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return &URLBuilder{}, nil
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, domain.Validationf("speech base url %q must be absolute", base)
	}
	return &URLBuilder{base: u}, nil
}

// AudioURL returns base?text=...&lang=..., or "" when disabled or text is empty.
func (b *URLBuilder) AudioURL(text string, lang domain.Language) string {
	if b == nil || b.base == nil {
		return ""
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if r := []rune(text); len(r) > maxTextRunes {
		text = string(r[:maxTextRunes])
	}
	u := *b.base
	q := u.Query()
	q.Set("text", text)
	q.Set("lang", string(lang))
	u.RawQuery = q.Encode()
	return u.String()
}
