package agent

import (
	"strconv"
	"strings"

	"pharmabot/internal/advisor"
)

// zero digits of the scripts we accept numerals in
var zeroDigits = []rune{'0', '०', '০', '૦', '൦', '௦'}

var numberWords = map[string]int64{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"a couple": 2, "dozen": 12,
	"एक": 1, "तीन": 3, "चार": 4, "पांच": 5, "पाँच": 5, "छह": 6, "सात": 7, "आठ": 8, "नौ": 9, "दस": 10,
	"दोन": 2, "पाच": 5, "सहा": 6, "नऊ": 9, "दहा": 10,
}

// dosage units: a number right before one of these is a strength, not a count
var unitWords = map[string]bool{"mg": true, "ml": true, "mcg": true, "g": true, "iu": true}

// fillerWords are dropped when guessing the product name of an unknown item.
var fillerWords = map[string]bool{
	"i": true, "want": true, "to": true, "order": true, "buy": true, "purchase": true, "please": true,
	"me": true, "some": true, "of": true, "a": true, "an": true, "the": true, "get": true, "can": true,
	"give": true, "send": true, "need": true, "would": true, "like": true, "deliver": true, "for": true,
	"tablet": true, "tablets": true, "strip": true, "strips": true, "pack": true, "packs": true,
	"unit": true, "units": true, "bottle": true, "bottles": true, "capsules": true, "x": true,
	"it": true, "that": true, "this": true, "these": true, "those": true, "more": true, "same": true,
	"again": true, "and": true, "also": true, "now": true, "my": true,
	"ऑर्डर": true, "चाहिए": true, "करो": true, "करें": true, "मुझे": true, "गोली": true, "गोलियां": true,
	"हवे": true, "हवी": true, "पाहिजे": true, "करा": true, "मला": true, "गोळ्या": true,
}

func digitValue(r rune) (int64, bool) {
	for _, z := range zeroDigits {
		if r >= z && r <= z+9 {
			return int64(r - z), true
		}
	}
	return 0, false
}

// parseNumber reads a token made only of digits in any supported script.
func parseNumber(tok string) (int64, bool) {
	tok = strings.TrimSuffix(strings.TrimPrefix(tok, "x"), "x")
	if tok == "" {
		return 0, false
	}
	var n int64
	for _, r := range tok {
		d, ok := digitValue(r)
		if !ok {
			return 0, false
		}
		n = n*10 + d
		if n > 1_000_000 {
			return 0, false
		}
	}
	return n, true
}

// ParseQuantity finds the number of units asked for, defaulting to 1.
// Strengths such as "500 mg" are skipped.
func ParseQuantity(text string) int64 {
	norm := advisor.Normalize(text)
	toks := strings.Fields(norm)
	for i, tok := range toks {
		n, ok := parseNumber(tok)
		if !ok {
			continue
		}
		if i+1 < len(toks) && unitWords[toks[i+1]] {
			continue
		}
		if n > 0 {
			return n
		}
	}
	for i, tok := range toks {
		if i+1 < len(toks) {
			if n, ok := numberWords[tok+" "+toks[i+1]]; ok {
				return n
			}
		}
		if n, ok := numberWords[tok]; ok {
			return n
		}
	}
	return 1
}

// GuessProductName strips order words and numbers from text, leaving what is
// probably the product the user asked for. It returns "" when nothing is left.
func GuessProductName(text string) string {
	var keep []string
	toks := strings.Fields(advisor.Normalize(text))
	for _, tok := range toks {
		if fillerWords[tok] || unitWords[tok] {
			continue
		}
		if _, ok := numberWords[tok]; ok {
			continue
		}
		if _, ok := parseNumber(tok); ok {
			continue
		}
		if strings.HasSuffix(tok, "mg") {
			if _, err := strconv.Atoi(strings.TrimSuffix(tok, "mg")); err == nil {
				continue
			}
		}
		keep = append(keep, tok)
	}
	return strings.Join(keep, " ")
}
