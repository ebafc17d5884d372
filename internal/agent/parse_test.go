package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		text string
		want int64
	}{
		{"order 3 paracetamol", 3},
		{"I want Paracetamol x2", 2},
		{"paracetamol 500 mg, 4 strips", 4},
		{"paracetamol 500mg", 1},
		{"two packs of digene please", 2},
		{"५ गोलियां चाहिए", 5},
		{"मला तीन गोळ्या हव्या", 3},
		{"paracetamol", 1},
		{"order 0 paracetamol", 1},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseQuantity(tt.text))
		})
	}
}

func TestGuessProductName(t *testing.T) {
	assert.Equal(t, "unobtainium", GuessProductName("I want to order 2 Unobtainium tablets"))
	assert.Equal(t, "magic syrup", GuessProductName("please buy me some magic syrup"))
	assert.Equal(t, "", GuessProductName("order it"))
}
