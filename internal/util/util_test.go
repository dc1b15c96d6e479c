package util

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncateString(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		maxLen        int
		preserveWords bool
		want          string
	}{
		{"short input unchanged", "Metformin", 20, false, "Metformin"},
		{"exact length unchanged", "1234567890", 10, false, "1234567890"},
		{"hard cut", "clinicaltrials.gov returned 503", 12, false, "clinicalt..."},
		{"word boundary", "upstream returned status 503 after retries", 21, true, "upstream returned..."},
		{"zero length", "test", 0, false, ""},
		{"negative length", "test", -1, false, ""},
		{"ellipsis only", "metformin", 3, false, "..."},
		{"multibyte runes", "メトホルミン市場規模", 6, false, "メトホ..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TruncateString(tt.input, tt.maxLen, tt.preserveWords))
		})
	}
}

func TestTruncateStringNeverSplitsRunes(t *testing.T) {
	for _, input := range []string{"Hello 👋 World", "Привет мир", "データベース"} {
		for maxLen := 1; maxLen < len(input)+5; maxLen++ {
			out := TruncateString(input, maxLen, false)
			assert.True(t, utf8.ValidString(out), "%q at %d", input, maxLen)
			assert.LessOrEqual(t, utf8.RuneCountInString(out), maxLen)
		}
	}
}
