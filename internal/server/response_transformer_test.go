package server

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/haryshwa05/pharmasynapse/internal/models"
)

func TestTruncateError(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantLen  int
	}{
		{
			name:     "short error unchanged",
			input:    "Connection refused",
			expected: "Connection refused",
			wantLen:  18,
		},
		{
			name:     "exactly 500 chars unchanged",
			input:    strings.Repeat("a", 500),
			expected: strings.Repeat("a", 500),
			wantLen:  500,
		},
		{
			name:     "501 chars gets truncated",
			input:    strings.Repeat("a", 501),
			expected: strings.Repeat("a", 500) + "... (truncated)",
			wantLen:  515,
		},
		{
			name:     "empty string unchanged",
			input:    "",
			expected: "",
			wantLen:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := truncateError(tt.input)
			assert.Equal(t, tt.expected, result)
			assert.Len(t, result, tt.wantLen)
		})
	}
}

func TestExtractStageErrors(t *testing.T) {
	qi, err := models.NewQueryIntent(models.IntentFields{
		Category:       models.CategoryRepurposing,
		RequiredStages: []models.StageID{models.StageMarket, models.StagePatent, models.StageClinicalTrials, models.StageSynthesis},
		Confidence:     0.6,
	})
	assert.NoError(t, err)

	v := models.NewView(qi,
		models.StageResult{StageID: models.StagePatent, Status: models.StatusTimeout, Error: models.ErrorTimeout, Message: strings.Repeat("x", 600)},
		models.StageResult{StageID: models.StageMarket, Status: models.StatusFailed, Error: models.ErrorUpstreamUnavailable, Message: "503"},
		models.StageResult{StageID: models.StageClinicalTrials, Status: models.StatusOK, Payload: &models.Payload{Available: true}},
		models.StageResult{StageID: models.StageSynthesis, Status: models.StatusOK},
	)

	errs := extractStageErrors(v)
	assert.Len(t, errs, 2)
	// Canonical order, not arrival order.
	assert.Equal(t, models.StageMarket, errs[0].Stage)
	assert.Equal(t, models.StagePatent, errs[1].Stage)
	assert.Equal(t, models.StatusTimeout, errs[1].Status)
	assert.Len(t, errs[1].Message, 515)

	assert.Empty(t, extractStageErrors(models.NewView(qi)))
}
