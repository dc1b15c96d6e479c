package synthesis

import (
	"errors"
	"fmt"
	"math"
)

// Weights are the contributions of each signal to the feasibility score.
type Weights struct {
	Trial  float64 `mapstructure:"trial"`
	FTO    float64 `mapstructure:"fto"`
	Market float64 `mapstructure:"market"`
}

// Level is one row of an ordinal table: counts below Below score Score.
// A row with Below <= 0 matches everything and must come last.
type Level struct {
	Below int     `mapstructure:"below"`
	Label string  `mapstructure:"label"`
	Score float64 `mapstructure:"score"`
}

// MarketTable grades market attractiveness from size and growth.
type MarketTable struct {
	LargeSizeUSD      float64 `mapstructure:"large_size_usd"`
	MediumSizeUSD     float64 `mapstructure:"medium_size_usd"`
	HighGrowthPct     float64 `mapstructure:"high_growth_pct"`
	ModerateGrowthPct float64 `mapstructure:"moderate_growth_pct"`
	HighScore         float64 `mapstructure:"high_score"`
	ModerateScore     float64 `mapstructure:"moderate_score"`
	LowScore          float64 `mapstructure:"low_score"`
}

// Params holds every tunable constant of deterministic synthesis.
type Params struct {
	Weights Weights `mapstructure:"weights"`

	GoThreshold          float64 `mapstructure:"go_threshold"`
	ConditionalThreshold float64 `mapstructure:"conditional_threshold"`

	HighConfidence   float64 `mapstructure:"high_confidence"`
	MediumConfidence float64 `mapstructure:"medium_confidence"`

	TrialLevels []Level     `mapstructure:"trial_levels"`
	FTOLevels   []Level     `mapstructure:"fto_levels"`
	Market      MarketTable `mapstructure:"market"`
}

// DefaultParams returns the calibration used unless configured otherwise.
func DefaultParams() Params {
	return Params{
		Weights:              Weights{Trial: 0.3, FTO: 0.4, Market: 0.3},
		GoThreshold:          0.7,
		ConditionalThreshold: 0.4,
		HighConfidence:       0.8,
		MediumConfidence:     0.5,
		TrialLevels: []Level{
			{Below: 1, Label: "none", Score: 0.2},
			{Below: 5, Label: "low", Score: 0.5},
			{Below: 20, Label: "moderate", Score: 0.8},
			{Label: "high", Score: 1.0},
		},
		FTOLevels: []Level{
			{Below: 1, Label: "clear", Score: 1.0},
			{Below: 5, Label: "moderate", Score: 0.6},
			{Label: "constrained", Score: 0.3},
		},
		Market: MarketTable{
			LargeSizeUSD:      1e9,
			MediumSizeUSD:     1e8,
			HighGrowthPct:     10,
			ModerateGrowthPct: 5,
			HighScore:         1.0,
			ModerateScore:     0.6,
			LowScore:          0.3,
		},
	}
}

var ErrInvalidParams = errors.New("invalid synthesis parameters")

// Validate checks weights sum to one, thresholds are ordered and the
// ordinal tables are well formed.
func (p Params) Validate() error {
	w := p.Weights
	if w.Trial < 0 || w.FTO < 0 || w.Market < 0 {
		return fmt.Errorf("%w: weights must be non-negative", ErrInvalidParams)
	}
	if sum := w.Trial + w.FTO + w.Market; math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("%w: weights sum to %v, want 1", ErrInvalidParams, sum)
	}
	if !inUnit(p.GoThreshold) || !inUnit(p.ConditionalThreshold) || p.ConditionalThreshold > p.GoThreshold {
		return fmt.Errorf("%w: need 0 <= conditional (%v) <= go (%v) <= 1", ErrInvalidParams, p.ConditionalThreshold, p.GoThreshold)
	}
	if !inUnit(p.HighConfidence) || !inUnit(p.MediumConfidence) || p.MediumConfidence > p.HighConfidence {
		return fmt.Errorf("%w: need 0 <= medium (%v) <= high (%v) <= 1 confidence", ErrInvalidParams, p.MediumConfidence, p.HighConfidence)
	}
	if err := validateLevels("trial_levels", p.TrialLevels); err != nil {
		return err
	}
	if err := validateLevels("fto_levels", p.FTOLevels); err != nil {
		return err
	}
	m := p.Market
	if m.MediumSizeUSD > m.LargeSizeUSD || m.ModerateGrowthPct > m.HighGrowthPct {
		return fmt.Errorf("%w: market size and growth cut points must be ordered", ErrInvalidParams)
	}
	if !inUnit(m.HighScore) || !inUnit(m.ModerateScore) || !inUnit(m.LowScore) {
		return fmt.Errorf("%w: market scores must be within [0,1]", ErrInvalidParams)
	}
	return nil
}

func validateLevels(name string, levels []Level) error {
	if len(levels) == 0 {
		return fmt.Errorf("%w: %s is empty", ErrInvalidParams, name)
	}
	prev := 0
	for i, l := range levels {
		last := i == len(levels)-1
		if !inUnit(l.Score) {
			return fmt.Errorf("%w: %s[%d] score %v outside [0,1]", ErrInvalidParams, name, i, l.Score)
		}
		if last != (l.Below <= 0) {
			return fmt.Errorf("%w: %s must end with exactly one catch-all row", ErrInvalidParams, name)
		}
		if !last {
			if l.Below <= prev {
				return fmt.Errorf("%w: %s cut points must increase", ErrInvalidParams, name)
			}
			prev = l.Below
		}
	}
	return nil
}

func inUnit(v float64) bool { return v >= 0 && v <= 1 }

func lookup(levels []Level, n int) Level {
	for _, l := range levels {
		if l.Below <= 0 || n < l.Below {
			return l
		}
	}
	return Level{}
}
