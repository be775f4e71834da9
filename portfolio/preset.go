package portfolio

import "github.com/autostack-ml/autostack/pkg/errors"

// Preset names a bundle of portfolio scope and resource policy
// controlling the speed/quality tradeoff of a fit. Presets form a total
// order: each admits everything a weaker preset admits, plus more.
type Preset string

const (
	PresetMedium  Preset = "medium_quality"
	PresetGood    Preset = "good_quality"
	PresetHigh    Preset = "high_quality"
	PresetBest    Preset = "best_quality"
	PresetExtreme Preset = "extreme_quality"
)

// ExtremeRowCutoff is the hard policy boundary for the extreme preset:
// above this many training rows the extreme candidate set is not
// admitted and the engine falls back to the default (best) set.
const ExtremeRowCutoff = 30000

var presetRanks = map[Preset]int{
	PresetMedium:  0,
	PresetGood:    1,
	PresetHigh:    2,
	PresetBest:    3,
	PresetExtreme: 4,
}

// Rank returns the preset's position in the quality/speed total order,
// 0 being the fastest.
func (p Preset) Rank() int {
	return presetRanks[p]
}

// Valid reports whether p names a known preset.
func (p Preset) Valid() bool {
	_, ok := presetRanks[p]
	return ok
}

// ParsePreset validates a preset name. An empty name resolves to the
// good-quality default.
func ParsePreset(s string) (Preset, error) {
	if s == "" {
		return PresetGood, nil
	}
	p := Preset(s)
	if !p.Valid() {
		return "", errors.NewValidationError("preset", "unknown preset name", s)
	}
	return p, nil
}
