// Package goodwill tracks a single numeric affinity value for a session and maps it onto
// prompt addenda through a list of thresholds.
package goodwill

import (
	"sort"
)

type Threshold struct {
	Level       float64 `json:"level" yaml:"level"`
	PromptAddon string  `json:"prompt_addon" yaml:"promptAddon"`
}

type Feature struct {
	CurrentValue     float64     `json:"currentValue" yaml:"currentValue"`
	Thresholds       []Threshold `json:"thresholds" yaml:"thresholds"`
	DescriptionForAI string      `json:"descriptionForAI,omitempty" yaml:"descriptionForAI,omitempty"`
}

func New() *Feature {
	return &Feature{}
}

// Active returns the highest threshold whose level is at or below the current value.
func (f *Feature) Active() (Threshold, bool) {
	if f == nil || len(f.Thresholds) == 0 {
		return Threshold{}, false
	}
	sorted := make([]Threshold, len(f.Thresholds))
	copy(sorted, f.Thresholds)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Level > sorted[j].Level })
	for _, t := range sorted {
		if t.Level <= f.CurrentValue {
			return t, true
		}
	}
	return Threshold{}, false
}

// Apply prefixes text with the addon of the active threshold.
func (f *Feature) Apply(text string) string {
	t, ok := f.Active()
	if !ok || t.PromptAddon == "" {
		return text
	}
	return t.PromptAddon + " " + text
}

// Fluctuate adds delta to the current value. A nil delta means no change.
func (f *Feature) Fluctuate(delta *float64) {
	if f == nil || delta == nil {
		return
	}
	f.CurrentValue += *delta
}
