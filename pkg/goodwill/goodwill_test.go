package goodwill

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func feature(value float64) *Feature {
	return &Feature{
		CurrentValue: value,
		Thresholds: []Threshold{
			{Level: 0, PromptAddon: "neutral"},
			{Level: 50, PromptAddon: "friendly"},
			{Level: -50, PromptAddon: "hostile"},
		},
	}
}

func TestApplyPicksHighestReachedThreshold(t *testing.T) {
	assert.Equal(t, "friendly hi", feature(60).Apply("hi"))
	assert.Equal(t, "friendly hi", feature(50).Apply("hi"))
	assert.Equal(t, "neutral hi", feature(49).Apply("hi"))
	assert.Equal(t, "hostile hi", feature(-10).Apply("hi"))
	assert.Equal(t, "hi", feature(-51).Apply("hi"))
}

func TestApplyWithoutThresholds(t *testing.T) {
	assert.Equal(t, "hi", New().Apply("hi"))
	var f *Feature
	assert.Equal(t, "hi", f.Apply("hi"))
}

func TestFluctuate(t *testing.T) {
	f := feature(10)
	delta := -4.5
	f.Fluctuate(&delta)
	assert.Equal(t, 5.5, f.CurrentValue)
	f.Fluctuate(nil)
	assert.Equal(t, 5.5, f.CurrentValue)
}
