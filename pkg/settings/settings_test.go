package settings

import (
	"context"
	"testing"

	"github.com/go-go-golems/loomchat/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	s := NewSettings()
	assert.Equal(t, DefaultModel, s.Model)
	assert.False(t, s.APIErrorHandling.LoopAPIKeys)
	assert.False(t, s.APIErrorHandling.ExponentialBackoff)
	assert.Equal(t, 5, s.APIErrorHandling.MaxRetries)
	assert.Equal(t, int64(1000), s.APIErrorHandling.InitialWait().Milliseconds())
	assert.False(t, s.Assist.AutoCorrectURL)
	assert.Nil(t, s.Generation.Temperature)
	_, ok := s.ActiveKey()
	assert.False(t, ok)
}

func TestRotationIsRoundRobin(t *testing.T) {
	s := NewSettings()
	a := s.AddKey("a", "key-a")
	b := s.AddKey("b", "key-b")
	c := s.AddKey("c", "key-c")
	assert.Equal(t, a.ID, s.ActiveAPIKeyID)

	assert.False(t, s.CanRotate())
	s.APIErrorHandling.LoopAPIKeys = true
	assert.True(t, s.CanRotate())

	var seen []string
	for i := 0; i < 4; i++ {
		k, ok := s.Rotate()
		require.True(t, ok)
		seen = append(seen, k.ID)
	}
	assert.Equal(t, []string{b.ID, c.ID, a.ID, b.ID}, seen)
}

func TestRotateNeedsTwoKeys(t *testing.T) {
	s := NewSettings()
	s.APIErrorHandling.LoopAPIKeys = true
	s.AddKey("only", "k")
	assert.False(t, s.CanRotate())
	_, ok := s.Rotate()
	assert.False(t, ok)
}

func TestActiveKeyFallsBackToFirst(t *testing.T) {
	s := NewSettings()
	a := s.AddKey("a", "key-a")
	s.ActiveAPIKeyID = "stale"
	k, ok := s.ActiveKey()
	require.True(t, ok)
	assert.Equal(t, a.ID, k.ID)
}

func TestRemoveKeyReassignsActive(t *testing.T) {
	s := NewSettings()
	a := s.AddKey("a", "key-a")
	b := s.AddKey("b", "key-b")
	assert.True(t, s.RemoveKey(a.ID))
	assert.Equal(t, b.ID, s.ActiveAPIKeyID)
	assert.False(t, s.RemoveKey("missing"))
	assert.Equal(t, "****es-b", APIKey{Key: "prefix-key-es-b"}.Masked())
}

func TestCloneIsDeep(t *testing.T) {
	s := NewSettings()
	s.AddKey("a", "key-a")
	temp := float32(0.7)
	s.Generation.Temperature = &temp

	c := s.Clone()
	c.APIKeys[0].Key = "changed"
	*c.Generation.Temperature = 1
	assert.Equal(t, "key-a", s.APIKeys[0].Key)
	assert.Equal(t, float32(0.7), *s.Generation.Temperature)
}

func TestLoadSaveRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()

	loaded, err := Load(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, NewSettings(), loaded)

	s := NewSettings()
	s.AddKey("a", "key-a")
	s.Model = "gemini-2.5-pro"
	s.SystemPrompt = PromptToggle{Enabled: true, Text: "be brief"}
	require.NoError(t, Save(ctx, st, s))

	loaded, err = Load(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, s, loaded)
	assert.Equal(t, "be brief", loaded.SystemPrompt.Value())
	assert.Empty(t, loaded.DummyUserPrompt.Value())
}

func TestLoadFillsMissingErrorHandling(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	require.NoError(t, st.Set(ctx, store.KeyAppSettings, []byte(`{"model":"x","apiErrorHandling":{"loopApiKeys":true}}`)))

	s, err := Load(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, "x", s.Model)
	assert.True(t, s.APIErrorHandling.LoopAPIKeys)
	assert.Equal(t, 5, s.APIErrorHandling.MaxRetries)
	assert.Equal(t, 1000, s.APIErrorHandling.InitialWaitTime)
}
