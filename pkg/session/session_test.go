package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-go-golems/loomchat/pkg/conversation"
	"github.com/go-go-golems/loomchat/pkg/status"
	"github.com/go-go-golems/loomchat/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionDefaults(t *testing.T) {
	now := time.Date(2025, 11, 5, 10, 0, 0, 0, time.UTC)
	s := New(now)
	assert.Equal(t, DefaultTitle, s.Title)
	assert.Equal(t, APIModeStandard, s.Features.APIMode)
	require.NotNil(t, s.Features.Goodwill)
	assert.Equal(t, 0.0, s.Features.Goodwill.CurrentValue)
	assert.Equal(t, 0, s.Tree.Len())
	assert.Equal(t, now, s.CreatedAt)
}

func TestActivePathHonorsHideFirstMessage(t *testing.T) {
	s := New(time.Now())
	root := conversation.NewUserMessage("opening prompt")
	reply := conversation.NewAssistantMessage("hello")
	require.NoError(t, s.Tree.Append(conversation.NullNode, root))
	require.NoError(t, s.Tree.Append(root.ID, reply))

	var texts []string
	for m := range s.ActivePath() {
		texts = append(texts, m.Text)
	}
	assert.Equal(t, []string{"opening prompt", "hello"}, texts)

	s.HideFirstMessage = true
	texts = nil
	for m := range s.ActivePath() {
		texts = append(texts, m.Text)
	}
	assert.Equal(t, []string{"hello"}, texts)
	assert.Equal(t, "opening prompt", s.OpeningText())
}

func TestTitleFromCountsRunes(t *testing.T) {
	assert.Equal(t, "こんにちは、世界！今", TitleFrom("こんにちは、世界！今日はいい天気", 10))
	assert.Equal(t, "short", TitleFrom("short", 10))
	assert.Equal(t, "0123456789", TitleFrom("0123456789abc", 10))
}

func TestAPIModeDecoding(t *testing.T) {
	var fs FeatureSettings
	require.NoError(t, json.Unmarshal([]byte(`{"apiMode":"oneStepFC"}`), &fs))
	assert.Equal(t, APIModeOneStepFC, fs.APIMode)
	assert.True(t, fs.APIMode.UsesFunctionCalling())
	assert.False(t, APIModeStandard.UsesFunctionCalling())
	require.Error(t, json.Unmarshal([]byte(`{"apiMode":"threeStep"}`), &fs))
}

func TestInventoryApply(t *testing.T) {
	inv := &InventoryFeature{Enabled: true, Items: []Item{{ID: "1", Name: "Potion", Quantity: 2}}}
	inv.Apply([]ItemChange{
		{Name: "potion", Delta: -1},
		{Name: "Sword", Delta: 1},
		{Name: "Shield", Delta: -3},
		{Name: " ", Delta: 4},
	})
	require.Len(t, inv.Items, 2)
	assert.Equal(t, 1, inv.Items[0].Quantity)
	assert.Equal(t, "Sword", inv.Items[1].Name)

	inv.Apply([]ItemChange{{Name: "Potion", Delta: -1}})
	require.Len(t, inv.Items, 1)
	assert.Equal(t, "Sword", inv.Items[0].Name)

	disabled := &InventoryFeature{}
	disabled.Apply([]ItemChange{{Name: "Sword", Delta: 1}})
	assert.Empty(t, disabled.Items)
}

func TestRepositoryPersistsSessions(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	repo, err := LoadRepository(ctx, st)
	require.NoError(t, err)

	s, err := repo.Create(ctx)
	require.NoError(t, err)
	msg := conversation.NewUserMessage("hi")
	require.NoError(t, s.Tree.Append(conversation.NullNode, msg))
	s.CustomStatuses = status.Statuses{{ID: "hp", Name: "HP", CurrentValue: "10"}}
	require.NoError(t, repo.Save(ctx, s))

	other, err := repo.Create(ctx)
	require.NoError(t, err)

	reloaded, err := LoadRepository(ctx, st)
	require.NoError(t, err)
	assert.Len(t, reloaded.List(), 2)

	got, err := reloaded.Get(s.ID)
	require.NoError(t, err)
	m, ok := got.Tree.Get(msg.ID)
	require.True(t, ok)
	assert.Equal(t, "hi", m.Text)
	assert.Equal(t, "10", got.CustomStatuses[0].CurrentValue)

	require.NoError(t, reloaded.Delete(ctx, other.ID))
	_, err = reloaded.Get(other.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)
	require.ErrorIs(t, reloaded.Delete(ctx, other.ID), ErrSessionNotFound)
}

func TestRepositoryRollsBackOnStoreFailure(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	repo, err := LoadRepository(ctx, st)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	_, err = repo.Create(ctx)
	require.ErrorIs(t, err, store.ErrClosed)
	assert.Empty(t, repo.List())
}
