package cmds

import (
	"context"
	"errors"
	"testing"

	"github.com/go-go-golems/loomchat/pkg/settings"
	"github.com/stretchr/testify/assert"
)

type fakeLister map[string][]string

func (f fakeLister) ListModels(_ context.Context, k settings.APIKey) ([]string, error) {
	models, ok := f[k.ID]
	if !ok {
		return nil, errors.New("invalid key")
	}
	return models, nil
}

func TestListAllModelsMergesKeys(t *testing.T) {
	lister := fakeLister{
		"a": {"gemini-2.5-pro", "gemini-2.5-flash"},
		"b": {"gemini-2.5-flash", "gemini-2.0-flash"},
	}
	keys := []settings.APIKey{{ID: "a"}, {ID: "b"}, {ID: "broken"}}

	got := listAllModels(context.Background(), lister, keys)
	assert.Equal(t, []string{"gemini-2.0-flash", "gemini-2.5-flash", "gemini-2.5-pro"}, got)
}

func TestListAllModelsFallsBack(t *testing.T) {
	got := listAllModels(context.Background(), fakeLister{}, []settings.APIKey{{ID: "x"}})
	assert.Equal(t, settings.AvailableModels, got)

	got = listAllModels(context.Background(), fakeLister{}, nil)
	assert.Equal(t, settings.AvailableModels, got)
}
