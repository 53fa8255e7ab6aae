package settings

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-go-golems/loomchat/pkg/store"
	"github.com/google/uuid"
	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
)

const DefaultModel = "gemini-2.5-flash"

// AvailableModels are offered when the API cannot be asked for its model list.
var AvailableModels = []string{"gemini-2.5-pro", "gemini-2.5-flash", "gemini-2.5-flash-lite"}

type APIKey struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	Key  string `json:"key" yaml:"key"`
}

// Masked hides all but the last four characters of the key.
func (k APIKey) Masked() string {
	if len(k.Key) <= 4 {
		return "****"
	}
	return "****" + k.Key[len(k.Key)-4:]
}

type PromptToggle struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Text    string `json:"text" yaml:"text"`
}

// Value returns the text when the prompt is enabled and non-empty.
func (p PromptToggle) Value() string {
	if !p.Enabled {
		return ""
	}
	return p.Text
}

// GenerationSettings are passed to the model as is. Nil fields use the model defaults.
type GenerationSettings struct {
	Temperature     *float32 `json:"temperature" yaml:"temperature,omitempty"`
	TopK            *float32 `json:"topK" yaml:"top_k,omitempty"`
	TopP            *float32 `json:"topP" yaml:"top_p,omitempty"`
	MaxOutputTokens *int32   `json:"maxOutputTokens" yaml:"max_output_tokens,omitempty"`
	ThinkingBudget  *int32   `json:"thinkingBudget" yaml:"thinking_budget,omitempty"`
}

type APIErrorHandling struct {
	LoopAPIKeys        bool `json:"loopApiKeys" yaml:"loop_api_keys"`
	ExponentialBackoff bool `json:"exponentialBackoff" yaml:"exponential_backoff"`
	MaxRetries         int  `json:"maxRetries" yaml:"max_retries"`
	// InitialWaitTime is in milliseconds.
	InitialWaitTime int `json:"initialWaitTime" yaml:"initial_wait_time"`
}

func (a APIErrorHandling) InitialWait() time.Duration {
	return time.Duration(a.InitialWaitTime) * time.Millisecond
}

type AssistSettings struct {
	AutoCorrectURL bool `json:"autoCorrectUrl" yaml:"auto_correct_url"`
}

type Settings struct {
	APIKeys          []APIKey           `json:"apiKeys" yaml:"api_keys"`
	ActiveAPIKeyID   string             `json:"activeApiKeyId" yaml:"active_api_key_id"`
	Model            string             `json:"model" yaml:"model"`
	SystemPrompt     PromptToggle       `json:"systemPrompt" yaml:"system_prompt"`
	DummyUserPrompt  PromptToggle       `json:"dummyUserPrompt" yaml:"dummy_user_prompt"`
	DummyModelPrompt PromptToggle       `json:"dummyModelPrompt" yaml:"dummy_model_prompt"`
	TemplatePrompts  bool               `json:"templatePrompts" yaml:"template_prompts"`
	Generation       GenerationSettings `json:"generation" yaml:"generation"`
	APIErrorHandling APIErrorHandling   `json:"apiErrorHandling" yaml:"api_error_handling"`
	Assist           AssistSettings     `json:"assist" yaml:"assist"`
}

func NewSettings() *Settings {
	return &Settings{
		APIKeys: []APIKey{},
		Model:   DefaultModel,
		APIErrorHandling: APIErrorHandling{
			MaxRetries:      5,
			InitialWaitTime: 1000,
		},
	}
}

func (s *Settings) Clone() *Settings {
	return clone.Clone(s).(*Settings)
}

// ActiveKey returns the key selected by ActiveAPIKeyID. It falls back to the first key when
// the id is unset or stale.
func (s *Settings) ActiveKey() (APIKey, bool) {
	for _, k := range s.APIKeys {
		if k.ID == s.ActiveAPIKeyID {
			return k, true
		}
	}
	if len(s.APIKeys) > 0 {
		return s.APIKeys[0], true
	}
	return APIKey{}, false
}

// CanRotate reports whether a rate-limited request may move to another key.
func (s *Settings) CanRotate() bool {
	return s.APIErrorHandling.LoopAPIKeys && len(s.APIKeys) > 1
}

// NextKey returns the key following the active one, wrapping around.
func (s *Settings) NextKey() (APIKey, bool) {
	if len(s.APIKeys) < 2 {
		return APIKey{}, false
	}
	current, _ := s.ActiveKey()
	for i, k := range s.APIKeys {
		if k.ID == current.ID {
			return s.APIKeys[(i+1)%len(s.APIKeys)], true
		}
	}
	return s.APIKeys[0], true
}

// Rotate makes the next key active and returns it.
func (s *Settings) Rotate() (APIKey, bool) {
	next, ok := s.NextKey()
	if !ok {
		return APIKey{}, false
	}
	s.ActiveAPIKeyID = next.ID
	return next, true
}

// AddKey appends a key. The first key added becomes active.
func (s *Settings) AddKey(name, key string) APIKey {
	k := APIKey{ID: uuid.NewString(), Name: name, Key: key}
	s.APIKeys = append(s.APIKeys, k)
	if s.ActiveAPIKeyID == "" {
		s.ActiveAPIKeyID = k.ID
	}
	return k
}

func (s *Settings) RemoveKey(id string) bool {
	for i, k := range s.APIKeys {
		if k.ID == id {
			s.APIKeys = append(s.APIKeys[:i], s.APIKeys[i+1:]...)
			if s.ActiveAPIKeyID == id {
				s.ActiveAPIKeyID = ""
				if len(s.APIKeys) > 0 {
					s.ActiveAPIKeyID = s.APIKeys[0].ID
				}
			}
			return true
		}
	}
	return false
}

// Load reads the settings stored under store.KeyAppSettings. Missing fields keep their
// defaults and a missing document yields NewSettings().
func Load(ctx context.Context, st store.Store) (*Settings, error) {
	ret := NewSettings()
	b, ok, err := st.Get(ctx, store.KeyAppSettings)
	if err != nil {
		return nil, errors.Wrap(err, "load settings")
	}
	if !ok || len(b) == 0 {
		return ret, nil
	}
	if err := json.Unmarshal(b, ret); err != nil {
		return nil, errors.Wrap(err, "decode settings")
	}
	if ret.APIErrorHandling.MaxRetries <= 0 {
		ret.APIErrorHandling.MaxRetries = 5
	}
	if ret.APIErrorHandling.InitialWaitTime <= 0 {
		ret.APIErrorHandling.InitialWaitTime = 1000
	}
	return ret, nil
}

func Save(ctx context.Context, st store.Store, s *Settings) error {
	b, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "encode settings")
	}
	return errors.Wrap(st.Set(ctx, store.KeyAppSettings, b), "save settings")
}

// StoreSaver adapts a store to the single-method saver used by the chat service.
type StoreSaver struct {
	Store store.Store
}

func (s StoreSaver) SaveSettings(ctx context.Context, settings *Settings) error {
	return Save(ctx, s.Store, settings)
}
