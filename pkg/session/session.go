package session

import (
	"fmt"
	"iter"
	"time"

	"github.com/go-go-golems/loomchat/pkg/conversation"
	"github.com/go-go-golems/loomchat/pkg/goodwill"
	"github.com/go-go-golems/loomchat/pkg/prompt"
	"github.com/go-go-golems/loomchat/pkg/status"
	"github.com/google/uuid"
	"github.com/huandu/go-clone"
)

const DefaultTitle = "Untitled session"

// APIMode selects how a request is shaped and how its response is decoded.
type APIMode string

const (
	// APIModeStandard generates plain text.
	APIModeStandard APIMode = "standard"
	// APIModeOneStepFC asks for the reply and the state changes in a single function call.
	APIModeOneStepFC APIMode = "oneStepFC"
	// APIModeTwoStepFC generates the reply first, then asks for the state changes separately.
	APIModeTwoStepFC APIMode = "twoStepFC"
)

func (m *APIMode) UnmarshalText(text []byte) error {
	switch mode := APIMode(text); mode {
	case APIModeStandard, APIModeOneStepFC, APIModeTwoStepFC:
		*m = mode
	case "":
		*m = APIModeStandard
	default:
		return fmt.Errorf("unknown api mode %q", string(text))
	}
	return nil
}

// UsesFunctionCalling reports whether the mode returns state changes alongside the reply.
func (m APIMode) UsesFunctionCalling() bool {
	return m == APIModeOneStepFC || m == APIModeTwoStepFC
}

type ViewMode string

const (
	ViewModeStandard ViewMode = "standard"
	ViewModeGame     ViewMode = "game"
)

type FeatureSettings struct {
	APIMode   APIMode           `json:"apiMode"`
	Goodwill  *goodwill.Feature `json:"goodwill,omitempty"`
	Inventory *InventoryFeature `json:"inventory,omitempty"`
}

type Session struct {
	ID               string             `json:"id"`
	Title            string             `json:"title"`
	CreatedAt        time.Time          `json:"createdAt"`
	LastUpdatedAt    time.Time          `json:"lastUpdatedAt"`
	Tree             *conversation.Tree `json:"logs"`
	HideFirstMessage bool               `json:"hideFirstMessage,omitempty"`
	ViewMode         ViewMode           `json:"viewMode,omitempty"`
	CustomStatuses   status.Statuses    `json:"customStatuses,omitempty"`
	Triggers         []status.Trigger   `json:"triggers,omitempty"`
	DiceRolls        []prompt.DiceRoll  `json:"diceRolls,omitempty"`
	Features         FeatureSettings    `json:"featureSettings"`
}

func New(now time.Time) *Session {
	return &Session{
		ID:            uuid.NewString(),
		Title:         DefaultTitle,
		CreatedAt:     now,
		LastUpdatedAt: now,
		Tree:          conversation.NewTree(),
		ViewMode:      ViewModeStandard,
		Features: FeatureSettings{
			APIMode:  APIModeStandard,
			Goodwill: goodwill.New(),
		},
	}
}

// ActivePath is the conversation currently shown, honoring HideFirstMessage.
func (s *Session) ActivePath() iter.Seq[*conversation.Message] {
	return s.tree().ActivePath(s.HideFirstMessage)
}

// OpeningText returns the root message text when the root was written by the user.
func (s *Session) OpeningText() string {
	root, ok := s.tree().Root()
	if !ok || root.Speaker != conversation.SpeakerUser {
		return ""
	}
	return root.Text
}

func (s *Session) Clone() *Session {
	return clone.Clone(s).(*Session)
}

// TitleFrom returns the first n runes of text.
func TitleFrom(text string, n int) string {
	runes := []rune(text)
	if len(runes) > n {
		runes = runes[:n]
	}
	return string(runes)
}

func (s *Session) tree() *conversation.Tree {
	if s.Tree == nil {
		s.Tree = conversation.NewTree()
	}
	return s.Tree
}
