// Package chat drives request/response cycles over a session's message tree.
package chat

import (
	"context"
	"sync"
	"time"

	"github.com/go-go-golems/loomchat/pkg/client"
	"github.com/go-go-golems/loomchat/pkg/conversation"
	"github.com/go-go-golems/loomchat/pkg/correct"
	"github.com/go-go-golems/loomchat/pkg/events"
	"github.com/go-go-golems/loomchat/pkg/prompt"
	"github.com/go-go-golems/loomchat/pkg/session"
	"github.com/go-go-golems/loomchat/pkg/settings"
	"github.com/rs/zerolog/log"
)

// TitleLength is the number of runes of the first message used as the session title.
const TitleLength = 10

// Confirmer decides whether a rate-limited request moves on to the next API key.
type Confirmer interface {
	ConfirmRotation(ctx context.Context, from, to settings.APIKey, cause error) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, from, to settings.APIKey, cause error) (bool, error)

func (f ConfirmFunc) ConfirmRotation(ctx context.Context, from, to settings.APIKey, cause error) (bool, error) {
	return f(ctx, from, to, cause)
}

// AlwaysRotate accepts every rotation.
var AlwaysRotate = ConfirmFunc(func(context.Context, settings.APIKey, settings.APIKey, error) (bool, error) {
	return true, nil
})

// NeverRotate declines every rotation.
var NeverRotate = ConfirmFunc(func(context.Context, settings.APIKey, settings.APIKey, error) (bool, error) {
	return false, nil
})

type SettingsSaver interface {
	SaveSettings(ctx context.Context, s *settings.Settings) error
}

type SessionSaver interface {
	Save(ctx context.Context, s *session.Session) error
}

type UsageRecorder interface {
	Record(ctx context.Context, t time.Time, u *conversation.TokenUsage) error
}

// CorrectorFactory builds the reply corrector of a session from its opening text.
type CorrectorFactory func(openingText string) correct.Corrector

type Service struct {
	client        client.Client
	confirmer     Confirmer
	settingsSaver SettingsSaver
	sessions      SessionSaver
	usage         UsageRecorder
	sink          events.EventSink
	dice          *prompt.DiceRoller
	correctors    CorrectorFactory
	now           func() time.Time

	settingsMu sync.Mutex
	settings   *settings.Settings

	busyMu sync.Mutex
	busy   map[string]struct{}
}

type Option func(*Service)

func WithConfirmer(c Confirmer) Option {
	return func(s *Service) {
		s.confirmer = c
	}
}

func WithSettingsSaver(saver SettingsSaver) Option {
	return func(s *Service) {
		s.settingsSaver = saver
	}
}

func WithSessionSaver(saver SessionSaver) Option {
	return func(s *Service) {
		s.sessions = saver
	}
}

func WithUsageRecorder(u UsageRecorder) Option {
	return func(s *Service) {
		s.usage = u
	}
}

func WithEventSink(sink events.EventSink) Option {
	return func(s *Service) {
		s.sink = sink
	}
}

func WithDiceRoller(d *prompt.DiceRoller) Option {
	return func(s *Service) {
		s.dice = d
	}
}

func WithCorrectorFactory(f CorrectorFactory) Option {
	return func(s *Service) {
		s.correctors = f
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a service sending through c with the given settings. The service
// owns st from now on: key rotation modifies it.
func NewService(c client.Client, st *settings.Settings, options ...Option) *Service {
	if st == nil {
		st = settings.NewSettings()
	}
	s := &Service{
		client:     c,
		settings:   st,
		confirmer:  NeverRotate,
		sink:       events.NewNullSink(),
		correctors: correct.ForOpeningMessage,
		now:        time.Now,
		busy:       map[string]struct{}{},
	}
	for _, o := range options {
		o(s)
	}
	if s.dice == nil {
		s.dice = prompt.NewDiceRoller(nil)
	}
	return s
}

// Settings returns a copy of the current settings.
func (s *Service) Settings() *settings.Settings {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()
	return s.settings.Clone()
}

func (s *Service) acquire(sessionID string) error {
	s.busyMu.Lock()
	defer s.busyMu.Unlock()
	if _, ok := s.busy[sessionID]; ok {
		return ErrSessionBusy
	}
	s.busy[sessionID] = struct{}{}
	return nil
}

func (s *Service) release(sessionID string) {
	s.busyMu.Lock()
	delete(s.busy, sessionID)
	s.busyMu.Unlock()
}

// persist saves the session. Failures are logged: the in-memory session stays authoritative.
func (s *Service) persist(ctx context.Context, sess *session.Session) {
	if s.sessions == nil {
		return
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		log.Error().Err(err).Str("session", sess.ID).Msg("failed to persist session")
	}
}

func (s *Service) publish(e events.Event) {
	if err := s.sink.PublishEvent(e); err != nil {
		log.Warn().Err(err).Str("event_type", string(e.Type)).Msg("failed to publish chat event")
	}
}

// correctText runs the session corrector on text. A panicking corrector leaves text as is.
func (s *Service) correctText(sess *session.Session, text string) (ret string) {
	if s.correctors == nil {
		return text
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("session", sess.ID).Msg("reply correction failed")
			ret = text
		}
	}()
	c := s.correctors(sess.OpeningText())
	if c == nil {
		return text
	}
	return c.Correct(text)
}
