package cmds

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-go-golems/loomchat/pkg/chat"
	"github.com/go-go-golems/loomchat/pkg/client/gemini"
	"github.com/go-go-golems/loomchat/pkg/events"
	"github.com/go-go-golems/loomchat/pkg/session"
	"github.com/go-go-golems/loomchat/pkg/settings"
	"github.com/go-go-golems/loomchat/pkg/store"
	"github.com/go-go-golems/loomchat/pkg/usage"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// overrideKeyID marks the API key given with --api-key. It is never saved.
const overrideKeyID = "override"

type app struct {
	store    store.Store
	settings *settings.Settings
	sessions *session.Repository
	ledger   *usage.Ledger
	client   *gemini.Client
	service  *chat.Service
	router   *events.EventRouter

	cancelRouter context.CancelFunc
	routerDone   chan struct{}
}

func defaultStoreLocation() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "loomchat.db"
	}
	return filepath.Join(dir, "loomchat", "loomchat.db")
}

// openState opens the store and loads settings, sessions and usage without the chat service.
func openState(ctx context.Context) (*app, error) {
	location := viper.GetString("store")
	if location == "" {
		location = defaultStoreLocation()
		if err := os.MkdirAll(filepath.Dir(location), 0o755); err != nil {
			return nil, errors.Wrap(err, "create state directory")
		}
	}
	st, err := store.Open(ctx, location)
	if err != nil {
		return nil, errors.Wrapf(err, "open store %s", location)
	}
	log.Debug().Str("store", location).Msg("store opened")

	a := &app{store: st}
	if a.settings, err = settings.Load(ctx, st); err != nil {
		_ = st.Close()
		return nil, err
	}
	if a.sessions, err = session.LoadRepository(ctx, st); err != nil {
		_ = st.Close()
		return nil, err
	}
	if a.ledger, err = usage.LoadLedger(ctx, st); err != nil {
		_ = st.Close()
		return nil, err
	}
	return a, nil
}

// openApp additionally starts the event router and builds the chat service with the
// command line overrides applied.
func openApp(ctx context.Context) (*app, error) {
	a, err := openState(ctx)
	if err != nil {
		return nil, err
	}

	a.router, err = events.NewEventRouter(events.WithVerbose(viper.GetBool("verbose")))
	if err != nil {
		_ = a.close()
		return nil, err
	}
	a.router.AddHandler("log-events", events.DefaultTopic, events.LogEvents)
	routerCtx, cancel := context.WithCancel(ctx)
	a.cancelRouter = cancel
	a.routerDone = make(chan struct{})
	go func() {
		defer close(a.routerDone)
		if err := a.router.Run(routerCtx); err != nil {
			log.Error().Err(err).Msg("event router stopped")
		}
	}()
	<-a.router.Running()

	st := a.settings.Clone()
	if m := strings.TrimSpace(viper.GetString("model")); m != "" {
		st.Model = m
	}
	if k := strings.TrimSpace(viper.GetString("api-key")); k != "" {
		st.APIKeys = append([]settings.APIKey{{ID: overrideKeyID, Name: "command line", Key: k}}, st.APIKeys...)
		st.ActiveAPIKeyID = overrideKeyID
	}

	a.client = gemini.New()
	a.service = chat.NewService(a.client, st,
		chat.WithConfirmer(newConfirmer(viper.GetBool("yes"), len(st.APIKeys))),
		chat.WithSettingsSaver(&overrideFilter{store: a.store, persisted: a.settings}),
		chat.WithSessionSaver(a.sessions),
		chat.WithUsageRecorder(a.ledger),
		chat.WithEventSink(a.router.Sink(events.DefaultTopic)),
	)
	return a, nil
}

func (a *app) close() error {
	if a.router != nil {
		_ = a.router.Close()
		a.cancelRouter()
		<-a.routerDone
	}
	return a.store.Close()
}

func (a *app) saveSettings(ctx context.Context) error {
	return settings.Save(ctx, a.store, a.settings)
}

// overrideFilter saves rotated settings without the command line overrides.
type overrideFilter struct {
	store     store.Store
	persisted *settings.Settings
}

func (o *overrideFilter) SaveSettings(ctx context.Context, s *settings.Settings) error {
	ret := o.persisted.Clone()
	if s.ActiveAPIKeyID != overrideKeyID {
		ret.ActiveAPIKeyID = s.ActiveAPIKeyID
	}
	o.persisted.ActiveAPIKeyID = ret.ActiveAPIKeyID
	return settings.Save(ctx, o.store, ret)
}

// withApp runs fn with an opened app and closes it afterwards.
func withApp(ctx context.Context, fn func(a *app) error) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			log.Warn().Err(err).Msg("failed to close store")
		}
	}()
	return fn(a)
}

func withState(ctx context.Context, fn func(a *app) error) error {
	a, err := openState(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.store.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close store")
		}
	}()
	return fn(a)
}
