package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-go-golems/loomchat/pkg/client"
	"github.com/go-go-golems/loomchat/pkg/conversation"
	"github.com/go-go-golems/loomchat/pkg/events"
	"github.com/go-go-golems/loomchat/pkg/prompt"
	"github.com/go-go-golems/loomchat/pkg/session"
	"github.com/go-go-golems/loomchat/pkg/settings"
	"github.com/go-go-golems/loomchat/pkg/status"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Result describes a completed exchange.
type Result struct {
	User      *conversation.Message
	Assistant *conversation.Message
	// Fired are the ids of the triggers that fired while preparing the request.
	Fired []string
	// Credential is the key that served the request.
	Credential settings.APIKey
}

type requestConfig struct {
	settings   *settings.Settings
	credential settings.APIKey
	model      string
}

type preparedInput struct {
	finalInput   string
	statuses     status.Statuses
	triggers     []status.Trigger
	fired        []string
	systemPrompt string
	injections   prompt.Injections
}

// SendUserMessage appends input under the tail of the active path and asks the model for a
// reply. When the call fails the user message and the status changes stay in the session.
func (s *Service) SendUserMessage(ctx context.Context, sess *session.Session, input string) (*Result, error) {
	if sess == nil {
		return nil, errors.New("nil session")
	}
	if strings.TrimSpace(input) == "" {
		return nil, ErrEmptyInput
	}
	if err := s.acquire(sess.ID); err != nil {
		return nil, err
	}
	defer s.release(sess.ID)

	cfg, err := s.resolve()
	if err != nil {
		return nil, err
	}
	prep, err := s.prepare(sess, input, cfg.settings)
	if err != nil {
		return nil, err
	}

	tree := treeOf(sess)
	parentID := conversation.NullNode
	if tail, ok := tree.Tail(); ok {
		parentID = tail.ID
	}
	wasEmpty := tree.Len() == 0

	user := conversation.NewUserMessage(input, conversation.WithTime(s.now()))
	if err := tree.Append(parentID, user); err != nil {
		return nil, errors.Wrap(err, "append user message")
	}
	if wasEmpty {
		sess.Title = session.TitleFrom(input, TitleLength)
	}
	s.commitStatuses(ctx, sess, prep)
	s.publish(events.New(events.EventTypeMessageAppended, sess.ID, map[string]interface{}{
		"speaker": string(conversation.SpeakerUser),
	}).WithMessage(user.ID.String()))

	return s.exchange(ctx, sess, user, prep, cfg)
}

// RetryMessage asks for a new reply to an existing user message. The reply becomes a new
// branch under it. Given an assistant message, its parent user message is retried.
func (s *Service) RetryMessage(ctx context.Context, sess *session.Session, id conversation.NodeID) (*Result, error) {
	if sess == nil {
		return nil, errors.New("nil session")
	}
	if err := s.acquire(sess.ID); err != nil {
		return nil, err
	}
	defer s.release(sess.ID)

	cfg, err := s.resolve()
	if err != nil {
		return nil, err
	}

	tree := treeOf(sess)
	user, ok := tree.Get(id)
	if !ok {
		return nil, errors.Wrapf(conversation.ErrMessageNotFound, "retry %s", id)
	}
	if user.Speaker == conversation.SpeakerAssistant {
		parent, ok := tree.Get(user.ParentID)
		if !ok {
			return nil, errors.Wrapf(ErrNotUserMessage, "assistant message %s has no parent", id)
		}
		user = parent
	}
	if user.Speaker != conversation.SpeakerUser {
		return nil, errors.Wrapf(ErrNotUserMessage, "retry %s", user.ID)
	}

	prep, err := s.prepare(sess, user.Text, cfg.settings)
	if err != nil {
		return nil, err
	}
	s.commitStatuses(ctx, sess, prep)

	return s.exchange(ctx, sess, user, prep, cfg)
}

func (s *Service) resolve() (*requestConfig, error) {
	st := s.Settings()
	key, ok := st.ActiveKey()
	if !ok || strings.TrimSpace(key.Key) == "" {
		return nil, &ConfigurationError{Field: "apiKey", Reason: "no API key configured"}
	}
	if strings.TrimSpace(st.Model) == "" {
		return nil, &ConfigurationError{Field: "model", Reason: "no model selected"}
	}
	return &requestConfig{settings: st, credential: key, model: st.Model}, nil
}

// prepare rolls the dice, runs the triggers and frames the user input. It does not touch
// the session.
func (s *Service) prepare(sess *session.Session, input string, st *settings.Settings) (*preparedInput, error) {
	diceBlock := s.dice.Block(sess.DiceRolls)
	res := status.Evaluate(sess.Triggers, sess.CustomStatuses)

	final := prompt.FinalUserInput(input, diceBlock, res.InstructionText)
	if sess.Features.APIMode.UsesFunctionCalling() && sess.Features.Goodwill != nil {
		final = sess.Features.Goodwill.Apply(final)
	}

	ret := &preparedInput{
		finalInput:   final,
		statuses:     res.Statuses,
		triggers:     res.Triggers,
		fired:        res.Fired,
		systemPrompt: st.SystemPrompt.Value(),
		injections: prompt.Injections{
			DummyUser:  strings.TrimSpace(st.DummyUserPrompt.Value()),
			DummyModel: strings.TrimSpace(st.DummyModelPrompt.Value()),
		},
	}

	if st.TemplatePrompts {
		data := prompt.TemplateData{Title: sess.Title, Statuses: res.Statuses.Values()}
		if sess.Features.Goodwill != nil {
			data.Goodwill = sess.Features.Goodwill.CurrentValue
		}
		var err error
		if ret.systemPrompt, err = prompt.Render("system", ret.systemPrompt, data); err != nil {
			return nil, err
		}
		if ret.injections.DummyUser, err = prompt.Render("dummy-user", ret.injections.DummyUser, data); err != nil {
			return nil, err
		}
		if ret.injections.DummyModel, err = prompt.Render("dummy-model", ret.injections.DummyModel, data); err != nil {
			return nil, err
		}
	}
	return ret, nil
}

// commitStatuses stores the evaluated statuses and triggers and persists the session.
func (s *Service) commitStatuses(ctx context.Context, sess *session.Session, prep *preparedInput) {
	sess.CustomStatuses = prep.statuses
	sess.Triggers = prep.triggers
	sess.LastUpdatedAt = s.now()
	s.persist(ctx, sess)
	if len(prep.fired) > 0 {
		log.Debug().Str("session", sess.ID).Strs("triggers", prep.fired).Msg("triggers fired")
		s.publish(events.New(events.EventTypeTriggersFired, sess.ID, map[string]interface{}{
			"triggers": prep.fired,
		}))
	}
}

func (s *Service) exchange(
	ctx context.Context,
	sess *session.Session,
	user *conversation.Message,
	prep *preparedInput,
	cfg *requestConfig,
) (*Result, error) {
	tree := treeOf(sess)
	history := prompt.History(tree, user.ID)
	req := &client.Request{
		Credential:   cfg.credential,
		Model:        cfg.model,
		Settings:     cfg.settings,
		SystemPrompt: prep.systemPrompt,
		Context: client.ConversationContext{
			Turns:    prompt.Assemble(history, prep.finalInput, prep.injections),
			Features: sess.Features,
		},
		UserInput: prep.finalInput,
	}

	resp, err := s.sendWithRotation(ctx, sess, req)
	if err != nil {
		s.publish(events.New(events.EventTypeRequestFailed, sess.ID, map[string]interface{}{
			"error": err.Error(),
		}).WithMessage(user.ID.String()))
		return nil, err
	}

	text := resp.Text
	if req.Settings.Assist.AutoCorrectURL {
		text = s.correctText(sess, text)
	}

	now := s.now()
	assistant := conversation.NewAssistantMessage(text,
		conversation.WithTime(now),
		conversation.WithMetadata(resp.Metadata),
		conversation.WithTokenUsage(resp.Usage),
	)
	if err := tree.Append(user.ID, assistant); err != nil {
		return nil, errors.Wrap(err, "append assistant message")
	}
	if resp.Request != nil {
		user.SetMetadata("request", resp.Request)
	}

	if s.usage != nil && resp.Usage != nil {
		if err := s.usage.Record(ctx, now, resp.Usage); err != nil {
			log.Warn().Err(err).Msg("failed to record token usage")
		}
	}
	if g := sess.Features.Goodwill; g != nil && resp.GoodwillFluctuation != nil {
		g.Fluctuate(resp.GoodwillFluctuation)
	}
	if inv := sess.Features.Inventory; inv != nil && len(resp.InventoryChanges) > 0 {
		inv.Apply(resp.InventoryChanges)
	}
	sess.LastUpdatedAt = now
	s.persist(ctx, sess)

	data := map[string]interface{}{"speaker": string(conversation.SpeakerAssistant)}
	if resp.Usage != nil {
		data["totalTokens"] = resp.Usage.Total
	}
	s.publish(events.New(events.EventTypeResponseReceived, sess.ID, data).WithMessage(assistant.ID.String()))

	return &Result{
		User:       user,
		Assistant:  assistant,
		Fired:      prep.fired,
		Credential: req.Credential,
	}, nil
}

// sendWithRotation calls the client. A rate-limited call moves to the next API key as long as
// rotation is allowed and the confirmer agrees; a declined rotation fails with the rate
// limit error.
func (s *Service) sendWithRotation(ctx context.Context, sess *session.Session, req *client.Request) (*client.Response, error) {
	for {
		resp, err := s.client.Send(ctx, req)
		if err == nil {
			return resp, nil
		}
		var rl *client.RateLimitError
		if !errors.As(err, &rl) {
			return nil, err
		}

		next, ok := s.nextKey(req.Credential)
		if !ok {
			return nil, err
		}
		log.Warn().Str("key", req.Credential.Name).Str("next", next.Name).Msg("api key rate limited")

		accepted, cerr := s.confirmer.ConfirmRotation(ctx, req.Credential, next, err)
		if cerr != nil {
			return nil, errors.Wrap(cerr, "confirm api key rotation")
		}
		if !accepted {
			return nil, fmt.Errorf("%w: %w", ErrRotationDeclined, err)
		}
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}

		s.rotateTo(ctx, next)
		s.publish(events.New(events.EventTypeCredentialRotated, sess.ID, map[string]interface{}{
			"from": req.Credential.ID,
			"to":   next.ID,
		}))
		req.Credential = next
		req.Settings.ActiveAPIKeyID = next.ID
	}
}

func (s *Service) nextKey(current settings.APIKey) (settings.APIKey, bool) {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()
	if !s.settings.CanRotate() {
		return settings.APIKey{}, false
	}
	c := s.settings.Clone()
	c.ActiveAPIKeyID = current.ID
	return c.NextKey()
}

// rotateTo makes key the active key and saves the settings.
func (s *Service) rotateTo(ctx context.Context, key settings.APIKey) {
	s.settingsMu.Lock()
	s.settings.ActiveAPIKeyID = key.ID
	snapshot := s.settings.Clone()
	s.settingsMu.Unlock()

	if s.settingsSaver == nil {
		return
	}
	if err := s.settingsSaver.SaveSettings(ctx, snapshot); err != nil {
		log.Error().Err(err).Msg("failed to save settings after key rotation")
	}
}

func treeOf(sess *session.Session) *conversation.Tree {
	if sess.Tree == nil {
		sess.Tree = conversation.NewTree()
	}
	return sess.Tree
}
