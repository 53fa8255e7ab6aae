// Package gemini implements client.Client on top of the Gemini generative-language API.
package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"github.com/go-go-golems/loomchat/pkg/client"
	"github.com/go-go-golems/loomchat/pkg/conversation"
	"github.com/go-go-golems/loomchat/pkg/session"
	"github.com/go-go-golems/loomchat/pkg/settings"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

// WithBaseURL points the client at another endpoint, mostly for tests and proxies.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.httpClient = h
	}
}

func New(options ...Option) *Client {
	c := &Client{}
	for _, o := range options {
		o(c)
	}
	return c
}

var (
	_ client.Client      = (*Client)(nil)
	_ client.ModelLister = (*Client)(nil)
)

func (c *Client) newGenAI(ctx context.Context, credential settings.APIKey) (*genai.Client, error) {
	if strings.TrimSpace(credential.Key) == "" {
		return nil, errors.Errorf("API key %q is empty", credential.Name)
	}
	cfg := &genai.ClientConfig{
		APIKey:     credential.Key,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: c.httpClient,
	}
	if c.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: c.baseURL}
	}
	gc, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create gemini client")
	}
	return gc, nil
}

// Send runs one request in the API mode of the session features.
func (c *Client) Send(ctx context.Context, req *client.Request) (*client.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	gc, err := c.newGenAI(ctx, req.Credential)
	if err != nil {
		return nil, err
	}
	s := req.Settings
	if s == nil {
		s = settings.NewSettings()
	}
	model := req.Model
	if model == "" {
		model = s.Model
	}
	if model == "" {
		model = settings.DefaultModel
	}

	run := &call{
		models:     gc.Models,
		model:      model,
		settings:   s,
		credential: req.Credential,
		system:     req.SystemPrompt,
	}

	log.Debug().
		Str("model", model).
		Str("key", req.Credential.Masked()).
		Str("mode", string(req.Context.Features.APIMode)).
		Int("turns", len(req.Context.Turns)).
		Msg("Sending gemini request")

	switch req.Context.Features.APIMode {
	case session.APIModeOneStepFC:
		return run.oneStep(ctx, req.Context)
	case session.APIModeTwoStepFC:
		return run.twoStep(ctx, req.Context)
	default:
		return run.standard(ctx, req.Context)
	}
}

// ListModels returns the models of credential that support content generation, sorted by name.
func (c *Client) ListModels(ctx context.Context, credential settings.APIKey) ([]string, error) {
	gc, err := c.newGenAI(ctx, credential)
	if err != nil {
		return nil, err
	}
	var ret []string
	for m, err := range gc.Models.All(ctx) {
		if err != nil {
			return nil, classify(err, credential)
		}
		if m == nil || !supportsGenerate(m.SupportedActions) {
			continue
		}
		ret = append(ret, strings.TrimPrefix(m.Name, "models/"))
	}
	sort.Strings(ret)
	return ret, nil
}

func supportsGenerate(actions []string) bool {
	if len(actions) == 0 {
		return true
	}
	for _, a := range actions {
		if a == "generateContent" {
			return true
		}
	}
	return false
}

func usageFrom(u *genai.GenerateContentResponseUsageMetadata) *conversation.TokenUsage {
	if u == nil {
		return nil
	}
	return &conversation.TokenUsage{
		Input:    int(u.PromptTokenCount),
		Output:   int(u.CandidatesTokenCount),
		Thinking: int(u.ThoughtsTokenCount),
		Total:    int(u.TotalTokenCount),
	}
}

func addUsage(a, b *conversation.TokenUsage) *conversation.TokenUsage {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return &conversation.TokenUsage{
		Input:    a.Input + b.Input,
		Output:   a.Output + b.Output,
		Thinking: a.Thinking + b.Thinking,
		Total:    a.Total + b.Total,
	}
}

// toMap round trips v through JSON. Failures are logged and yield nil.
func toMap(v interface{}) map[string]interface{} {
	b, err := json.Marshal(v)
	if err != nil {
		log.Warn().Err(err).Msg("failed to encode gemini payload")
		return nil
	}
	var ret map[string]interface{}
	if err := json.Unmarshal(b, &ret); err != nil {
		log.Warn().Err(err).Msg("failed to decode gemini payload")
		return nil
	}
	return ret
}
