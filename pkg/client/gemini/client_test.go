package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-go-golems/loomchat/pkg/client"
	"github.com/go-go-golems/loomchat/pkg/conversation"
	"github.com/go-go-golems/loomchat/pkg/goodwill"
	"github.com/go-go-golems/loomchat/pkg/prompt"
	"github.com/go-go-golems/loomchat/pkg/session"
	"github.com/go-go-golems/loomchat/pkg/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu        sync.Mutex
	bodies    []string
	responses []fakeResponse
	paths     []string
}

type fakeResponse struct {
	status int
	body   string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.bodies = append(f.bodies, string(b))
	f.paths = append(f.paths, r.URL.Path)
	resp := fakeResponse{status: http.StatusInternalServerError, body: `{"error":{"code":500,"message":"no response queued"}}`}
	if len(f.responses) > 0 {
		resp = f.responses[0]
		if len(f.responses) > 1 {
			f.responses = f.responses[1:]
		}
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.status)
	_, _ = w.Write([]byte(resp.body))
}

func (f *fakeAPI) requests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bodies)
}

func newTestClient(t *testing.T, responses ...fakeResponse) (*Client, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{responses: responses}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return New(WithBaseURL(srv.URL), WithHTTPClient(srv.Client())), api
}

func textResponse(text string) fakeResponse {
	return fakeResponse{status: http.StatusOK, body: `{
		"candidates": [{"content": {"role": "model", "parts": [{"text": ` + quote(text) + `}]}, "finishReason": "STOP"}],
		"usageMetadata": {"promptTokenCount": 7, "candidatesTokenCount": 3, "thoughtsTokenCount": 2, "totalTokenCount": 12}
	}`}
}

func callResponse(name string, args map[string]interface{}) fakeResponse {
	b, _ := json.Marshal(map[string]interface{}{
		"candidates": []interface{}{map[string]interface{}{
			"content": map[string]interface{}{
				"role":  "model",
				"parts": []interface{}{map[string]interface{}{"functionCall": map[string]interface{}{"name": name, "args": args}}},
			},
			"finishReason": "STOP",
		}},
		"usageMetadata": map[string]interface{}{"promptTokenCount": 5, "candidatesTokenCount": 1, "totalTokenCount": 6},
	})
	return fakeResponse{status: http.StatusOK, body: string(b)}
}

func errorResponse(code int, status string) fakeResponse {
	return fakeResponse{status: code, body: `{"error":{"code":` + itoa(code) + `,"message":"failure","status":"` + status + `"}}`}
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func itoa(i int) string {
	b, _ := json.Marshal(i)
	return string(b)
}

func testSettings() *settings.Settings {
	s := settings.NewSettings()
	s.AddKey("primary", "key-one")
	s.APIErrorHandling.InitialWaitTime = 1
	return s
}

func testRequest(s *settings.Settings, mode session.APIMode) *client.Request {
	key, _ := s.ActiveKey()
	return &client.Request{
		Credential:   key,
		Model:        "gemini-2.5-flash",
		Settings:     s,
		SystemPrompt: "You are a narrator.",
		Context: client.ConversationContext{
			Turns: []prompt.Turn{
				{Speaker: conversation.SpeakerUser, Text: "hello"},
				{Speaker: conversation.SpeakerAssistant, Text: "hi"},
				{Speaker: conversation.SpeakerUser, Text: "how are you"},
			},
			Features: session.FeatureSettings{APIMode: mode},
		},
		UserInput: "how are you",
	}
}

func TestSendStandard(t *testing.T) {
	c, api := newTestClient(t, textResponse("fine, thanks"))
	s := testSettings()
	temp := float32(0.5)
	s.Generation.Temperature = &temp

	resp, err := c.Send(context.Background(), testRequest(s, session.APIModeStandard))
	require.NoError(t, err)
	assert.Equal(t, "fine, thanks", resp.Text)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, conversation.TokenUsage{Input: 7, Output: 3, Thinking: 2, Total: 12}, *resp.Usage)
	assert.Nil(t, resp.GoodwillFluctuation)
	assert.NotNil(t, resp.Metadata)
	assert.NotNil(t, resp.Request)

	require.Equal(t, 1, api.requests())
	assert.True(t, strings.HasSuffix(api.paths[0], "models/gemini-2.5-flash:generateContent"))
	body := api.bodies[0]
	assert.Contains(t, body, "BLOCK_NONE")
	assert.Contains(t, body, "You are a narrator.")
	assert.Contains(t, body, "how are you")
}

func TestSendStandardPrependsPrefill(t *testing.T) {
	c, api := newTestClient(t, textResponse(" continues the story."))
	s := testSettings()
	req := testRequest(s, session.APIModeStandard)
	req.Context.Turns = append(req.Context.Turns, prompt.Turn{Speaker: conversation.SpeakerAssistant, Text: "The narrator"})

	resp, err := c.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "The narrator continues the story.", resp.Text)
	assert.Contains(t, api.bodies[0], "The narrator")
}

func TestSendRateLimitedWithRotation(t *testing.T) {
	c, api := newTestClient(t, errorResponse(http.StatusTooManyRequests, "RESOURCE_EXHAUSTED"))
	s := testSettings()
	s.AddKey("secondary", "key-two")
	s.APIErrorHandling.LoopAPIKeys = true
	s.APIErrorHandling.ExponentialBackoff = true

	_, err := c.Send(context.Background(), testRequest(s, session.APIModeStandard))
	require.Error(t, err)
	assert.ErrorIs(t, err, client.ErrRateLimited)
	var rl *client.RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, s.APIKeys[0].ID, rl.KeyID)
	assert.Equal(t, 1, api.requests(), "rotatable rate limits are not retried")
}

func TestSendRateLimitedWithoutRotation(t *testing.T) {
	c, api := newTestClient(t, errorResponse(http.StatusTooManyRequests, "RESOURCE_EXHAUSTED"))
	s := testSettings()
	s.APIErrorHandling.ExponentialBackoff = true
	s.APIErrorHandling.MaxRetries = 3

	_, err := c.Send(context.Background(), testRequest(s, session.APIModeStandard))
	assert.ErrorIs(t, err, client.ErrRateLimited)
	assert.Equal(t, 3, api.requests())
}

func TestSendRetriesServerErrors(t *testing.T) {
	c, api := newTestClient(t,
		errorResponse(http.StatusServiceUnavailable, "UNAVAILABLE"),
		errorResponse(http.StatusBadGateway, "BAD_GATEWAY"),
		textResponse("recovered"),
	)
	s := testSettings()
	s.APIErrorHandling.ExponentialBackoff = true

	resp, err := c.Send(context.Background(), testRequest(s, session.APIModeStandard))
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Text)
	assert.Equal(t, 3, api.requests())
}

func TestSendDoesNotRetryWithoutBackoff(t *testing.T) {
	c, api := newTestClient(t, errorResponse(http.StatusServiceUnavailable, "UNAVAILABLE"), textResponse("late"))
	s := testSettings()

	_, err := c.Send(context.Background(), testRequest(s, session.APIModeStandard))
	require.Error(t, err)
	assert.NotErrorIs(t, err, client.ErrRateLimited)
	assert.Equal(t, 1, api.requests())
}

func TestSendDoesNotRetryClientErrors(t *testing.T) {
	c, api := newTestClient(t, errorResponse(http.StatusBadRequest, "INVALID_ARGUMENT"), textResponse("late"))
	s := testSettings()
	s.APIErrorHandling.ExponentialBackoff = true

	_, err := c.Send(context.Background(), testRequest(s, session.APIModeStandard))
	require.Error(t, err)
	assert.Equal(t, 1, api.requests())
}

func TestSendEmptyKey(t *testing.T) {
	c, api := newTestClient(t)
	s := settings.NewSettings()
	req := testRequest(s, session.APIModeStandard)
	req.Credential = settings.APIKey{ID: "k", Name: "blank"}

	_, err := c.Send(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, 0, api.requests())
}

func TestSendOneStepFunctionCall(t *testing.T) {
	c, api := newTestClient(t, callResponse(functionResponseAndState, map[string]interface{}{
		"responseText":        "Glad to see you.",
		"goodwillFluctuation": 2.5,
	}))
	s := testSettings()
	req := testRequest(s, session.APIModeOneStepFC)
	req.Context.Features.Goodwill = &goodwill.Feature{DescriptionForAI: "Affection change."}

	resp, err := c.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Glad to see you.", resp.Text)
	require.NotNil(t, resp.GoodwillFluctuation)
	assert.Equal(t, 2.5, *resp.GoodwillFluctuation)

	body := api.bodies[0]
	assert.Contains(t, body, functionResponseAndState)
	assert.Contains(t, body, "Affection change.")
}

func TestSendOneStepInventory(t *testing.T) {
	c, _ := newTestClient(t, callResponse(functionResponseAndState, map[string]interface{}{
		"responseText":     "You pick up the sword.",
		"inventoryChanges": []interface{}{map[string]interface{}{"name": "sword", "delta": 1}},
	}))
	s := testSettings()
	req := testRequest(s, session.APIModeOneStepFC)
	req.Context.Features.Inventory = &session.InventoryFeature{Enabled: true}

	resp, err := c.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []session.ItemChange{{Name: "sword", Delta: 1}}, resp.InventoryChanges)
	assert.Equal(t, 0.0, *resp.GoodwillFluctuation)
}

func TestSendOneStepTextFallback(t *testing.T) {
	c, _ := newTestClient(t, textResponse("just text"))
	s := testSettings()
	req := testRequest(s, session.APIModeOneStepFC)
	req.Context.Features.Goodwill = goodwill.New()

	resp, err := c.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "just text", resp.Text)
	require.NotNil(t, resp.GoodwillFluctuation)
	assert.Equal(t, 0.0, *resp.GoodwillFluctuation)
}

func TestSendOneStepWithoutFeaturesIsStandard(t *testing.T) {
	c, api := newTestClient(t, textResponse("plain"))
	s := testSettings()

	resp, err := c.Send(context.Background(), testRequest(s, session.APIModeOneStepFC))
	require.NoError(t, err)
	assert.Equal(t, "plain", resp.Text)
	assert.NotContains(t, api.bodies[0], functionResponseAndState)
}

func TestSendTwoStep(t *testing.T) {
	c, api := newTestClient(t,
		textResponse("The door opens."),
		callResponse(functionReportState, map[string]interface{}{"goodwillFluctuation": -1}),
	)
	s := testSettings()
	req := testRequest(s, session.APIModeTwoStepFC)
	req.Context.Features.Goodwill = goodwill.New()

	resp, err := c.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "The door opens.", resp.Text)
	require.NotNil(t, resp.GoodwillFluctuation)
	assert.Equal(t, -1.0, *resp.GoodwillFluctuation)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 18, resp.Usage.Total)

	require.Equal(t, 2, api.requests())
	assert.NotContains(t, api.bodies[0], functionReportState)
	assert.Contains(t, api.bodies[1], functionReportState)
	assert.Contains(t, api.bodies[1], "ANY")
	assert.Contains(t, api.bodies[1], "The door opens.")
}

func TestListModels(t *testing.T) {
	c, api := newTestClient(t, fakeResponse{status: http.StatusOK, body: `{"models": [
		{"name": "models/gemini-2.5-pro", "supportedGenerationMethods": ["generateContent", "countTokens"]},
		{"name": "models/text-embedding-004", "supportedGenerationMethods": ["embedContent"]},
		{"name": "models/gemini-2.5-flash", "supportedGenerationMethods": ["generateContent"]}
	]}`})

	models, err := c.ListModels(context.Background(), settings.APIKey{ID: "k", Key: "secret"})
	require.NoError(t, err)
	assert.Equal(t, []string{"gemini-2.5-flash", "gemini-2.5-pro"}, models)
	require.Equal(t, 1, api.requests())
	assert.True(t, strings.HasSuffix(api.paths[0], "/models"))
}

func TestFunctionSchema(t *testing.T) {
	fs := newFunctionSchema(functionResponseAndState, true, session.FeatureSettings{
		Goodwill:  goodwill.New(),
		Inventory: &session.InventoryFeature{Enabled: true},
	})
	assert.Equal(t, 3, fs.Properties())

	decl := fs.declaration("d")
	require.NotNil(t, decl.Parameters)
	assert.Equal(t, []string{propResponseText, propGoodwillFluctuation, propInventoryChanges}, decl.Parameters.PropertyOrdering)
	assert.Equal(t, []string{propResponseText}, decl.Parameters.Required)
	inv := decl.Parameters.Properties[propInventoryChanges]
	require.NotNil(t, inv)
	require.NotNil(t, inv.Items)
	assert.Contains(t, inv.Items.Properties, "delta")
	assert.Equal(t, defaultGoodwillDescription, decl.Parameters.Properties[propGoodwillFluctuation].Description)

	assert.NoError(t, fs.validate(map[string]any{"responseText": "ok", "goodwillFluctuation": 1.0}))
	assert.Error(t, fs.validate(map[string]any{"goodwillFluctuation": "lots"}))

	args, err := fs.decodeArgs(map[string]any{"responseText": 42})
	assert.Error(t, err, "undecodable arguments fail")
	assert.Empty(t, args.ResponseText)

	state := newFunctionSchema(functionReportState, false, session.FeatureSettings{})
	assert.Equal(t, 0, state.Properties())
}
