package gemini

import (
	"context"
	"strings"

	"github.com/go-go-golems/loomchat/pkg/client"
	"github.com/go-go-golems/loomchat/pkg/conversation"
	"github.com/go-go-golems/loomchat/pkg/prompt"
	"github.com/go-go-golems/loomchat/pkg/settings"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

const (
	responseAndStateDescription = "Generates the reply to the user together with the changes of the internal state (goodwill, inventory) caused by this turn."
	reportStateDescription      = "Reports the changes of the internal state (goodwill, inventory) caused by the last exchange."
)

// call holds what every request of a single Send shares.
type call struct {
	models     *genai.Models
	model      string
	settings   *settings.Settings
	credential settings.APIKey
	system     string
}

type generated struct {
	resp    *genai.GenerateContentResponse
	request map[string]interface{}
}

func (c *call) generate(ctx context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*generated, error) {
	request := toMap(map[string]interface{}{
		"model":    c.model,
		"contents": contents,
		"config":   cfg,
	})
	resp, err := withRetry(ctx, c.settings, c.credential, func() (*genai.GenerateContentResponse, error) {
		return c.models.GenerateContent(ctx, c.model, contents, cfg)
	})
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, errors.New("empty gemini response")
	}
	return &generated{resp: resp, request: request}, nil
}

// standard is plain text generation. A trailing model prefill is sent and prepended to the reply.
func (c *call) standard(ctx context.Context, cc client.ConversationContext) (*client.Response, error) {
	turns, prefill := splitPrefill(cc.Turns)
	contents := buildContents(turns)
	if prefill != "" {
		contents = append(contents, genai.NewContentFromText(prefill, genai.RoleModel))
	}
	g, err := c.generate(ctx, contents, c.config())
	if err != nil {
		return nil, err
	}
	text, _ := partsOf(g.resp)
	if text == "" {
		if reason := finishReason(g.resp); reason != "" {
			log.Warn().Str("finish_reason", reason).Msg("gemini returned no text")
		}
	}
	return &client.Response{
		Text:     prefill + text,
		Metadata: toMap(g.resp),
		Request:  g.request,
		Usage:    usageFrom(g.resp.UsageMetadata),
	}, nil
}

// oneStep asks for the reply and the state changes in one function call. Without an
// enabled feature it degrades to a standard call.
func (c *call) oneStep(ctx context.Context, cc client.ConversationContext) (*client.Response, error) {
	fs := newFunctionSchema(functionResponseAndState, true, cc.Features)
	if fs.Properties() <= 1 {
		return c.standard(ctx, cc)
	}
	turns, _ := splitPrefill(cc.Turns)
	cfg := c.config()
	cfg.Tools = []*genai.Tool{{FunctionDeclarations: []*genai.FunctionDeclaration{fs.declaration(responseAndStateDescription)}}}

	g, err := c.generate(ctx, buildContents(turns), cfg)
	if err != nil {
		return nil, err
	}
	ret := &client.Response{
		Metadata: toMap(g.resp),
		Request:  g.request,
		Usage:    usageFrom(g.resp.UsageMetadata),
	}

	text, calls := partsOf(g.resp)
	for _, fc := range calls {
		if fc.Name != functionResponseAndState {
			continue
		}
		args, err := fs.decodeArgs(fc.Args)
		if err != nil {
			return nil, err
		}
		ret.Text = args.ResponseText
		ret.GoodwillFluctuation = fluctuation(args.GoodwillFluctuation)
		ret.InventoryChanges = args.InventoryChanges
		return ret, nil
	}

	if text == "" {
		return nil, errors.Errorf("unexpected gemini response: no text and no %s call", functionResponseAndState)
	}
	ret.Text = text
	ret.GoodwillFluctuation = fluctuation(nil)
	return ret, nil
}

// twoStep generates the reply as a standard call, then forces a reportStateChange call over
// the conversation extended with the reply.
func (c *call) twoStep(ctx context.Context, cc client.ConversationContext) (*client.Response, error) {
	fs := newFunctionSchema(functionReportState, false, cc.Features)
	first, err := c.standard(ctx, cc)
	if err != nil {
		return nil, err
	}
	if fs.Properties() == 0 {
		return first, nil
	}

	turns, _ := splitPrefill(cc.Turns)
	contents := buildContents(append(turns, prompt.Turn{Speaker: conversation.SpeakerAssistant, Text: first.Text}))
	cfg := c.config()
	cfg.Tools = []*genai.Tool{{FunctionDeclarations: []*genai.FunctionDeclaration{fs.declaration(reportStateDescription)}}}
	cfg.ToolConfig = &genai.ToolConfig{
		FunctionCallingConfig: &genai.FunctionCallingConfig{
			Mode:                 genai.FunctionCallingConfigModeAny,
			AllowedFunctionNames: []string{functionReportState},
		},
	}

	g, err := c.generate(ctx, contents, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "report state change")
	}

	ret := *first
	ret.Usage = addUsage(first.Usage, usageFrom(g.resp.UsageMetadata))
	ret.Metadata = map[string]interface{}{
		"response":    first.Metadata,
		"stateChange": toMap(g.resp),
	}
	ret.GoodwillFluctuation = fluctuation(nil)

	_, calls := partsOf(g.resp)
	for _, fc := range calls {
		if fc.Name != functionReportState {
			continue
		}
		args, err := fs.decodeArgs(fc.Args)
		if err != nil {
			return nil, err
		}
		ret.GoodwillFluctuation = fluctuation(args.GoodwillFluctuation)
		ret.InventoryChanges = args.InventoryChanges
		break
	}
	return &ret, nil
}

func (c *call) config() *genai.GenerateContentConfig {
	gen := c.settings.Generation
	cfg := &genai.GenerateContentConfig{
		Temperature:    gen.Temperature,
		TopK:           gen.TopK,
		TopP:           gen.TopP,
		SafetySettings: safetySettings(),
	}
	if gen.MaxOutputTokens != nil {
		cfg.MaxOutputTokens = *gen.MaxOutputTokens
	}
	if gen.ThinkingBudget != nil {
		budget := *gen.ThinkingBudget
		cfg.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: &budget}
	}
	if strings.TrimSpace(c.system) != "" {
		cfg.SystemInstruction = genai.NewContentFromText(c.system, genai.RoleUser)
	}
	return cfg
}

func safetySettings() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
	}
	ret := make([]*genai.SafetySetting, 0, len(categories))
	for _, c := range categories {
		ret = append(ret, &genai.SafetySetting{Category: c, Threshold: genai.HarmBlockThresholdBlockNone})
	}
	return ret
}

func buildContents(turns []prompt.Turn) []*genai.Content {
	ret := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := genai.Role(genai.RoleUser)
		if t.Speaker == conversation.SpeakerAssistant {
			role = genai.RoleModel
		}
		ret = append(ret, genai.NewContentFromText(t.Text, role))
	}
	return ret
}

// splitPrefill separates a trailing model turn from the rest.
func splitPrefill(turns []prompt.Turn) ([]prompt.Turn, string) {
	n := len(turns)
	if n < 2 || turns[n-1].Speaker != conversation.SpeakerAssistant {
		return turns, ""
	}
	return turns[:n-1:n-1], turns[n-1].Text
}

// partsOf concatenates the non-thought text parts of the first candidate and collects its
// function calls.
func partsOf(resp *genai.GenerateContentResponse) (string, []*genai.FunctionCall) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return "", nil
	}
	var sb strings.Builder
	var calls []*genai.FunctionCall
	for _, p := range resp.Candidates[0].Content.Parts {
		if p == nil {
			continue
		}
		if p.FunctionCall != nil {
			calls = append(calls, p.FunctionCall)
			continue
		}
		if p.Thought {
			continue
		}
		sb.WriteString(p.Text)
	}
	return sb.String(), calls
}

func finishReason(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return ""
	}
	return string(resp.Candidates[0].FinishReason)
}

// fluctuation defaults a missing value to zero.
func fluctuation(v *float64) *float64 {
	ret := 0.0
	if v != nil {
		ret = *v
	}
	return &ret
}
