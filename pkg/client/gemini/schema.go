package gemini

import (
	"encoding/json"
	"strings"

	"github.com/go-go-golems/loomchat/pkg/session"
	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
	"google.golang.org/genai"
)

const (
	functionResponseAndState = "generateResponseAndState"
	functionReportState      = "reportStateChange"

	propResponseText        = "responseText"
	propGoodwillFluctuation = "goodwillFluctuation"
	propInventoryChanges    = "inventoryChanges"

	defaultGoodwillDescription = "How much the user's last message changed the character's goodwill toward the user. Positive or negative number. Usually between -5 and 5."
)

// stateArgs are the arguments of the state functions offered to the model.
type stateArgs struct {
	ResponseText        string               `json:"responseText" jsonschema:"description=The reply to the user"`
	GoodwillFluctuation *float64             `json:"goodwillFluctuation,omitempty"`
	InventoryChanges    []session.ItemChange `json:"inventoryChanges,omitempty" jsonschema:"description=Items gained (positive delta) or lost (negative delta) in this turn"`
}

// functionSchema is the reflected argument schema restricted to the properties a call needs.
type functionSchema struct {
	name   string
	schema *jsonschema.Schema
}

func reflectStateArgs() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(&stateArgs{})
	s.Version = ""
	s.ID = ""
	return s
}

// newFunctionSchema builds the schema for name. includeText adds the reply property; the
// feature properties are added when the session enables them.
func newFunctionSchema(name string, includeText bool, features session.FeatureSettings) *functionSchema {
	full := reflectStateArgs()

	var keep []string
	if includeText {
		keep = append(keep, propResponseText)
	}
	if features.Goodwill != nil {
		keep = append(keep, propGoodwillFluctuation)
	}
	if features.Inventory != nil && features.Inventory.Enabled {
		keep = append(keep, propInventoryChanges)
	}

	var drop []string
	for p := full.Properties.Oldest(); p != nil; p = p.Next() {
		if !contains(keep, p.Key) {
			drop = append(drop, p.Key)
		}
	}
	for _, k := range drop {
		full.Properties.Delete(k)
	}
	var required []string
	for _, r := range full.Required {
		if contains(keep, r) {
			required = append(required, r)
		}
	}
	full.Required = required

	if prop, ok := full.Properties.Get(propGoodwillFluctuation); ok {
		prop.Description = defaultGoodwillDescription
		if d := strings.TrimSpace(features.Goodwill.DescriptionForAI); d != "" {
			prop.Description = d
		}
	}

	return &functionSchema{name: name, schema: full}
}

// Properties is the number of properties the function takes.
func (f *functionSchema) Properties() int {
	return f.schema.Properties.Len()
}

func (f *functionSchema) declaration(description string) *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        f.name,
		Description: description,
		Parameters:  convertJSONSchemaToGenAI(f.schema),
	}
}

// validate checks function call arguments against the reflected schema.
func (f *functionSchema) validate(args map[string]any) error {
	schemaJSON, err := json.Marshal(f.schema)
	if err != nil {
		return err
	}
	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schemaJSON), gojsonschema.NewGoLoader(args))
	if err != nil {
		return errors.Wrap(err, "validate function arguments")
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return errors.Errorf("invalid %s arguments: %s", f.name, strings.Join(msgs, "; "))
	}
	return nil
}

// decodeArgs validates args and decodes them. Invalid arguments are logged and decoded
// leniently so that a usable reply is never dropped.
func (f *functionSchema) decodeArgs(args map[string]any) (stateArgs, error) {
	if err := f.validate(args); err != nil {
		log.Warn().Err(err).Str("function", f.name).Msg("function call arguments do not match schema")
	}
	b, err := json.Marshal(args)
	if err != nil {
		return stateArgs{}, err
	}
	var ret stateArgs
	if err := json.Unmarshal(b, &ret); err != nil {
		return stateArgs{}, errors.Wrapf(err, "decode %s arguments", f.name)
	}
	return ret, nil
}

func convertJSONSchemaToGenAI(s *jsonschema.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	gs := &genai.Schema{Description: s.Description}
	switch s.Type {
	case "string":
		gs.Type = genai.TypeString
	case "number":
		gs.Type = genai.TypeNumber
	case "integer":
		gs.Type = genai.TypeInteger
	case "boolean":
		gs.Type = genai.TypeBoolean
	case "array":
		gs.Type = genai.TypeArray
		gs.Items = convertJSONSchemaToGenAI(s.Items)
	default:
		gs.Type = genai.TypeObject
		if s.Properties != nil && s.Properties.Len() > 0 {
			gs.Properties = map[string]*genai.Schema{}
			for p := s.Properties.Oldest(); p != nil; p = p.Next() {
				gs.Properties[p.Key] = convertJSONSchemaToGenAI(p.Value)
				gs.PropertyOrdering = append(gs.PropertyOrdering, p.Key)
			}
		}
		gs.Required = append([]string(nil), s.Required...)
	}
	return gs
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
