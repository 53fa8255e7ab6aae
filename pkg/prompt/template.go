package prompt

import (
	"strings"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/pkg/errors"
)

// TemplateData is the data available to templated prompts.
type TemplateData struct {
	Title    string
	Statuses map[string]string
	Goodwill float64
}

// Render executes text as a text/template with the sprig function map.
// Text without template actions is returned as is.
func Render(name string, text string, data TemplateData) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}
	t, err := template.New(name).Funcs(sprig.TxtFuncMap()).Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", errors.Wrapf(err, "parse prompt template %s", name)
	}
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", errors.Wrapf(err, "render prompt template %s", name)
	}
	return sb.String(), nil
}
