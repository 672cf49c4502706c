// Package template expands variables in system prompts before a run.
package template

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/tartakovsky/prompttester/internal/models"
)

// Context holds all variables available to a prompt.
type Context struct {
	TestName   string
	Mode       models.Mode
	PromptName string

	// User-defined variables from the test's vars section.
	Vars map[string]string
}

// Render resolves template expressions in the given string.
// Uses Go's text/template syntax: {{.TestName}}, {{.Vars.brand}}.
// Returns the input unchanged if it contains no template delimiters.
func Render(tmpl string, ctx *Context) (string, error) {
	// Fast path: no template delimiters means no work to do.
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}

	t, err := template.New("").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("template: parse: %w", err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("template: render: %w", err)
	}

	return buf.String(), nil
}

// RenderPrompts expands every prompt of tc in place. The first failure is
// returned with the prompt's name and nothing after it is touched.
func RenderPrompts(tc *models.TestConfig) error {
	for i := range tc.Prompts {
		p := &tc.Prompts[i]
		out, err := Render(p.Prompt, &Context{
			TestName:   tc.Name,
			Mode:       tc.Mode,
			PromptName: p.Name,
			Vars:       tc.Vars,
		})
		if err != nil {
			return fmt.Errorf("prompt %q: %w", p.Name, err)
		}
		p.Prompt = out
	}
	return nil
}
