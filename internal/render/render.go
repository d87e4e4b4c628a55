// Package render produces the server configuration and database seed
// documents from a parameter mapping using text/template.
//
// Templates see the parameters as a map, e.g. {{.server_identifier}}.
// Referencing a parameter that is not set is an error.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"text/template"

	"github.com/cockatrice/testatrice/internal/core/ports"
)

//go:embed templates/*.tmpl
var defaults embed.FS

// Renderer renders named templates. It implements ports.Renderer.
type Renderer struct {
	templates map[string]*template.Template
}

var _ ports.Renderer = (*Renderer)(nil)

// New parses the embedded templates. overrides maps a template name to a
// file whose content replaces the embedded template.
func New(overrides map[string]string) (*Renderer, error) {
	r := &Renderer{templates: make(map[string]*template.Template)}
	for _, name := range []string{ports.TemplateServerConfig, ports.TemplateDatabaseSeed} {
		var (
			text []byte
			err  error
		)
		if path := overrides[name]; path != "" {
			text, err = os.ReadFile(path)
		} else {
			text, err = defaults.ReadFile("templates/" + name + ".tmpl")
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", name, err)
		}

		t, err := template.New(name).Option("missingkey=error").Parse(string(text))
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		r.templates[name] = t
	}
	return r, nil
}

// Render executes template name against params.
func (r *Renderer) Render(name string, params map[string]string) (string, error) {
	t, ok := r.templates[name]
	if !ok {
		return "", fmt.Errorf("unknown template %q", name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, params); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.String(), nil
}
