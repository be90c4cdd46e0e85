package template

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// defaultTemplates holds the compiled-in templates keyed by code.
var defaultTemplates = mustLoadDefaults()

func mustLoadDefaults() map[string]*Template {
	var doc struct {
		Templates []*Template `yaml:"templates"`
	}
	if err := yaml.Unmarshal(defaultsYAML, &doc); err != nil {
		panic(fmt.Sprintf("parsing embedded templates: %v", err))
	}
	out := make(map[string]*Template, len(doc.Templates))
	for _, tpl := range doc.Templates {
		tpl.IsSystem = true
		tpl.IsActive = true
		out[tpl.Code] = tpl
	}
	return out
}

// DefaultCodes lists every compiled-in template code.
func DefaultCodes() []string {
	codes := make([]string, 0, len(defaultTemplates))
	for code := range defaultTemplates {
		codes = append(codes, code)
	}
	return codes
}
