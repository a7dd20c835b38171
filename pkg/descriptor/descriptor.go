// pkg/descriptor/descriptor.go
package descriptor

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Descriptor is the declarative manifest the host runtime reads: which pages
// the extension contributes and which events it subscribes to. The pages are
// metadata only — the host renders them, the extension never does.
type Descriptor struct {
	Name                string         `yaml:"name"`
	AccountSettingsPage *Page          `yaml:"account_settings_page,omitempty"`
	ModulePages         []Page         `yaml:"module_pages,omitempty"`
	AdminPages          []Page         `yaml:"admin_pages,omitempty"`
	Events              []Subscription `yaml:"events,omitempty"`
}

type Page struct {
	Label    string `yaml:"label"`
	URL      string `yaml:"url"`
	Children []Page `yaml:"children,omitempty"`
}

// Subscription declares an event type and the statuses the extension accepts
// for it. The orchestrator uses it to filter deliveries.
type Subscription struct {
	Type     string   `yaml:"type"`
	Statuses []string `yaml:"statuses"`
}

func Load(path string) (Descriptor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, fmt.Errorf("descriptor: read %s: %w", path, err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (Descriptor, error) {
	var d Descriptor
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return Descriptor{}, fmt.Errorf("descriptor: parse: %w", err)
	}
	if d.Name == "" {
		return Descriptor{}, fmt.Errorf("descriptor: name is required")
	}
	seen := map[string]bool{}
	for _, s := range d.Events {
		if s.Type == "" {
			return Descriptor{}, fmt.Errorf("descriptor: event subscription without a type")
		}
		if seen[s.Type] {
			return Descriptor{}, fmt.Errorf("descriptor: duplicate subscription for %q", s.Type)
		}
		seen[s.Type] = true
	}
	return d, nil
}

// ValidateHandlers checks that every declared subscription has a registered
// handler type. Run at startup so a descriptor/registry drift fails fast
// instead of dropping deliveries at runtime.
func (d Descriptor) ValidateHandlers(registered []string) error {
	have := map[string]bool{}
	for _, t := range registered {
		have[t] = true
	}
	for _, s := range d.Events {
		if !have[s.Type] {
			return fmt.Errorf("descriptor: subscription %q has no registered handler", s.Type)
		}
	}
	return nil
}
