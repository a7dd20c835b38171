// pkg/events/event.go
package events

import (
	jmes "github.com/jmespath/go-jmespath"
)

// Event is one orchestrator delivery: a type tag, the installation it
// concerns, and an opaque payload document. Payload shape varies by type, so
// fields are pulled out by path rather than decoded into structs.
type Event struct {
	Type           string         `json:"type"`
	InstallationID string         `json:"installation_id"`
	Payload        map[string]any `json:"payload"`
}

// Lookup evaluates a JMESPath expression against the payload and returns the
// result as a string, or "" when absent or not a string.
func (e Event) Lookup(path string) string {
	v, err := jmes.Search(path, e.Payload)
	if err != nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func (e Event) ID() string            { return e.Lookup("id") }
func (e Event) Status() string        { return e.Lookup("status") }
func (e Event) OwnerID() string       { return e.Lookup("owner.id") }
func (e Event) OwnerName() string     { return e.Lookup("owner.name") }
func (e Event) EnvironmentID() string { return e.Lookup("environment.id") }
func (e Event) ProductID() string     { return e.Lookup("asset.product.id") }
