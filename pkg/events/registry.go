// pkg/events/registry.go
package events

import (
	"context"
	"fmt"
	"sort"

	"chartex/pkg/installations"
	"chartex/pkg/platform"
)

// HandlerContext carries the per-event scope: the installation that owns the
// event and a client bound to its credential.
type HandlerContext struct {
	Installation installations.Installation
	Client       *platform.Client
}

// Handler processes one delivery and reports an Outcome. Deliveries repeat
// until a terminal outcome is acknowledged, so side effects must be safe to
// repeat.
type Handler func(ctx context.Context, evt Event, hc HandlerContext) Outcome

type registration struct {
	statuses map[string]struct{}
	handler  Handler
}

// Registry maps (event type, accepted statuses) to handlers. Built once at
// startup; looked up per delivery.
type Registry struct {
	byType map[string]registration
}

func NewRegistry() *Registry {
	return &Registry{byType: map[string]registration{}}
}

// Register binds a handler to an event type with the statuses it accepts.
// One handler per type; a duplicate registration is a startup mistake.
func (r *Registry) Register(eventType string, statuses []string, h Handler) error {
	if eventType == "" || h == nil {
		return fmt.Errorf("events: registration needs a type and a handler")
	}
	if _, dup := r.byType[eventType]; dup {
		return fmt.Errorf("events: duplicate handler for %q", eventType)
	}
	set := make(map[string]struct{}, len(statuses))
	for _, s := range statuses {
		set[s] = struct{}{}
	}
	r.byType[eventType] = registration{statuses: set, handler: h}
	return nil
}

// Lookup returns the handler for a (type, status) pair. Missing type or a
// status outside the declared filter yields false: the handler is never
// invoked for deliveries it did not subscribe to.
func (r *Registry) Lookup(eventType, status string) (Handler, bool) {
	reg, ok := r.byType[eventType]
	if !ok {
		return nil, false
	}
	if len(reg.statuses) > 0 {
		if _, ok := reg.statuses[status]; !ok {
			return nil, false
		}
	}
	return reg.handler, true
}

// Types lists registered event types, sorted, for descriptor validation.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.byType))
	for t := range r.byType {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
