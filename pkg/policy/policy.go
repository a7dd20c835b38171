// pkg/policy/policy.go
package policy

import (
	"context"
	"fmt"
	"os"

	"chartex/pkg/installations"

	"github.com/open-policy-agent/opa/rego"
)

// defaultModule is the builtin skip rule: events owned by distributor
// accounts are not auto-processed.
const defaultModule = `package chartex

default skip = false

skip {
	startswith(input.installation.owner.id, "PA-")
}
`

// SkipPolicy decides whether an event should be skipped for a tenant before
// any side effect happens. The rule is rego so operators can replace the
// builtin without a rebuild.
type SkipPolicy struct {
	query rego.PreparedEvalQuery
}

// Load prepares the policy from modulePath, or the builtin module when the
// path is empty.
func Load(ctx context.Context, modulePath string) (*SkipPolicy, error) {
	mod := defaultModule
	if modulePath != "" {
		raw, err := os.ReadFile(modulePath)
		if err != nil {
			return nil, fmt.Errorf("policy: read %s: %w", modulePath, err)
		}
		mod = string(raw)
	}
	q, err := rego.New(
		rego.Query("data.chartex.skip"),
		rego.Module("chartex.rego", mod),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("policy: prepare: %w", err)
	}
	return &SkipPolicy{query: q}, nil
}

// Skip evaluates the rule for an installation and event payload. Evaluation
// errors fail closed to "do not skip" so a broken policy never suppresses
// processing silently — the handler's own guards still apply.
func (p *SkipPolicy) Skip(ctx context.Context, inst installations.Installation, payload map[string]any) (bool, error) {
	input := map[string]any{
		"installation": map[string]any{
			"id": inst.ID,
			"owner": map[string]any{
				"id":   inst.Owner.ID,
				"name": inst.Owner.Name,
			},
		},
		"event": payload,
	}
	rs, err := p.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, err
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	skip, _ := rs[0].Expressions[0].Value.(bool)
	return skip, nil
}
