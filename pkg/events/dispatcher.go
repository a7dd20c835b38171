// pkg/events/dispatcher.go
package events

import (
	"context"
	"sync"
	"time"

	"chartex/pkg/credentials"
	"chartex/pkg/problems"

	"go.uber.org/zap"
)

// DefaultRedeliveryDelay is suggested to the orchestrator when a transient
// fault prevented handling.
const DefaultRedeliveryDelay = 30 * time.Second

// Dispatcher routes deliveries to registered handlers. Each delivery is
// independent: handlers never block on another event's outcome, and an
// in-flight handler is not cancelled when the orchestrator loses interest —
// idempotent handlers make the late outcome redundant but safe.
type Dispatcher struct {
	reg   *Registry
	creds *credentials.Resolver
	log   *zap.SugaredLogger
	wg    sync.WaitGroup
}

func NewDispatcher(reg *Registry, creds *credentials.Resolver, log *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{reg: reg, creds: creds, log: log}
}

// Dispatch handles one delivery and always produces an explicit Outcome: the
// orchestrator must never be left guessing. Unrecoverable faults become
// fail; transient ones become reschedule.
func (d *Dispatcher) Dispatch(ctx context.Context, evt Event) (out Outcome) {
	d.wg.Add(1)
	defer d.wg.Done()
	defer func() {
		if rec := recover(); rec != nil {
			d.log.Errorw("event handler panic", "type", evt.Type, "event", evt.ID(), "err", rec)
			out = Failf("handler panic: %v", rec)
		}
	}()

	handler, ok := d.reg.Lookup(evt.Type, evt.Status())
	if !ok {
		// The orchestrator filters statuses, but a redelivered or stale
		// event may no longer match. Not ours to handle.
		d.log.Debugw("delivery outside filter", "type", evt.Type, "status", evt.Status())
		return Skip()
	}

	// The extension acts on behalf of the installation that owns the event.
	// The grant is issued to the extension's own service identity but scoped
	// to that installation only.
	client, err := d.creds.Impersonated(ctx, evt.InstallationID)
	if err != nil {
		return d.faultOutcome(evt, "resolve credential", err)
	}
	inst, err := client.GetInstallation(ctx, evt.InstallationID)
	if err != nil && problems.KindOf(err) == problems.CredentialDenied {
		// The cached grant may have been revoked mid-lifetime. Drop it and
		// exchange once more before giving up on the delivery.
		d.creds.Invalidate(ctx, evt.InstallationID)
		client, err = d.creds.Impersonated(ctx, evt.InstallationID)
		if err == nil {
			inst, err = client.GetInstallation(ctx, evt.InstallationID)
		}
	}
	if err != nil {
		return d.faultOutcome(evt, "fetch installation", err)
	}

	out = handler(ctx, evt, HandlerContext{Installation: inst, Client: client})
	if out.Status == "" {
		out = Pending()
	}
	d.log.Infow("event handled",
		"type", evt.Type, "event", evt.ID(), "installation", evt.InstallationID,
		"outcome", out.Status)
	return out
}

func (d *Dispatcher) faultOutcome(evt Event, stage string, err error) Outcome {
	kind := problems.KindOf(err)
	d.log.Warnw("event "+stage+" failed", "type", evt.Type, "event", evt.ID(), "kind", kind, "err", err)
	if kind == problems.Transient {
		return Reschedule(DefaultRedeliveryDelay)
	}
	return Failf("%s: %v", stage, err)
}

// Drain waits for in-flight deliveries, bounded by ctx. Used by the shutdown
// hook; a timeout is logged by the caller, never fatal.
func (d *Dispatcher) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
