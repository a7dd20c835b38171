// pkg/lifecycle/lifecycle.go
package lifecycle

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Hook runs at a lifecycle boundary. Startup hooks may fail the boot;
// shutdown hooks are logged and never abort the exit sequence.
type Hook struct {
	Name string
	Run  func(ctx context.Context) error
}

// Hooks brackets all request and event handling: startup runs before the
// listener accepts, shutdown after it stops. Each side runs at most once per
// process lifetime regardless of how many times it is invoked.
type Hooks struct {
	log        *zap.SugaredLogger
	DrainGrace time.Duration

	startup  []Hook
	shutdown []Hook

	startOnce sync.Once
	stopOnce  sync.Once
}

func New(log *zap.SugaredLogger, drainGrace time.Duration) *Hooks {
	return &Hooks{log: log, DrainGrace: drainGrace}
}

func (h *Hooks) OnStartup(name string, fn func(ctx context.Context) error) {
	h.startup = append(h.startup, Hook{Name: name, Run: fn})
}

func (h *Hooks) OnShutdown(name string, fn func(ctx context.Context) error) {
	h.shutdown = append(h.shutdown, Hook{Name: name, Run: fn})
}

// Startup runs the startup hooks in registration order. The first failure
// stops the sequence and is returned.
func (h *Hooks) Startup(ctx context.Context) error {
	var err error
	h.startOnce.Do(func() {
		for _, hook := range h.startup {
			h.log.Infow("startup hook", "name", hook.Name)
			if e := hook.Run(ctx); e != nil {
				err = e
				return
			}
		}
	})
	return err
}

// Shutdown runs the shutdown hooks inside the drain grace window. Hook
// failures and the grace expiring are logged; the process is always
// permitted to exit.
func (h *Hooks) Shutdown(ctx context.Context) {
	h.stopOnce.Do(func() {
		grace := h.DrainGrace
		if grace <= 0 {
			grace = 10 * time.Second
		}
		dctx, cancel := context.WithTimeout(ctx, grace)
		defer cancel()
		for _, hook := range h.shutdown {
			h.log.Infow("shutdown hook", "name", hook.Name)
			if err := hook.Run(dctx); err != nil {
				h.log.Warnw("shutdown hook failed", "name", hook.Name, "err", err)
			}
			if dctx.Err() != nil {
				h.log.Warnw("drain grace expired", "remaining_after", hook.Name)
				return
			}
		}
	})
}
