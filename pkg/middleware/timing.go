// pkg/middleware/timing.go
package middleware

import (
	"net/http"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TimingConfig controls the per-call timing log. With a zero Threshold every
// call is logged; otherwise only calls taking at least Threshold.
type TimingConfig struct {
	Level     string // critical|error|warning|info|debug
	Threshold time.Duration
}

// Timing measures wall-clock time across the wrapped pipeline and logs it.
// It observes only: the response and any panic pass through untouched, and
// the elapsed time is still logged when the pipeline panics.
func Timing(log *zap.SugaredLogger, cfg TimingConfig) func(http.Handler) http.Handler {
	lvl := parseTimingLevel(cfg.Level)
	base := log.Desugar().WithOptions(zap.AddCallerSkip(1))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			defer func() {
				elapsed := time.Since(start)
				if cfg.Threshold > 0 && elapsed < cfg.Threshold {
					return
				}
				if ce := base.Check(lvl, "request timing"); ce != nil {
					ce.Write(
						zap.String("method", r.Method),
						zap.String("path", r.URL.Path),
						zap.Duration("elapsed", elapsed),
					)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// zap has no critical level; critical maps to error.
func parseTimingLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warning":
		return zapcore.WarnLevel
	case "error", "critical":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
