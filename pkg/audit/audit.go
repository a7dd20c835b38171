// pkg/audit/audit.go
package audit

import (
	"context"

	"chartex/pkg/middleware"

	"go.uber.org/zap"
)

// Recorder captures privileged actions. Every impersonation exchange is one:
// the record names the acting service and the target installation, never the
// credential itself.
type Recorder interface {
	Impersonation(ctx context.Context, serviceID, installationID string)
}

type logRecorder struct {
	log *zap.SugaredLogger
}

// NewLog returns a recorder that writes audit entries to the process log.
func NewLog(log *zap.SugaredLogger) Recorder {
	return &logRecorder{log: log}
}

func (l *logRecorder) Impersonation(ctx context.Context, serviceID, installationID string) {
	l.log.Infow("impersonation exchange",
		"service", serviceID,
		"installation", installationID,
		"request_id", middleware.RequestIDFrom(ctx),
	)
}
