// pkg/logger/logger.go
package logger

import (
	"go.uber.org/zap"
)

type Sugared = *zap.SugaredLogger

// New builds the process logger. The service name is attached to every entry
// so audit lines from the credential resolver can be correlated.
func New(env, service string) Sugared {
	var z *zap.Logger
	if env == "prod" {
		z, _ = zap.NewProduction()
	} else {
		z, _ = zap.NewDevelopment()
	}
	if service != "" {
		z = z.With(zap.String("service", service))
	}
	return z.Sugar()
}
