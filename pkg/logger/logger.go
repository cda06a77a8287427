// pkg/logger/logger.go
package logger

import (
	"go.uber.org/zap"
)

type Sugared = *zap.SugaredLogger

// New returns a JSON production logger for "prod" and a console logger otherwise.
// Every entry carries the service name.
func New(env, service string) Sugared {
	var z *zap.Logger
	if env == "prod" {
		z, _ = zap.NewProduction()
	} else {
		z, _ = zap.NewDevelopment()
	}
	return z.Sugar().With("service", service, "env", env)
}

// Nop discards everything; used by tests and tools.
func Nop() Sugared { return zap.NewNop().Sugar() }
