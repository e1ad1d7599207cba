package logging

import (
	"go.uber.org/zap"
)

// Log is the process-wide sugared logger; Init must run before first use.
var Log *zap.SugaredLogger

func init() {
	// Safe default so packages can log before Init (tests, early startup).
	Log = zap.NewNop().Sugar()
}

// Init replaces the default logger. Development mode enables console
// encoding and debug level.
func Init(development bool) {
	var (
		logger *zap.Logger
		err    error
	)
	if development {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic("failed to initialize zap logger: " + err.Error())
	}
	Log = logger.Sugar()
}
