package eventlink

import (
	"fmt"
	"os"
	"reflect"
	"sync"

	"github.com/rs/zerolog"
)

var globalLogger struct {
	sync.RWMutex
	logger *zerolog.Logger
}

// SetLogger replaces the package-level logger used by channels and
// dispatchers that were not given their own.
func SetLogger(l zerolog.Logger) {
	globalLogger.Lock()
	defer globalLogger.Unlock()
	globalLogger.logger = &l
}

// Logger returns the package-level logger. Until SetLogger is called it writes
// info and above to stderr.
func Logger() zerolog.Logger {
	globalLogger.RLock()
	defer globalLogger.RUnlock()
	if globalLogger.logger != nil {
		return *globalLogger.logger
	}
	return defaultLogger
}

var defaultLogger = zerolog.New(os.Stderr).Level(zerolog.InfoLevel).With().Timestamp().Logger()

func resolveLogger(l *zerolog.Logger) *zerolog.Logger {
	if l != nil {
		return l
	}
	g := Logger()
	return &g
}

// describe renders a consumer or listener as type plus address, when it has one.
func describe(v any) string {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Func, reflect.Map, reflect.Chan, reflect.UnsafePointer:
		return fmt.Sprintf("%T@%#x", v, rv.Pointer())
	}
	return fmt.Sprintf("%T", v)
}
