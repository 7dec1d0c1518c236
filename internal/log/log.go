// Package log wraps a zap logger behind the printf-style call sites the rest
// of this repository was written against (log.Error("fail to %v: %v", op, err)).
package log

import (
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	globalMu     sync.Mutex
	globalLogger *zap.SugaredLogger
	globalReady  uint32
)

// Init installs the process-wide logger. path == "" logs to stderr.
// level is one of debug, info, warn, error.
func Init(path, level string) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	cfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		cfg.Level = lvl
	}
	if path != "" {
		cfg.OutputPaths = []string{path}
		cfg.ErrorOutputPaths = []string{path}
	}

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}

	globalLogger = logger.Sugar()
	atomic.StoreUint32(&globalReady, 1)
	return nil
}

func sugar() *zap.SugaredLogger {
	if atomic.LoadUint32(&globalReady) == 1 {
		return globalLogger
	}
	// Fallback so packages can log before Init runs (e.g. during flag parsing).
	l, _ := zap.NewDevelopment(zap.AddCallerSkip(1))
	return l.Sugar()
}

func Debug(template string, args ...interface{}) {
	sugar().Debugf(template, args...)
}

func Info(template string, args ...interface{}) {
	sugar().Infof(template, args...)
}

func Warn(template string, args ...interface{}) {
	sugar().Warnf(template, args...)
}

func Error(template string, args ...interface{}) {
	sugar().Errorf(template, args...)
}

func Fatal(template string, args ...interface{}) {
	sugar().Fatalf(template, args...)
	os.Exit(1)
}

func Panic(template string, args ...interface{}) {
	sugar().Panicf(template, args...)
}

// Sync flushes any buffered log entries. Call before process exit.
func Sync() {
	if atomic.LoadUint32(&globalReady) == 1 {
		_ = globalLogger.Sync()
	}
}
