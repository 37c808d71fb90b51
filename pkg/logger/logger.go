package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	ProductionMode  = "production"
	DevelopmentMode = "development"
)

type Logger struct {
	zap   *zap.Logger
	sugar *zap.SugaredLogger // skips one frame for the package-level helpers
}

func New(mode string) *Logger {
	var config zap.Config
	if mode == ProductionMode {
		config = zap.NewProductionConfig()
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapLogger, err := config.Build()
	if err != nil {
		zapLogger = zap.NewNop()
	}
	return Wrap(zapLogger)
}

// Wrap adapts an existing zap logger, mostly for tests (zaptest, observer).
func Wrap(l *zap.Logger) *Logger {
	return &Logger{zap: l, sugar: l.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (l *Logger) Info(format string, v ...interface{}) {
	l.sugar.Infof(format, v...)
}

func (l *Logger) Error(format string, v ...interface{}) {
	l.sugar.Errorf(format, v...)
}

func (l *Logger) Debug(format string, v ...interface{}) {
	l.sugar.Debugf(format, v...)
}

func (l *Logger) Fatal(format string, v ...interface{}) {
	l.sugar.Errorf(format, v...)
	_ = l.zap.Sync()
	os.Exit(1)
}

// Zap exposes the structured logger.
func (l *Logger) Zap() *zap.Logger {
	return l.zap
}

func (l *Logger) Sync() error {
	return l.zap.Sync()
}

// Global logger instance
var GlobalLogger = New(os.Getenv("LOG_MODE"))

// SetGlobalLogger replaces the process logger. Call it once from main before
// any goroutines start.
func SetGlobalLogger(l *Logger) {
	GlobalLogger = l
}

// L returns the structured logger behind the global instance.
func L() *zap.Logger {
	return GlobalLogger.zap
}

// Convenience functions
func Info(format string, v ...interface{}) {
	GlobalLogger.sugar.Infof(format, v...)
}

func Error(format string, v ...interface{}) {
	GlobalLogger.sugar.Errorf(format, v...)
}

func Debug(format string, v ...interface{}) {
	GlobalLogger.sugar.Debugf(format, v...)
}

func Fatal(format string, v ...interface{}) {
	GlobalLogger.Fatal(format, v...)
}
