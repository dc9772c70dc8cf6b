package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger. Console output always goes to stderr:
// stdout is reserved for the pipe handoff and dry-run plan output. When
// logFile is nonempty a JSON sink is added alongside.
func New(verbose bool, logFile string) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if logFile != "" {
		fileCfg := zap.NewProductionConfig()
		fileCfg.Level = zap.NewAtomicLevelAt(level)
		fileCfg.OutputPaths = []string{logFile}
		fileLogger, err := fileCfg.Build()
		if err != nil {
			return nil, err
		}
		console, err := cfg.Build()
		if err != nil {
			return nil, err
		}
		tee := zap.New(zapcore.NewTee(console.Core(), fileLogger.Core()))
		return tee, nil
	}
	return cfg.Build()
}
