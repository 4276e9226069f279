// Package logging builds the process zap logger.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a JSON logger at level. Logs go to file when set; otherwise to
// stdout, unless stdio is on, in which case they are dropped so stdout stays
// clean for the MCP transport. The returned func flushes the logger.
func New(level, file string, stdio bool) (*zap.Logger, func(), error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, nil, fmt.Errorf("zapcore.ParseLevel failed: %w", err)
	}

	if file == "" && stdio {
		return zap.NewNop(), func() {}, nil
	}

	out := "stdout"
	if file != "" {
		out = file
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{out}
	cfg.ErrorOutputPaths = []string{out}
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	log, err := cfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("cfg.Build failed: %w", err)
	}

	return log, func() { _ = log.Sync() }, nil
}
