// Package recorder persists completed screening runs.
package recorder

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/seenimoa/chartscout/internal/config"
	"github.com/seenimoa/chartscout/pkg/models"
)

// Recorder stores finished runs and lists recent ones.
type Recorder interface {
	Record(ctx context.Context, run *models.RunResult) error
	Recent(ctx context.Context, limit int) ([]models.RunSummary, error)
	Close() error
}

// Open returns the recorder selected by cfg.Driver ("none" or "sqlite").
func Open(cfg config.RecorderConfig, log *zap.Logger) (Recorder, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "none":
		return NewNoopRecorder(), nil
	case "sqlite":
		return NewSQLiteRecorder(cfg.Path, log)
	default:
		return nil, fmt.Errorf("recorder: unknown driver %q", cfg.Driver)
	}
}
