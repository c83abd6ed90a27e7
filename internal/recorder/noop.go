package recorder

import (
	"context"

	"github.com/seenimoa/chartscout/pkg/models"
)

// NoopRecorder is used when no run store is configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) Record(context.Context, *models.RunResult) error { return nil }
func (n *NoopRecorder) Recent(context.Context, int) ([]models.RunSummary, error) {
	return nil, nil
}
func (n *NoopRecorder) Close() error { return nil }
