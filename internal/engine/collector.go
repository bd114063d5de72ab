// internal/engine/collector.go
package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/taskpilot/api/schemas"
)

// collector snapshots the current page through the backend. Read-only; a
// backend failure here is not retried, that is the recovery layer's job.
type collector struct {
	backend schemas.Backend
	logger  *zap.Logger
}

func newCollector(backend schemas.Backend, logger *zap.Logger) *collector {
	return &collector{backend: backend, logger: logger.Named("collector")}
}

func (c *collector) Capture(ctx context.Context) (*schemas.PageSnapshot, error) {
	if !c.backend.Running() {
		return nil, schemas.ErrBackendUnavailable
	}

	snap, err := c.backend.CollectSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("capturing page snapshot: %w", err)
	}

	c.logger.Debug("Page snapshot captured.",
		zap.String("url", snap.URL),
		zap.Int("elements", len(snap.Elements)))
	return snap, nil
}
