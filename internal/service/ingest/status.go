package ingest

import (
	"context"
	"errors"
	"fmt"

	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/hangarhq/hangar/internal/domain"
	"github.com/hangarhq/hangar/internal/repository"
	"github.com/hangarhq/hangar/internal/stream"
)

// StatusIngestor applies status transitions to deployment records.
type StatusIngestor struct {
	deployments repository.DeploymentRepository
	logger      *slog.Logger
}

// NewStatusIngestor wires a status batch handler.
func NewStatusIngestor(deployments repository.DeploymentRepository, logger *slog.Logger) *StatusIngestor {
	return &StatusIngestor{deployments: deployments, logger: logger}
}

// Handle applies one consumed batch. Each transition is rank-gated at the
// store, so stale and duplicate deliveries become no-ops rather than
// regressions; a gated update is logged and the entry is still acknowledged.
// Unknown deployment ids are acknowledged too, since retrying them can never
// succeed. Only store errors propagate, leaving the batch unacked for
// redelivery.
func (i *StatusIngestor) Handle(ctx context.Context, msgs []redis.XMessage) error {
	for _, msg := range msgs {
		event := stream.DecodeStatusEvent(msg)
		if event.DeploymentID == "" || !domain.ValidStatus(event.Status) {
			i.logger.Warn("dropping malformed status entry",
				"stream_id", msg.ID, "status", event.Status)
			continue
		}
		applied, err := i.deployments.ApplyStatus(ctx, event)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				i.logger.Warn("status for unknown deployment",
					"deployment_id", event.DeploymentID, "status", event.Status)
				continue
			}
			return fmt.Errorf("apply status %s to %s: %w", event.Status, event.DeploymentID, err)
		}
		if !applied {
			i.logger.Info("status transition skipped",
				"deployment_id", event.DeploymentID, "status", event.Status)
			continue
		}
		i.logger.Info("deployment status updated",
			"deployment_id", event.DeploymentID, "status", event.Status)
	}
	return nil
}
