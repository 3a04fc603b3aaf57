package build

import (
	"context"
	"time"

	"log/slog"

	"github.com/hangarhq/hangar/internal/domain"
)

// EventPublisher is the slice of the stream publisher the worker uses.
type EventPublisher interface {
	PublishLog(ctx context.Context, event domain.LogEvent) error
	PublishStatus(ctx context.Context, event domain.StatusEvent) error
}

const emitTimeout = 5 * time.Second

// Emitter stamps events with the deployment id and sends them
// fire-and-forget: a failed send is logged locally, never propagated into
// the pipeline's control flow.
type Emitter struct {
	publisher    EventPublisher
	deploymentID string
	logger       *slog.Logger
	now          func() time.Time
}

// NewEmitter binds an emitter to one deployment.
func NewEmitter(publisher EventPublisher, deploymentID string, logger *slog.Logger) *Emitter {
	return &Emitter{
		publisher:    publisher,
		deploymentID: deploymentID,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Log publishes one build output line.
func (e *Emitter) Log(level, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
	defer cancel()
	event := domain.LogEvent{
		DeploymentID: e.deploymentID,
		Timestamp:    e.now(),
		Level:        level,
		Text:         text,
	}
	if err := e.publisher.PublishLog(ctx, event); err != nil {
		e.logger.Warn("log event dropped", "deployment_id", e.deploymentID, "error", err)
	}
}

// Status publishes a lifecycle transition.
func (e *Emitter) Status(status, url string) {
	ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
	defer cancel()
	event := domain.StatusEvent{
		DeploymentID: e.deploymentID,
		Timestamp:    e.now(),
		Status:       status,
		URL:          url,
	}
	if err := e.publisher.PublishStatus(ctx, event); err != nil {
		e.logger.Warn("status event dropped", "deployment_id", e.deploymentID, "status", status, "error", err)
	}
}
