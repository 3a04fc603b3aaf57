package ws

import (
	"context"
	"encoding/json"

	"log/slog"

	"github.com/hangarhq/hangar/internal/domain"
)

// LogSource follows the live log stream. Satisfied by stream.Tailer.
type LogSource interface {
	Run(ctx context.Context, emit func(domain.LogEvent))
}

// Feed pumps the live log stream into the hub until the context is
// cancelled. Events that fail to marshal are dropped.
func Feed(ctx context.Context, source LogSource, hub *Hub, logger *slog.Logger) {
	source.Run(ctx, func(event domain.LogEvent) {
		payload, err := json.Marshal(event)
		if err != nil {
			logger.Warn("log event marshal failed", "deployment_id", event.DeploymentID, "error", err)
			return
		}
		hub.Broadcast(event.DeploymentID, payload)
	})
}
