package repository

import (
	"context"
	"time"

	"github.com/hangarhq/hangar/internal/domain"
)

// ProjectRepository resolves project lookups. Projects are collaborator-owned;
// this core only reads them.
type ProjectRepository interface {
	GetProjectByID(ctx context.Context, id string) (*domain.Project, error)
	GetProjectBySubdomain(ctx context.Context, subdomain string) (*domain.Project, error)
}

// DeploymentRepository stores deployment lifecycle state.
type DeploymentRepository interface {
	CreateDeployment(ctx context.Context, deployment *domain.Deployment) error
	GetDeploymentByID(ctx context.Context, id string) (*domain.Deployment, error)
	// ApplyStatus performs a rank-gated conditional update: the new status is
	// written only when it ranks strictly above the stored one. It returns
	// true when a row was updated.
	ApplyStatus(ctx context.Context, event domain.StatusEvent) (bool, error)
	// MarkFailed forces a deployment to FAIL unless it is already terminal.
	// Used by the dispatcher when the worker never launched.
	MarkFailed(ctx context.Context, deploymentID string, at time.Time) error
}

// LogRepository persists and retrieves build output lines.
type LogRepository interface {
	InsertLogEvents(ctx context.Context, events []domain.LogEvent) error
	ListLogEvents(ctx context.Context, deploymentID string) ([]domain.LogEvent, error)
}

// AnalyticsRepository stores per-request access records and reads windows of
// them back for aggregation.
type AnalyticsRepository interface {
	InsertAnalyticsRecord(ctx context.Context, record domain.AnalyticsRecord) error
	ListAnalyticsRecords(ctx context.Context, subdomain string, from, to time.Time) ([]domain.AnalyticsRecord, error)
	CountAnalyticsRecords(ctx context.Context, subdomain string, from, to time.Time) (int, error)
}
