package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hangarhq/hangar/internal/domain"
	"github.com/hangarhq/hangar/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.ProjectRepository    = (*Repository)(nil)
	_ repository.DeploymentRepository = (*Repository)(nil)
	_ repository.LogRepository        = (*Repository)(nil)
	_ repository.AnalyticsRepository  = (*Repository)(nil)
)

// GetProjectByID fetches a project by identifier.
func (r *Repository) GetProjectByID(ctx context.Context, id string) (*domain.Project, error) {
	const query = `SELECT id, subdomain, root_directory, env_variables, created_at FROM projects WHERE id = $1`
	return r.scanProject(r.pool.QueryRow(ctx, query, id))
}

// GetProjectBySubdomain resolves the tenant key used by the artifact router.
func (r *Repository) GetProjectBySubdomain(ctx context.Context, subdomain string) (*domain.Project, error) {
	const query = `SELECT id, subdomain, root_directory, env_variables, created_at FROM projects WHERE subdomain = $1`
	return r.scanProject(r.pool.QueryRow(ctx, query, subdomain))
}

func (r *Repository) scanProject(row pgx.Row) (*domain.Project, error) {
	var (
		p       domain.Project
		rawEnvs []byte
	)
	if err := row.Scan(&p.ID, &p.Subdomain, &p.RootDirectory, &rawEnvs, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	if len(rawEnvs) > 0 {
		if err := json.Unmarshal(rawEnvs, &p.EnvVariables); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

// CreateDeployment inserts a deployment in its initial state.
func (r *Repository) CreateDeployment(ctx context.Context, deployment *domain.Deployment) error {
	const query = `INSERT INTO deployments (id, project_id, status, url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	var projectID any
	if deployment.ProjectID != "" {
		projectID = deployment.ProjectID
	}
	_, err := r.pool.Exec(ctx, query, deployment.ID, projectID, deployment.Status, deployment.URL, deployment.CreatedAt, deployment.UpdatedAt)
	return err
}

// GetDeploymentByID retrieves one deployment.
func (r *Repository) GetDeploymentByID(ctx context.Context, id string) (*domain.Deployment, error) {
	const query = `SELECT id, COALESCE(project_id::text, ''), status, url, created_at, updated_at FROM deployments WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, id)
	var d domain.Deployment
	if err := row.Scan(&d.ID, &d.ProjectID, &d.Status, &d.URL, &d.CreatedAt, &d.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

// ApplyStatus writes a lifecycle transition only when the incoming status
// ranks strictly above the stored one. Terminal states stay immutable and
// duplicate or stale deliveries fall through as no-ops.
func (r *Repository) ApplyStatus(ctx context.Context, event domain.StatusEvent) (bool, error) {
	const query = `UPDATE deployments
		SET status = $2, url = COALESCE(NULLIF($3, ''), url), updated_at = $4
		WHERE id = $1
		  AND (CASE status WHEN 'QUEUED' THEN 0 WHEN 'IN_PROGRESS' THEN 1 ELSE 2 END)
		    < (CASE $2 WHEN 'QUEUED' THEN 0 WHEN 'IN_PROGRESS' THEN 1 ELSE 2 END)`
	tag, err := r.pool.Exec(ctx, query, event.DeploymentID, event.Status, event.URL, event.Timestamp)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	// Distinguish a gated no-op from a missing deployment.
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM deployments WHERE id = $1)`, event.DeploymentID).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, repository.ErrNotFound
	}
	return false, nil
}

// MarkFailed forces FAIL on a non-terminal deployment.
func (r *Repository) MarkFailed(ctx context.Context, deploymentID string, at time.Time) error {
	const query = `UPDATE deployments SET status = 'FAIL', updated_at = $2
		WHERE id = $1 AND status NOT IN ('READY', 'FAIL')`
	_, err := r.pool.Exec(ctx, query, deploymentID, at)
	return err
}

// InsertLogEvents appends a batch of build output lines.
func (r *Repository) InsertLogEvents(ctx context.Context, events []domain.LogEvent) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(events))
	for _, e := range events {
		rows = append(rows, []any{e.DeploymentID, e.Timestamp, e.Level, e.Text})
	}
	_, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"log_events"},
		[]string{"deployment_id", "ts", "level", "text"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// ListLogEvents returns a deployment's log lines ordered by timestamp.
func (r *Repository) ListLogEvents(ctx context.Context, deploymentID string) ([]domain.LogEvent, error) {
	const query = `SELECT deployment_id, ts, level, text FROM log_events
		WHERE deployment_id = $1 ORDER BY ts ASC`
	rows, err := r.pool.Query(ctx, query, deploymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []domain.LogEvent
	for rows.Next() {
		var e domain.LogEvent
		if err := rows.Scan(&e.DeploymentID, &e.Timestamp, &e.Level, &e.Text); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// InsertAnalyticsRecord stores one access record.
func (r *Repository) InsertAnalyticsRecord(ctx context.Context, record domain.AnalyticsRecord) error {
	const query = `INSERT INTO analytics_records
		(subdomain, path, status_code, response_time_ms, client_ip, country, city, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.pool.Exec(ctx, query,
		record.Subdomain, record.Path, record.StatusCode, record.ResponseTimeMs,
		record.ClientIP, record.Country, record.City, record.Timestamp)
	return err
}

// ListAnalyticsRecords returns access records for a subdomain inside [from, to).
func (r *Repository) ListAnalyticsRecords(ctx context.Context, subdomain string, from, to time.Time) ([]domain.AnalyticsRecord, error) {
	const query = `SELECT subdomain, path, status_code, response_time_ms, client_ip, country, city, ts
		FROM analytics_records
		WHERE subdomain = $1 AND ts >= $2 AND ts < $3
		ORDER BY ts ASC`
	rows, err := r.pool.Query(ctx, query, subdomain, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []domain.AnalyticsRecord
	for rows.Next() {
		var rec domain.AnalyticsRecord
		if err := rows.Scan(&rec.Subdomain, &rec.Path, &rec.StatusCode, &rec.ResponseTimeMs,
			&rec.ClientIP, &rec.Country, &rec.City, &rec.Timestamp); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountAnalyticsRecords counts access records inside [from, to).
func (r *Repository) CountAnalyticsRecords(ctx context.Context, subdomain string, from, to time.Time) (int, error) {
	const query = `SELECT COUNT(1) FROM analytics_records WHERE subdomain = $1 AND ts >= $2 AND ts < $3`
	var count int
	if err := r.pool.QueryRow(ctx, query, subdomain, from, to).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
