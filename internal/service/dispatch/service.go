// Package dispatch accepts deployment requests, records them and launches an
// isolated build worker carrying the execution context. Launch is
// fire-and-forget: the dispatcher never waits for the build to finish.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/hangarhq/hangar/internal/docker"
	"github.com/hangarhq/hangar/internal/domain"
	"github.com/hangarhq/hangar/internal/repository"
	"github.com/hangarhq/hangar/pkg/config"
	"github.com/hangarhq/hangar/pkg/crypto"
)

// Launcher starts one worker container. Satisfied by docker.Client.
type Launcher interface {
	LaunchWorker(ctx context.Context, spec docker.LaunchSpec) (string, error)
}

// LaunchRequest is a deployment creation request.
type LaunchRequest struct {
	ProjectID     string            `json:"project_id"`
	GitURL        string            `json:"git_url"`
	Branch        string            `json:"branch,omitempty"`
	Subdomain     string            `json:"subdomain,omitempty"`
	RootDirectory string            `json:"root_directory,omitempty"`
	EnvVariables  map[string]string `json:"env_variables,omitempty"`
}

// LaunchResult is returned to the caller immediately after the worker is
// requested; the URL is predicted, not yet live.
type LaunchResult struct {
	DeploymentID string `json:"deployment_id"`
	URL          string `json:"url"`
	Status       string `json:"status"`
}

// Validation failures surfaced to the HTTP layer.
var (
	ErrMissingGitURL = errors.New("git_url is required")
	ErrInvalidGitURL = errors.New("git_url must be an absolute http(s) URL")
)

// Service implements the dispatcher.
type Service struct {
	projects    repository.ProjectRepository
	deployments repository.DeploymentRepository
	logs        repository.LogRepository
	launcher    Launcher
	cfg         config.APIConfig
	logger      *slog.Logger
	now         func() time.Time
}

// NewService wires a dispatcher.
func NewService(
	projects repository.ProjectRepository,
	deployments repository.DeploymentRepository,
	logs repository.LogRepository,
	launcher Launcher,
	cfg config.APIConfig,
	logger *slog.Logger,
) *Service {
	return &Service{
		projects:    projects,
		deployments: deployments,
		logs:        logs,
		launcher:    launcher,
		cfg:         cfg,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Launch validates the request, creates a QUEUED deployment and starts the
// worker. A worker that fails to launch is the dispatcher's responsibility to
// report: the deployment is marked FAIL and a synthetic log entry explains
// why, since no other component will ever see it.
func (s *Service) Launch(ctx context.Context, req LaunchRequest) (*LaunchResult, error) {
	if err := validateGitURL(req.GitURL); err != nil {
		return nil, err
	}

	subdomain := req.Subdomain
	rootDir := req.RootDirectory
	env := req.EnvVariables

	if req.ProjectID != "" {
		project, err := s.projects.GetProjectByID(ctx, req.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("resolve project %s: %w", req.ProjectID, err)
		}
		if subdomain == "" {
			subdomain = project.Subdomain
		}
		if rootDir == "" {
			rootDir = project.RootDirectory
		}
		if env == nil {
			env = project.EnvVariables
		}
	}
	if subdomain == "" {
		subdomain = generateSubdomain()
	}

	now := s.now()
	deployment := &domain.Deployment{
		ID:        uuid.NewString(),
		ProjectID: req.ProjectID,
		Status:    domain.StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.deployments.CreateDeployment(ctx, deployment); err != nil {
		return nil, fmt.Errorf("create deployment: %w", err)
	}

	workerEnv, err := s.workerEnv(deployment.ID, subdomain, rootDir, env, req)
	if err != nil {
		s.abort(ctx, deployment.ID, err)
		return nil, err
	}

	launchCtx, cancel := context.WithTimeout(ctx, s.cfg.LaunchTimeout)
	defer cancel()
	containerID, err := s.launcher.LaunchWorker(launchCtx, docker.LaunchSpec{
		Name:    "hangar-build-" + deployment.ID,
		Image:   s.cfg.WorkerImage,
		Env:     workerEnv,
		Network: s.cfg.WorkerNetwork,
		Binds:   s.workerBinds(),
	})
	if err != nil {
		s.abort(ctx, deployment.ID, fmt.Errorf("worker launch failed: %w", err))
		return nil, fmt.Errorf("launch worker: %w", err)
	}

	s.logger.Info("worker launched",
		"deployment_id", deployment.ID,
		"subdomain", subdomain,
		"container_id", containerID)

	return &LaunchResult{
		DeploymentID: deployment.ID,
		URL:          fmt.Sprintf("%s://%s.%s", s.cfg.URLScheme, subdomain, s.cfg.BaseDomain),
		Status:       domain.StatusQueued,
	}, nil
}

// Worker containers auto-remove, so the event spool must live on a host
// mount to survive into the next worker's drain pass.
const workerSpoolMount = "/var/hangar/spool"

// workerEnv builds the execution context handed to the worker container.
func (s *Service) workerEnv(deploymentID, subdomain, rootDir string, env map[string]string, req LaunchRequest) ([]string, error) {
	sealed, err := crypto.SealMap(s.cfg.EnvSealSecret, env)
	if err != nil {
		return nil, fmt.Errorf("seal env variables: %w", err)
	}
	vars := []string{
		"SUBDOMAIN=" + subdomain,
		"PROJECT_ID=" + req.ProjectID,
		"DEPLOYMENT_ID=" + deploymentID,
		"ROOT_DIRECTORY=" + rootDir,
		"ENV_VARIABLES=" + sealed,
		"GIT_REPOSITORY_URL=" + req.GitURL,
		"BRANCH=" + req.Branch,
		"REPO_ACCESS_TOKEN=" + s.cfg.RepoAccessToken,
		"ENV_SEAL_SECRET=" + s.cfg.EnvSealSecret,
		"REDIS_ADDR=" + s.cfg.RedisAddr,
		"LOG_STREAM=" + s.cfg.LogStream,
		"STATUS_STREAM=" + s.cfg.StatusStream,
	}
	if s.cfg.WorkerSpoolDir != "" {
		vars = append(vars, "EVENT_SPOOL_PATH="+workerSpoolMount+"/events.jsonl")
	}
	return vars, nil
}

// workerBinds mounts the shared spool directory when one is configured.
func (s *Service) workerBinds() []string {
	if s.cfg.WorkerSpoolDir == "" {
		return nil
	}
	return []string{s.cfg.WorkerSpoolDir + ":" + workerSpoolMount}
}

// abort records a dispatch-time failure: the worker never ran, so the
// dispatcher itself moves the deployment to FAIL and writes the explanation
// into the log store.
func (s *Service) abort(ctx context.Context, deploymentID string, cause error) {
	at := s.now()
	if err := s.deployments.MarkFailed(ctx, deploymentID, at); err != nil {
		s.logger.Error("mark deployment failed", "deployment_id", deploymentID, "error", err)
	}
	entry := domain.LogEvent{
		DeploymentID: deploymentID,
		Timestamp:    at,
		Level:        domain.LogLevelError,
		Text:         cause.Error(),
	}
	if err := s.logs.InsertLogEvents(ctx, []domain.LogEvent{entry}); err != nil {
		s.logger.Error("record launch failure", "deployment_id", deploymentID, "error", err)
	}
}

// GetDeployment reads one deployment for the status endpoint.
func (s *Service) GetDeployment(ctx context.Context, id string) (*domain.Deployment, error) {
	return s.deployments.GetDeploymentByID(ctx, id)
}

// ListLogs reads the persisted build output for one deployment.
func (s *Service) ListLogs(ctx context.Context, deploymentID string) ([]domain.LogEvent, error) {
	return s.logs.ListLogEvents(ctx, deploymentID)
}

func validateGitURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return ErrMissingGitURL
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return ErrInvalidGitURL
	}
	return nil
}

// generateSubdomain produces a short unique slug for projects that did not
// choose one.
func generateSubdomain() string {
	return "app-" + strings.Split(uuid.NewString(), "-")[0]
}
