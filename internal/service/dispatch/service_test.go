package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hangarhq/hangar/internal/docker"
	"github.com/hangarhq/hangar/internal/domain"
	"github.com/hangarhq/hangar/internal/repository"
	"github.com/hangarhq/hangar/pkg/config"
)

type fakeProjects struct {
	projects map[string]*domain.Project
}

func (f *fakeProjects) GetProjectByID(_ context.Context, id string) (*domain.Project, error) {
	if p, ok := f.projects[id]; ok {
		return p, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeProjects) GetProjectBySubdomain(_ context.Context, subdomain string) (*domain.Project, error) {
	for _, p := range f.projects {
		if p.Subdomain == subdomain {
			return p, nil
		}
	}
	return nil, repository.ErrNotFound
}

type fakeDeployments struct {
	created []*domain.Deployment
	failed  []string
}

func (f *fakeDeployments) CreateDeployment(_ context.Context, d *domain.Deployment) error {
	f.created = append(f.created, d)
	return nil
}

func (f *fakeDeployments) GetDeploymentByID(_ context.Context, id string) (*domain.Deployment, error) {
	for _, d := range f.created {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeDeployments) ApplyStatus(_ context.Context, _ domain.StatusEvent) (bool, error) {
	return true, nil
}

func (f *fakeDeployments) MarkFailed(_ context.Context, id string, _ time.Time) error {
	f.failed = append(f.failed, id)
	return nil
}

type fakeLogs struct {
	inserted []domain.LogEvent
}

func (f *fakeLogs) InsertLogEvents(_ context.Context, events []domain.LogEvent) error {
	f.inserted = append(f.inserted, events...)
	return nil
}

func (f *fakeLogs) ListLogEvents(_ context.Context, deploymentID string) ([]domain.LogEvent, error) {
	var out []domain.LogEvent
	for _, e := range f.inserted {
		if e.DeploymentID == deploymentID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeLauncher struct {
	specs []docker.LaunchSpec
	err   error
}

func (f *fakeLauncher) LaunchWorker(_ context.Context, spec docker.LaunchSpec) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.specs = append(f.specs, spec)
	return "container-1", nil
}

func testConfig() config.APIConfig {
	return config.APIConfig{
		WorkerImage:   "hangar/worker:test",
		BaseDomain:    "hangar.test",
		URLScheme:     "http",
		LaunchTimeout: 5 * time.Second,
	}
}

func newTestService(projects *fakeProjects, deployments *fakeDeployments, logs *fakeLogs, launcher *fakeLauncher) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(projects, deployments, logs, launcher, testConfig(), logger)
}

func envValue(env []string, key string) (string, bool) {
	prefix := key + "="
	for _, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			return strings.TrimPrefix(kv, prefix), true
		}
	}
	return "", false
}

func TestLaunchCreatesQueuedDeploymentAndWorker(t *testing.T) {
	projects := &fakeProjects{projects: map[string]*domain.Project{
		"p1": {ID: "p1", Subdomain: "acme", RootDirectory: "web"},
	}}
	deployments := &fakeDeployments{}
	logs := &fakeLogs{}
	launcher := &fakeLauncher{}
	svc := newTestService(projects, deployments, logs, launcher)

	result, err := svc.Launch(context.Background(), LaunchRequest{
		ProjectID: "p1",
		GitURL:    "https://github.com/acme/site.git",
		Branch:    "main",
	})
	if err != nil {
		t.Fatalf("Launch returned error: %v", err)
	}

	if len(deployments.created) != 1 {
		t.Fatalf("expected one deployment, got %d", len(deployments.created))
	}
	if deployments.created[0].Status != domain.StatusQueued {
		t.Fatalf("deployment status = %q, want QUEUED", deployments.created[0].Status)
	}
	if result.URL != "http://acme.hangar.test" {
		t.Fatalf("predicted URL = %q", result.URL)
	}
	if result.DeploymentID != deployments.created[0].ID {
		t.Fatalf("result deployment id mismatch")
	}

	if len(launcher.specs) != 1 {
		t.Fatalf("expected one worker launch, got %d", len(launcher.specs))
	}
	env := launcher.specs[0].Env
	for key, want := range map[string]string{
		"SUBDOMAIN":          "acme",
		"PROJECT_ID":         "p1",
		"DEPLOYMENT_ID":      result.DeploymentID,
		"ROOT_DIRECTORY":     "web",
		"GIT_REPOSITORY_URL": "https://github.com/acme/site.git",
		"BRANCH":             "main",
	} {
		got, ok := envValue(env, key)
		if !ok || got != want {
			t.Fatalf("worker env %s = %q (present=%v), want %q", key, got, ok, want)
		}
	}
}

func TestLaunchGeneratesSubdomainWhenAbsent(t *testing.T) {
	deployments := &fakeDeployments{}
	launcher := &fakeLauncher{}
	svc := newTestService(&fakeProjects{}, deployments, &fakeLogs{}, launcher)

	result, err := svc.Launch(context.Background(), LaunchRequest{
		GitURL: "https://github.com/acme/site.git",
	})
	if err != nil {
		t.Fatalf("Launch returned error: %v", err)
	}
	sub, ok := envValue(launcher.specs[0].Env, "SUBDOMAIN")
	if !ok || !strings.HasPrefix(sub, "app-") {
		t.Fatalf("generated subdomain = %q", sub)
	}
	if !strings.Contains(result.URL, sub) {
		t.Fatalf("predicted URL %q does not contain subdomain %q", result.URL, sub)
	}
}

func TestLaunchMountsSpoolDirWhenConfigured(t *testing.T) {
	launcher := &fakeLauncher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := testConfig()
	cfg.WorkerSpoolDir = "/srv/hangar/spool"
	svc := NewService(&fakeProjects{}, &fakeDeployments{}, &fakeLogs{}, launcher, cfg, logger)

	if _, err := svc.Launch(context.Background(), LaunchRequest{
		GitURL: "https://github.com/acme/site.git",
	}); err != nil {
		t.Fatalf("Launch returned error: %v", err)
	}

	spec := launcher.specs[0]
	if len(spec.Binds) != 1 || spec.Binds[0] != "/srv/hangar/spool:"+workerSpoolMount {
		t.Fatalf("worker binds = %v", spec.Binds)
	}
	path, ok := envValue(spec.Env, "EVENT_SPOOL_PATH")
	if !ok || !strings.HasPrefix(path, workerSpoolMount+"/") {
		t.Fatalf("EVENT_SPOOL_PATH = %q (present=%v)", path, ok)
	}
}

func TestLaunchOmitsSpoolBindByDefault(t *testing.T) {
	launcher := &fakeLauncher{}
	svc := newTestService(&fakeProjects{}, &fakeDeployments{}, &fakeLogs{}, launcher)

	if _, err := svc.Launch(context.Background(), LaunchRequest{
		GitURL: "https://github.com/acme/site.git",
	}); err != nil {
		t.Fatalf("Launch returned error: %v", err)
	}
	if len(launcher.specs[0].Binds) != 0 {
		t.Fatalf("unexpected binds: %v", launcher.specs[0].Binds)
	}
	if _, ok := envValue(launcher.specs[0].Env, "EVENT_SPOOL_PATH"); ok {
		t.Fatalf("EVENT_SPOOL_PATH should not be set without a spool dir")
	}
}

func TestLaunchRejectsInvalidGitURL(t *testing.T) {
	svc := newTestService(&fakeProjects{}, &fakeDeployments{}, &fakeLogs{}, &fakeLauncher{})

	if _, err := svc.Launch(context.Background(), LaunchRequest{}); !errors.Is(err, ErrMissingGitURL) {
		t.Fatalf("empty git URL error = %v, want ErrMissingGitURL", err)
	}
	if _, err := svc.Launch(context.Background(), LaunchRequest{GitURL: "git@github.com:a/b.git"}); !errors.Is(err, ErrInvalidGitURL) {
		t.Fatalf("ssh git URL error = %v, want ErrInvalidGitURL", err)
	}
}

func TestLaunchFailureMarksDeploymentFailed(t *testing.T) {
	deployments := &fakeDeployments{}
	logs := &fakeLogs{}
	launcher := &fakeLauncher{err: errors.New("daemon unreachable")}
	svc := newTestService(&fakeProjects{}, deployments, logs, launcher)

	_, err := svc.Launch(context.Background(), LaunchRequest{
		GitURL: "https://github.com/acme/site.git",
	})
	if err == nil {
		t.Fatalf("expected launch error")
	}

	if len(deployments.created) != 1 {
		t.Fatalf("deployment record should exist even on launch failure")
	}
	id := deployments.created[0].ID
	if len(deployments.failed) != 1 || deployments.failed[0] != id {
		t.Fatalf("deployment %s was not marked failed: %v", id, deployments.failed)
	}
	if len(logs.inserted) != 1 || logs.inserted[0].DeploymentID != id {
		t.Fatalf("expected one synthetic log entry for %s, got %v", id, logs.inserted)
	}
	if logs.inserted[0].Level != domain.LogLevelError {
		t.Fatalf("synthetic log level = %q, want error", logs.inserted[0].Level)
	}
	if !strings.Contains(logs.inserted[0].Text, "daemon unreachable") {
		t.Fatalf("synthetic log text = %q", logs.inserted[0].Text)
	}
}

func TestLaunchUnknownProject(t *testing.T) {
	svc := newTestService(&fakeProjects{}, &fakeDeployments{}, &fakeLogs{}, &fakeLauncher{})
	_, err := svc.Launch(context.Background(), LaunchRequest{
		ProjectID: "ghost",
		GitURL:    "https://github.com/acme/site.git",
	})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("unknown project error = %v, want ErrNotFound", err)
	}
}
