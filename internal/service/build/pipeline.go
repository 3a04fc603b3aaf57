// Package build implements the one-shot deployment pipeline that runs inside
// an isolated worker container: clone the repository, run the build command,
// locate the output folder and upload it to the object store, reporting
// progress through the log and status event channels.
package build

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"log/slog"

	"github.com/hangarhq/hangar/internal/domain"
	"github.com/hangarhq/hangar/internal/workspace"
	"github.com/hangarhq/hangar/pkg/config"
	"github.com/hangarhq/hangar/pkg/crypto"
)

// Pipeline drives a single deployment from source to published artifacts.
type Pipeline struct {
	cfg     config.WorkerConfig
	store   ObjectStore
	emitter *Emitter
	logger  *slog.Logger
}

// NewPipeline assembles a pipeline for one deployment.
func NewPipeline(cfg config.WorkerConfig, store ObjectStore, emitter *Emitter, logger *slog.Logger) *Pipeline {
	return &Pipeline{cfg: cfg, store: store, emitter: emitter, logger: logger}
}

// Validate rejects an incomplete execution context before any stage runs.
func (p *Pipeline) Validate() error {
	switch {
	case p.cfg.DeploymentID == "":
		return errors.New("DEPLOYMENT_ID is required")
	case p.cfg.Subdomain == "":
		return errors.New("SUBDOMAIN is required")
	case p.cfg.GitRepoURL == "":
		return errors.New("GIT_REPOSITORY_URL is required")
	}
	return nil
}

// Run executes every stage in order. Any stage failing publishes FAIL and
// returns the error; success publishes READY with the final URL. The status
// events themselves are fire-and-forget, so Run's error reflects the build
// outcome only.
func (p *Pipeline) Run(ctx context.Context) error {
	p.emitter.Status(domain.StatusInProgress, "")
	p.emitter.Log(domain.LogLevelInfo, "build started for "+p.cfg.Subdomain)

	if err := p.Validate(); err != nil {
		return p.fail(err)
	}

	ws, err := workspace.New(p.cfg.Workdir)
	if err != nil {
		return p.fail(fmt.Errorf("prepare workspace: %w", err))
	}
	checkout, err := ws.Prepare(p.cfg.DeploymentID)
	if err != nil {
		return p.fail(fmt.Errorf("prepare workspace: %w", err))
	}
	defer func() {
		if err := ws.Cleanup(checkout); err != nil {
			p.logger.Warn("workspace cleanup failed", "path", checkout, "error", err)
		}
	}()

	if err := p.clone(ctx, checkout); err != nil {
		return p.fail(err)
	}

	buildRoot := checkout
	if root := strings.Trim(p.cfg.RootDirectory, "/"); root != "" {
		buildRoot = filepath.Join(checkout, filepath.FromSlash(root))
	}

	if err := p.build(ctx, buildRoot); err != nil {
		return p.fail(err)
	}

	outputDir, err := DetectOutputDir(buildRoot)
	if err != nil {
		return p.fail(err)
	}
	p.emitter.Log(domain.LogLevelInfo, "output folder detected: "+filepath.Base(outputDir))

	result, err := UploadDir(ctx, p.store, p.emitter, outputDir, p.cfg.ArtifactPrefix, p.cfg.Subdomain)
	if err != nil {
		return p.fail(fmt.Errorf("upload artifacts: %w", err))
	}
	p.emitter.Log(domain.LogLevelInfo,
		fmt.Sprintf("upload finished: %d files uploaded, %d failed", result.Uploaded, result.Failed))
	if result.Uploaded == 0 {
		return p.fail(errors.New("no artifacts uploaded"))
	}

	url := fmt.Sprintf("%s://%s.%s", p.cfg.URLScheme, p.cfg.Subdomain, p.cfg.BaseDomain)
	p.emitter.Log(domain.LogLevelInfo, "deployment ready at "+url)
	p.emitter.Status(domain.StatusReady, url)
	return nil
}

func (p *Pipeline) clone(ctx context.Context, dest string) error {
	cloneURL := p.cfg.GitRepoURL
	if p.cfg.RepoToken != "" {
		authed, err := AuthCloneURL(p.cfg.GitRepoURL, p.cfg.RepoToken)
		if err != nil {
			return fmt.Errorf("clone: %w", err)
		}
		cloneURL = authed
	}

	p.emitter.Log(domain.LogLevelInfo, "cloning "+p.cfg.GitRepoURL)
	cloneCtx, cancel := context.WithTimeout(ctx, p.cfg.CloneTimeout)
	defer cancel()
	if err := Clone(cloneCtx, cloneURL, p.cfg.Branch, dest); err != nil {
		return fmt.Errorf("clone: %s", Scrub(err.Error(), p.cfg.RepoToken))
	}
	p.emitter.Log(domain.LogLevelInfo, "clone complete")
	return nil
}

func (p *Pipeline) build(ctx context.Context, dir string) error {
	env, err := crypto.OpenMap(p.cfg.EnvSealSecret, p.cfg.EnvVariables)
	if err != nil {
		return fmt.Errorf("decode env variables: %w", err)
	}

	p.emitter.Log(domain.LogLevelInfo, "running build: "+p.cfg.BuildCommand)
	buildCtx, cancel := context.WithTimeout(ctx, p.cfg.BuildTimeout)
	defer cancel()
	err = RunShell(buildCtx, p.cfg.BuildCommand, dir, env,
		func(line string) { p.emitter.Log(domain.LogLevelInfo, line) },
		func(line string) { p.emitter.Log(ClassifyStderr(line), line) },
	)
	if err != nil {
		return fmt.Errorf("build command: %w", err)
	}
	p.emitter.Log(domain.LogLevelInfo, "build complete")
	return nil
}

// fail publishes the failure through both channels and hands the error back
// so the process can exit non-zero.
func (p *Pipeline) fail(err error) error {
	text := Scrub(err.Error(), p.cfg.RepoToken)
	p.emitter.Log(domain.LogLevelError, text)
	p.emitter.Status(domain.StatusFail, "")
	return err
}
