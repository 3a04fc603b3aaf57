package docker

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types/container"
)

// LaunchSpec describes one isolated build worker run.
type LaunchSpec struct {
	Name    string   // container name, usually the deployment id
	Image   string   // worker image
	Env     []string // execution context, KEY=VALUE pairs
	Network string   // optional docker network
	Binds   []string // optional host binds, "host:container" pairs
}

// LaunchWorker starts one auto-removing worker container. The worker runs to
// completion on its own; the dispatcher never waits for it.
func (c *Client) LaunchWorker(ctx context.Context, spec LaunchSpec) (string, error) {
	if c == nil || c.inner == nil {
		return "", fmt.Errorf("docker client not initialized")
	}
	if strings.TrimSpace(spec.Image) == "" {
		return "", fmt.Errorf("worker image cannot be empty")
	}

	cfg := &container.Config{
		Image: spec.Image,
		Env:   spec.Env,
	}
	hostCfg := &container.HostConfig{
		AutoRemove: true,
		Binds:      spec.Binds,
	}
	if spec.Network != "" {
		hostCfg.NetworkMode = container.NetworkMode(spec.Network)
	}

	created, err := c.inner.ContainerCreate(ctx, cfg, hostCfg, nil, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("create worker container: %w", err)
	}
	if err := c.inner.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("start worker container: %w", err)
	}
	return created.ID, nil
}
