package build

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"
)

// AuthCloneURL embeds an access token into an https clone URL. The token
// exists only in memory; any error text derived from the URL must pass
// through Scrub before it is logged or published.
func AuthCloneURL(repoURL, token string) (string, error) {
	if strings.TrimSpace(repoURL) == "" {
		return "", fmt.Errorf("repository URL cannot be empty")
	}
	if token == "" {
		return repoURL, nil
	}
	parsed, err := url.Parse(repoURL)
	if err != nil {
		return "", fmt.Errorf("parse repository URL: %w", err)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return "", fmt.Errorf("token auth requires an http(s) repository URL")
	}
	parsed.User = url.UserPassword("x-access-token", token)
	return parsed.String(), nil
}

// Scrub removes credential material from text before it can reach persisted
// logs.
func Scrub(text string, secrets ...string) string {
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		text = strings.ReplaceAll(text, secret, "[redacted]")
		if escaped := url.QueryEscape(secret); escaped != secret {
			text = strings.ReplaceAll(text, escaped, "[redacted]")
		}
	}
	return text
}

// Clone performs a shallow clone of the repository into dest.
func Clone(ctx context.Context, cloneURL, branch, dest string) error {
	if dest == "" {
		return fmt.Errorf("destination cannot be empty")
	}
	args := []string{"clone", "--depth", "1"}
	if branch != "" {
		args = append(args, "--branch", branch)
	}
	args = append(args, cloneURL, ".")
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dest
	// Prevent git from prompting for credentials interactively.
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git clone failed: %w: %s", err, string(output))
	}
	return nil
}
