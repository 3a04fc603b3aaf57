package build

import (
	"errors"
	"os"
	"path/filepath"
)

// ErrNoOutputDir distinguishes "the build produced nothing recognizable"
// from a failed build command.
var ErrNoOutputDir = errors.New("no output folder found after build")

// outputCandidates is the fixed priority order for build output directories.
// The first existing directory wins; there is no silent default.
var outputCandidates = []string{"build", "dist", "out", "_site", "public"}

// DetectOutputDir returns the absolute path of the build output directory
// under root, or ErrNoOutputDir when none of the candidates exist.
func DetectOutputDir(root string) (string, error) {
	for _, name := range outputCandidates {
		candidate := filepath.Join(root, name)
		info, err := os.Stat(candidate)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", err
		}
		if info.IsDir() {
			return candidate, nil
		}
	}
	return "", ErrNoOutputDir
}
