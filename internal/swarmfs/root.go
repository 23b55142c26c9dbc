// Package swarmfs locates the shared project root that holds all swarm
// state files. Every other package takes the resolved root as a plain
// string; only the resolution policy lives here.
package swarmfs

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnvRoot is the environment variable that overrides root resolution.
const EnvRoot = "CLAUDESWARM_ROOT"

// markers are checked in each ancestor directory, in order. The presence
// of any one of them makes that directory the project root.
var markers = []string{
	".git",
	".claudeswarm.yaml",
	"ACTIVE_AGENTS.json",
	".agent_locks",
	"pyproject.toml",
	"package.json",
}

// Resolve determines the project root.
//
// Priority: explicit argument, then CLAUDESWARM_ROOT, then the nearest
// ancestor of the working directory containing a project marker, then the
// working directory itself. The returned path is absolute.
func Resolve(explicit string) (string, error) {
	if explicit != "" {
		abs, err := filepath.Abs(explicit)
		if err != nil {
			return "", fmt.Errorf("resolving explicit root: %w", err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return "", fmt.Errorf("explicit root: %w", err)
		}
		if !info.IsDir() {
			return "", fmt.Errorf("explicit root %s is not a directory", abs)
		}
		return abs, nil
	}

	if env := os.Getenv(EnvRoot); env != "" {
		abs, err := filepath.Abs(env)
		if err != nil {
			return "", fmt.Errorf("resolving %s: %w", EnvRoot, err)
		}
		return abs, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting working directory: %w", err)
	}

	if root, ok := findUp(cwd); ok {
		return root, nil
	}
	return cwd, nil
}

// findUp walks from dir toward the filesystem root looking for a marker.
func findUp(dir string) (string, bool) {
	for {
		for _, m := range markers {
			if _, err := os.Lstat(filepath.Join(dir, m)); err == nil {
				return dir, true
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// StateDir ensures the root exists and returns it. Used by stores before
// their first write.
func StateDir(root string) (string, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return "", fmt.Errorf("creating state directory: %w", err)
	}
	return root, nil
}
