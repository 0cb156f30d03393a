// Package testutil provides shared fixtures for planner/executor package tests.
package testutil

import (
	"os"
	"testing"

	"github.com/outfit-dev/outfit/internal/config"
	"github.com/outfit-dev/outfit/internal/recipe"
)

// TempDir creates a temporary directory and returns a cleanup function.
func TempDir(t *testing.T) (string, func()) {
	t.Helper()
	dir, err := os.MkdirTemp("", "outfit-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	return dir, func() { os.RemoveAll(dir) }
}

// NewTestConfig creates a config rooted at a temporary directory, with every
// directory it names already created.
func NewTestConfig(t *testing.T) (*config.Config, func()) {
	t.Helper()
	tmpDir, cleanup := TempDir(t)

	t.Setenv(config.EnvHome, tmpDir)
	cfg, err := config.DefaultConfig()
	if err != nil {
		cleanup()
		t.Fatalf("failed to build test config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		cleanup()
		t.Fatalf("failed to create config directories: %v", err)
	}

	return cfg, cleanup
}

// NewTestRecipe creates a minimal valid recipe with common defaults.
func NewTestRecipe(toolID string) *recipe.Recipe {
	return &recipe.Recipe{
		ToolID:   toolID,
		Label:    toolID,
		Category: "cli-tools",
		Verify: recipe.VerifySpec{
			Command: toolID + " --version",
		},
		Install: map[recipe.Method]string{
			recipe.MethodApt:  "apt-get install -y " + toolID,
			recipe.MethodBrew: "brew install " + toolID,
		},
	}
}

// NewTestRecipeWithRuntimeDeps creates a test recipe that declares the given
// runtime dependencies, for dependency-resolver tests.
func NewTestRecipeWithRuntimeDeps(toolID string, deps []string) *recipe.Recipe {
	r := NewTestRecipe(toolID)
	r.Requires.Runtime = deps
	return r
}

// FileExists reports whether a file exists at path.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// AssertFileExists fails the test if no file exists at path.
func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if !FileExists(path) {
		t.Errorf("file does not exist: %s", path)
	}
}

// AssertFileNotExists fails the test if a file exists at path.
func AssertFileNotExists(t *testing.T, path string) {
	t.Helper()
	if FileExists(path) {
		t.Errorf("file should not exist: %s", path)
	}
}
