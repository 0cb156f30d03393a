// Package config centralizes the environment-driven knobs the install
// planner/executor core reads at startup: home directory layout, network
// timeouts, cache TTLs, and the execution engine's concurrency caps.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	// EnvHome overrides the default state/cache home directory.
	EnvHome = "OUTFIT_HOME"

	// EnvAPITimeout configures the HTTP timeout used by dynamic choice fetches.
	EnvAPITimeout = "OUTFIT_API_TIMEOUT"

	// EnvChoiceCacheTTL configures the TTL for dynamic choice option lists (§4.3).
	EnvChoiceCacheTTL = "OUTFIT_CHOICE_CACHE_TTL"

	// EnvMaxParallelSteps configures the scheduler's global concurrency cap (§4.8).
	EnvMaxParallelSteps = "OUTFIT_MAX_PARALLEL_STEPS"

	// EnvMaxParallelDownloads configures the download-category concurrency cap.
	EnvMaxParallelDownloads = "OUTFIT_MAX_PARALLEL_DOWNLOADS"

	// EnvMaxParallelBuilds configures the build-category concurrency cap.
	EnvMaxParallelBuilds = "OUTFIT_MAX_PARALLEL_BUILDS"

	// EnvSudoPromptTimeout configures how long the engine waits on a sudo_prompt response.
	EnvSudoPromptTimeout = "OUTFIT_SUDO_PROMPT_TIMEOUT"

	// EnvDrainTimeout configures max_drain_sec for cancellation (§5).
	EnvDrainTimeout = "OUTFIT_DRAIN_TIMEOUT"

	// EnvLLMSuggestions opts in to the LLM-assisted dependency name suggester (§4.6, resolver tier 3).
	EnvLLMSuggestions = "OUTFIT_LLM_SUGGESTIONS"

	// DefaultAPITimeout is the default timeout for dynamic choice fetches.
	DefaultAPITimeout = 30 * time.Second

	// DefaultChoiceCacheTTL matches the spec's default cache_ttl (§4.3).
	DefaultChoiceCacheTTL = 1 * time.Hour

	// DefaultMaxParallelSteps matches §4.8's default.
	DefaultMaxParallelSteps = 4

	// DefaultMaxParallelDownloads matches §4.8's default.
	DefaultMaxParallelDownloads = 2

	// DefaultSudoPromptTimeout bounds how long the engine waits for a password.
	DefaultSudoPromptTimeout = 2 * time.Minute

	// DefaultDrainTimeout matches §5's max_drain_sec default.
	DefaultDrainTimeout = 30 * time.Second
)

// getDuration reads an environment variable as a time.Duration, warning and
// falling back to def on parse failure or out-of-range values.
func getDuration(env string, def, min, max time.Duration) time.Duration {
	raw := os.Getenv(env)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: invalid %s value %q, using default %v\n", env, raw, def)
		return def
	}
	if d < min {
		fmt.Fprintf(os.Stderr, "Warning: %s too low (%v), using minimum %v\n", env, d, min)
		return min
	}
	if d > max {
		fmt.Fprintf(os.Stderr, "Warning: %s too high (%v), using maximum %v\n", env, d, max)
		return max
	}
	return d
}

// getInt reads an environment variable as an int, warning and falling back
// to def on parse failure or out-of-range values.
func getInt(env string, def, min, max int) int {
	raw := os.Getenv(env)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: invalid %s value %q, using default %d\n", env, raw, def)
		return def
	}
	if n < min {
		fmt.Fprintf(os.Stderr, "Warning: %s too low (%d), using minimum %d\n", env, n, min)
		return min
	}
	if n > max {
		fmt.Fprintf(os.Stderr, "Warning: %s too high (%d), using maximum %d\n", env, n, max)
		return max
	}
	return n
}

// GetAPITimeout returns the configured dynamic-choice-fetch timeout.
// Accepts duration strings like "30s", "1m". Valid range: 1s-10m.
func GetAPITimeout() time.Duration {
	return getDuration(EnvAPITimeout, DefaultAPITimeout, 1*time.Second, 10*time.Minute)
}

// GetChoiceCacheTTL returns the configured dynamic-choice cache TTL (§4.3).
// Valid range: 1m-7d.
func GetChoiceCacheTTL() time.Duration {
	return getDuration(EnvChoiceCacheTTL, DefaultChoiceCacheTTL, 1*time.Minute, 7*24*time.Hour)
}

// GetMaxParallelSteps returns the scheduler's global concurrency cap (§4.8).
// Valid range: 1-64.
func GetMaxParallelSteps() int {
	return getInt(EnvMaxParallelSteps, DefaultMaxParallelSteps, 1, 64)
}

// GetMaxParallelDownloads returns the download-category concurrency cap.
// Valid range: 1-16.
func GetMaxParallelDownloads() int {
	return getInt(EnvMaxParallelDownloads, DefaultMaxParallelDownloads, 1, 16)
}

// GetMaxParallelBuilds returns the build-category concurrency cap.
// Defaults to max(1, NumCPU/4) per §4.8.
func GetMaxParallelBuilds(numCPU int) int {
	def := numCPU / 4
	if def < 1 {
		def = 1
	}
	return getInt(EnvMaxParallelBuilds, def, 1, 32)
}

// GetSudoPromptTimeout returns how long the engine awaits a sudo_prompt response.
func GetSudoPromptTimeout() time.Duration {
	return getDuration(EnvSudoPromptTimeout, DefaultSudoPromptTimeout, 5*time.Second, 30*time.Minute)
}

// GetDrainTimeout returns max_drain_sec for cooperative cancellation (§5).
func GetDrainTimeout() time.Duration {
	return getDuration(EnvDrainTimeout, DefaultDrainTimeout, 1*time.Second, 10*time.Minute)
}

// LLMSuggestionsEnabled reports whether the opt-in LLM dependency-name
// suggester (§4.6, resolver tier 3) is enabled. Disabled unless explicitly set.
func LLMSuggestionsEnabled() bool {
	switch strings.ToLower(os.Getenv(EnvLLMSuggestions)) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}

// DefaultHomeOverride can be set by the binary's main package (via ldflags)
// to change the default home directory for dev builds. OUTFIT_HOME still
// takes precedence.
var DefaultHomeOverride string

// Config holds the on-disk layout for persisted planner state and caches.
type Config struct {
	HomeDir          string // $OUTFIT_HOME
	StateDir         string // $OUTFIT_HOME/state
	PlanStateDir     string // $OUTFIT_HOME/state/install_plans
	PlanArchiveDir   string // $OUTFIT_HOME/state/install_plans/archive
	RecipesDir       string // $OUTFIT_HOME/recipes
	CacheDir         string // $OUTFIT_HOME/cache
	ChoiceCacheDir   string // $OUTFIT_HOME/cache/choices
	DownloadCacheDir string // $OUTFIT_HOME/cache/downloads (flat artifact-by-URL directory, §1)
	KeyCacheDir      string // $OUTFIT_HOME/cache/keys (PGP public keys for repo_setup)
	BuildDir         string // $OUTFIT_HOME/build (source step build dirs)
}

// DefaultConfig returns the default configuration, honoring OUTFIT_HOME.
func DefaultConfig() (*Config, error) {
	home := os.Getenv(EnvHome)
	if home == "" {
		if DefaultHomeOverride != "" {
			home = DefaultHomeOverride
		} else {
			h, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("failed to get user home directory: %w", err)
			}
			home = filepath.Join(h, ".outfit")
		}
	}

	stateDir := filepath.Join(home, "state")
	planStateDir := filepath.Join(stateDir, "install_plans")
	cacheDir := filepath.Join(home, "cache")

	return &Config{
		HomeDir:          home,
		StateDir:         stateDir,
		PlanStateDir:     planStateDir,
		PlanArchiveDir:   filepath.Join(planStateDir, "archive"),
		RecipesDir:       filepath.Join(home, "recipes"),
		CacheDir:         cacheDir,
		ChoiceCacheDir:   filepath.Join(cacheDir, "choices"),
		DownloadCacheDir: filepath.Join(cacheDir, "downloads"),
		KeyCacheDir:      filepath.Join(cacheDir, "keys"),
		BuildDir:         filepath.Join(home, "build"),
	}, nil
}

// EnsureDirectories creates every directory this config names.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.HomeDir,
		c.StateDir,
		c.PlanStateDir,
		c.PlanArchiveDir,
		c.RecipesDir,
		c.CacheDir,
		c.ChoiceCacheDir,
		c.DownloadCacheDir,
		c.KeyCacheDir,
		c.BuildDir,
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// PlanStateFile returns the path to a tool's active plan state file (§4.9, §6).
func (c *Config) PlanStateFile(tool string) string {
	return filepath.Join(c.PlanStateDir, tool+".json")
}

// PlanArchiveFile returns the path to an archived plan state file.
func (c *Config) PlanArchiveFile(tool string, archivedAt time.Time) string {
	return filepath.Join(c.PlanArchiveDir, fmt.Sprintf("%s-%d.json", tool, archivedAt.Unix()))
}

// ArtifactPath returns the flat artifact-by-URL cache path for a download (§1 Non-goals).
func (c *Config) ArtifactPath(urlSHA256Hex string) string {
	return filepath.Join(c.DownloadCacheDir, urlSHA256Hex)
}
