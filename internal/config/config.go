package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Config is the explicit configuration value for one org-node instance.
// It is constructed once at startup and treated as immutable afterwards;
// the Scan part is serialized verbatim to worker processes so workers never
// consult ambient state.
type Config struct {
	// Root is the corpus root directory (absolute).
	Root string

	Scan  ScanConfig
	Pool  PoolConfig
	Watch WatchConfig
}

// ScanConfig is the immutable value set handed to each worker invocation.
type ScanConfig struct {
	// Suffixes lists the file suffixes eligible for scanning.
	Suffixes []string `json:"suffixes"`

	// ExcludeGlobs are doublestar patterns; matching paths are never scanned.
	ExcludeGlobs []string `json:"exclude_globs,omitempty"`

	// TodoKeywords and TodoDoneKeywords form the default todo vocabulary.
	// A file can redefine it with #+todo: lines.
	TodoKeywords     []string `json:"todo_keywords"`
	TodoDoneKeywords []string `json:"todo_done_keywords"`

	// Encoding is the assumed text encoding. Only "utf-8" is implemented;
	// the value is carried so workers and coordinator agree explicitly.
	Encoding string `json:"encoding"`

	// LinkTypes restricts which typed links are recorded. Empty means all.
	LinkTypes []string `json:"link_types,omitempty"`

	// InheritTags controls whether ancestor and file tags flow into TagsAll.
	InheritTags bool `json:"inherit_tags"`
}

// PoolConfig controls the worker-pool coordinator.
type PoolConfig struct {
	// Workers is the worker count k. 0 means runtime.NumCPU().
	Workers int

	// Inline selects the in-process coordinator instead of worker processes.
	Inline bool

	// ScanTimeout is the hard per-cycle timeout after which live workers are
	// killed and the cycle's output discarded.
	ScanTimeout time.Duration

	// RetryInterval is the minimum interval between launch retries while a
	// request is pending.
	RetryInterval time.Duration
}

// WatchConfig controls the save watcher.
type WatchConfig struct {
	Enabled    bool
	DebounceMs int
}

// Default returns the built-in configuration rooted at dir.
func Default(dir string) *Config {
	if dir == "" {
		if cwd, err := os.Getwd(); err == nil {
			dir = cwd
		} else {
			dir = "."
		}
	}

	return &Config{
		Root: dir,
		Scan: ScanConfig{
			Suffixes:         []string{".org"},
			ExcludeGlobs:     []string{"**/.*/**", "**/ltximg/**"},
			TodoKeywords:     []string{"TODO"},
			TodoDoneKeywords: []string{"DONE"},
			Encoding:         "utf-8",
			InheritTags:      true,
		},
		Pool: PoolConfig{
			Workers:       runtime.NumCPU(),
			Inline:        false,
			ScanTimeout:   30 * time.Second,
			RetryInterval: 1 * time.Second,
		},
		Watch: WatchConfig{
			Enabled:    false,
			DebounceMs: 300,
		},
	}
}

// EffectiveWorkers returns the worker count, bounded below by 1.
func (c *Config) EffectiveWorkers() int {
	k := c.Pool.Workers
	if k <= 0 {
		k = runtime.NumCPU()
	}
	if k < 1 {
		k = 1
	}
	return k
}

// Load builds the configuration for rootDir: built-in defaults, then
// ~/.orgnode.kdl, then <rootDir>/.orgnode.kdl. Later sources override
// earlier ones field by field; exclude globs accumulate.
func Load(rootDir string) (*Config, error) {
	if rootDir != "" {
		abs, err := filepath.Abs(rootDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve root path %q: %w", rootDir, err)
		}
		rootDir = abs
	}

	cfg := Default(rootDir)

	if home, err := os.UserHomeDir(); err == nil {
		if err := applyKDLFile(cfg, filepath.Join(home, ConfigFileName)); err != nil {
			return nil, err
		}
	}
	if err := applyKDLFile(cfg, filepath.Join(cfg.Root, ConfigFileName)); err != nil {
		return nil, err
	}

	return cfg, nil
}
