package scan

import (
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/alanz/org-node/internal/config"
)

// Discover walks the corpus root and returns the absolute paths of every
// file eligible for scanning: correctly suffixed, not a symlink, and not
// matched by an exclude glob. Paths come back sorted for deterministic
// partitioning.
func Discover(root string, cfg *config.ScanConfig) ([]string, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped, not fatal; the scanner
			// reports individual unreadable files as missing.
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			// Test a representative child path so directory patterns like
			// "**/archive/**" prune the whole subtree.
			if path != root && excluded(rel+"/x", cfg.ExcludeGlobs) {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if !hasSuffix(path, cfg.Suffixes) {
			return nil
		}
		if excluded(rel, cfg.ExcludeGlobs) {
			return nil
		}

		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// Eligible reports whether a single path would be picked up by Discover.
// Used by the watcher to filter events without re-walking the tree.
func Eligible(root, path string, cfg *config.ScanConfig) bool {
	if !hasSuffix(path, cfg.Suffixes) {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	return !excluded(filepath.ToSlash(rel), cfg.ExcludeGlobs)
}

func excluded(rel string, globs []string) bool {
	for _, pattern := range globs {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}
