package scan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanz/org-node/internal/config"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(":ID: x\n"), 0o644))
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "b.org"))
	writeFile(t, filepath.Join(dir, "a.org"))
	writeFile(t, filepath.Join(dir, "sub", "c.org"))
	writeFile(t, filepath.Join(dir, "notes.txt"))
	writeFile(t, filepath.Join(dir, ".hidden", "d.org"))
	writeFile(t, filepath.Join(dir, "ltximg", "e.org"))
	require.NoError(t, os.Symlink(filepath.Join(dir, "a.org"), filepath.Join(dir, "s.org")))

	cfg := &config.ScanConfig{
		Suffixes:     []string{".org"},
		ExcludeGlobs: []string{"**/.*/**", "**/ltximg/**"},
	}

	files, err := Discover(dir, cfg)
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(dir, "a.org"),
		filepath.Join(dir, "b.org"),
		filepath.Join(dir, "sub", "c.org"),
	}, files)
}

func TestEligible(t *testing.T) {
	cfg := &config.ScanConfig{
		Suffixes:     []string{".org"},
		ExcludeGlobs: []string{"**/.*/**", "**/archive/**"},
	}
	root := "/corpus"

	tests := []struct {
		path string
		want bool
	}{
		{"/corpus/a.org", true},
		{"/corpus/sub/b.org", true},
		{"/corpus/notes.txt", false},
		{"/corpus/.git/c.org", false},
		{"/corpus/archive/old.org", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, Eligible(root, tt.path, cfg))
		})
	}
}
