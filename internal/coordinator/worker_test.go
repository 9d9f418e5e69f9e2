package coordinator

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanz/org-node/internal/config"
	"github.com/alanz/org-node/internal/types"
	"github.com/alanz/org-node/internal/version"
)

func TestRunWorker_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := writeOrg(t, dir, "a.org", "node-a")
	gone := filepath.Join(dir, "gone.org")

	req := workerRequest{
		Config: config.Default(dir).Scan,
		Files:  []string{path, gone},
	}
	var in bytes.Buffer
	require.NoError(t, json.NewEncoder(&in).Encode(&req))

	var out bytes.Buffer
	require.NoError(t, RunWorker(context.Background(), &in, &out))

	var resp workerResponse
	require.NoError(t, json.NewDecoder(&out).Decode(&resp))
	require.Empty(t, resp.Error)
	require.NotNil(t, resp.Result)
	assert.Equal(t, version.BuildID(), resp.BuildID)

	res := resp.Result
	assert.False(t, res.CompletedAt.IsZero())
	require.Len(t, res.Nodes, 1)
	assert.Equal(t, types.NodeID("node-a"), res.Nodes[0].ID)
	assert.Equal(t, []string{gone}, res.Missing)
	require.Len(t, res.Files, 1)
	assert.Equal(t, path, res.Files[0].Path)
}

func TestRunWorker_BadInput(t *testing.T) {
	var out bytes.Buffer
	err := RunWorker(context.Background(), bytes.NewBufferString("not json"), &out)
	assert.Error(t, err)
}

func TestInlinePool_ScanAllBatches(t *testing.T) {
	dir := t.TempDir()
	a := writeOrg(t, dir, "a.org", "node-a")
	b := writeOrg(t, dir, "b.org", "node-b")
	c := writeOrg(t, dir, "c.org", "node-c")

	cfg := config.Default(dir)
	results, err := InlinePool{}.Scan(context.Background(), [][]string{{a, b}, {c}}, &cfg.Scan)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Len(t, results[0].Nodes, 2)
	assert.Len(t, results[1].Nodes, 1)
	for _, res := range results {
		assert.False(t, res.CompletedAt.IsZero())
	}
}

func TestInlinePool_Cancelled(t *testing.T) {
	dir := t.TempDir()
	a := writeOrg(t, dir, "a.org", "node-a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := InlinePool{}.Scan(ctx, [][]string{{a}}, &config.Default(dir).Scan)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcessPool_RejectsMismatchedBuild(t *testing.T) {
	if _, err := os.Stat("/bin/cat"); err != nil {
		t.Skip("/bin/cat not available")
	}
	// The shim echoes the request back regardless of the appended worker
	// command argument; it decodes as a response carrying no worker build
	// fingerprint, which must be rejected.
	shim := filepath.Join(t.TempDir(), "echo-worker")
	require.NoError(t, os.WriteFile(shim, []byte("#!/bin/sh\nexec cat\n"), 0o755))
	pool := &ProcessPool{Binary: shim}
	cfg := config.Default(t.TempDir())
	_, err := pool.Scan(context.Background(), [][]string{{"/tmp/x.org"}}, &cfg.Scan)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "build")
}

func TestProcessPool_WorkerFailureSurfaces(t *testing.T) {
	if _, err := os.Stat("/bin/false"); err != nil {
		t.Skip("/bin/false not available")
	}
	pool := &ProcessPool{Binary: "/bin/false"}
	cfg := config.Default(t.TempDir())
	_, err := pool.Scan(context.Background(), [][]string{{"/tmp/x.org"}}, &cfg.Scan)
	assert.Error(t, err)
}
