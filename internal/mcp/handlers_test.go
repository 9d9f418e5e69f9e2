package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanz/org-node/internal/config"
	"github.com/alanz/org-node/internal/coordinator"
	"github.com/alanz/org-node/internal/index"
	"github.com/alanz/org-node/internal/types"
)

func callRequest(t *testing.T, name string, params map[string]any) *mcp.CallToolRequest {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	return &mcp.CallToolRequest{
		Params: &mcp.CallToolParamsRaw{Name: name, Arguments: raw},
	}
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

// testServer indexes a tiny corpus through a real coordinator so the tool
// handlers run against live tables.
func testServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()

	content := "* Alpha Topic\n" +
		":PROPERTIES:\n" +
		":ID: alpha\n" +
		`:ROAM_ALIASES: "First Letter"` + "\n" +
		":END:\n" +
		"points at [[id:beta][Beta]]\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.org"), []byte(content), 0o644))

	content = "* Beta Topic\n:PROPERTIES:\n:ID: beta\n:END:\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.org"), []byte(content), 0o644))

	cfg := config.Default(dir)
	cfg.Pool.RetryInterval = 10 * time.Millisecond
	store := index.NewStore()
	coord := coordinator.NewCoordinator(cfg, store, coordinator.InlinePool{})
	t.Cleanup(func() { _ = coord.Close() })

	coord.RequestFullScan()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, coord.ScanAndWait(ctx))

	return NewServer(store, coord), dir
}

func TestHandleNodeByID(t *testing.T) {
	s, _ := testServer(t)

	res, err := s.handleNodeByID(context.Background(), callRequest(t, "node_by_id", map[string]any{"id": "alpha"}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	var node types.Node
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &node))
	assert.Equal(t, types.NodeID("alpha"), node.ID)
	assert.Equal(t, "Alpha Topic", node.Title)

	res, err = s.handleNodeByID(context.Background(), callRequest(t, "node_by_id", map[string]any{"id": "nope"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestHandleNodeByTitle(t *testing.T) {
	s, _ := testServer(t)

	// Exact match, via alias, case-insensitive.
	res, err := s.handleNodeByTitle(context.Background(), callRequest(t, "node_by_title", map[string]any{"title": "first letter"}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	var exact struct {
		Exact bool       `json:"exact"`
		Node  types.Node `json:"node"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &exact))
	assert.True(t, exact.Exact)
	assert.Equal(t, types.NodeID("alpha"), exact.Node.ID)

	// Near miss falls back to fuzzy candidates.
	res, err = s.handleNodeByTitle(context.Background(), callRequest(t, "node_by_title", map[string]any{"title": "Alpha Topic!"}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	var fuzzy struct {
		Exact      bool               `json:"exact"`
		Candidates []index.TitleMatch `json:"candidates"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &fuzzy))
	assert.False(t, fuzzy.Exact)
	require.NotEmpty(t, fuzzy.Candidates)
	assert.Equal(t, types.NodeID("alpha"), fuzzy.Candidates[0].ID)
}

func TestHandleBacklinks(t *testing.T) {
	s, _ := testServer(t)

	res, err := s.handleBacklinks(context.Background(), callRequest(t, "backlinks", map[string]any{"dest": "beta"}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	var out []struct {
		Link   types.Link  `json:"link"`
		Origin *types.Node `json:"origin"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &out))
	require.Len(t, out, 1)
	assert.Equal(t, types.NodeID("alpha"), out[0].Link.Origin)
	require.NotNil(t, out[0].Origin)
	assert.Equal(t, "Alpha Topic", out[0].Origin.Title)
}

func TestHandleListFilesAndProblems(t *testing.T) {
	s, dir := testServer(t)

	res, err := s.handleListFiles(context.Background(), callRequest(t, "list_files", nil))
	require.NoError(t, err)

	var files struct {
		Stats    index.Stats      `json:"stats"`
		LastScan time.Time        `json:"last_scan"`
		Files    []types.FileInfo `json:"files"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &files))
	assert.Equal(t, 2, files.Stats.Files)
	assert.False(t, files.LastScan.IsZero())
	require.Len(t, files.Files, 2)
	assert.Equal(t, filepath.Join(dir, "a.org"), files.Files[0].Path)

	res, err = s.handleScanProblems(context.Background(), callRequest(t, "scan_problems", nil))
	require.NoError(t, err)
	var probs struct {
		Problems   []types.Problem   `json:"problems"`
		Collisions []index.Collision `json:"collisions"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &probs))
	assert.Empty(t, probs.Problems)
}

func TestHandleRescan(t *testing.T) {
	s, dir := testServer(t)

	// New file appears, targeted rescan picks it up.
	content := "* Gamma Topic\n:PROPERTIES:\n:ID: gamma\n:END:\n"
	path := filepath.Join(dir, "c.org")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	res, err := s.handleRescan(context.Background(), callRequest(t, "rescan", map[string]any{"files": []string{path}}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	var out struct {
		Status string      `json:"status"`
		Stats  index.Stats `json:"stats"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &out))
	assert.Equal(t, "done", out.Status)
	assert.Equal(t, 3, out.Stats.Nodes)

	_, ok := s.store.NodeByID("gamma")
	assert.True(t, ok)
}
