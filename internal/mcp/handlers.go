package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/alanz/org-node/internal/debug"
	"github.com/alanz/org-node/internal/index"
	"github.com/alanz/org-node/internal/types"
)

// jsonResult wraps a payload as a single text content block. Errors are
// returned as tool errors so the client can distinguish them from empty
// results.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil
}

func errorResult(format string, args ...any) (*mcp.CallToolResult, error) {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
	}, nil
}

func (s *Server) handleNodeByID(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return errorResult("invalid arguments: %v", err)
	}
	node, ok := s.store.NodeByID(types.NodeID(params.ID))
	if !ok {
		return errorResult("no node with id %q", params.ID)
	}
	return jsonResult(node)
}

func (s *Server) handleNodeByTitle(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		Title string `json:"title"`
		Limit int    `json:"limit"`
	}
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return errorResult("invalid arguments: %v", err)
	}
	if params.Limit <= 0 {
		params.Limit = 5
	}

	if id, ok := s.store.IDByTitle(params.Title); ok {
		if node, ok := s.store.NodeByID(id); ok {
			return jsonResult(struct {
				Exact bool       `json:"exact"`
				Node  types.Node `json:"node"`
			}{Exact: true, Node: node})
		}
	}

	matches := s.store.ResolveTitleFuzzy(params.Title, params.Limit, 0.75)
	if len(matches) == 0 {
		return errorResult("no node titled %q and no close matches", params.Title)
	}
	return jsonResult(struct {
		Exact      bool               `json:"exact"`
		Candidates []index.TitleMatch `json:"candidates"`
	}{Exact: false, Candidates: matches})
}

func (s *Server) handleBacklinks(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		Dest string `json:"dest"`
	}
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return errorResult("invalid arguments: %v", err)
	}

	links := s.store.LinksTo(params.Dest)
	type backlink struct {
		Link   types.Link  `json:"link"`
		Origin *types.Node `json:"origin,omitempty"`
	}
	out := make([]backlink, 0, len(links))
	for _, l := range links {
		bl := backlink{Link: l}
		if n, ok := s.store.NodeByID(l.Origin); ok {
			bl.Origin = &n
		}
		out = append(out, bl)
	}
	return jsonResult(out)
}

func (s *Server) handleListFiles(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(struct {
		Stats    index.Stats      `json:"stats"`
		LastScan time.Time        `json:"last_scan"`
		Files    []types.FileInfo `json:"files"`
	}{Stats: s.store.Stats(), LastScan: s.store.LastScan(), Files: s.store.Files()})
}

func (s *Server) handleScanProblems(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(struct {
		Problems   []types.Problem   `json:"problems"`
		Collisions []index.Collision `json:"collisions"`
	}{Problems: s.store.Problems(), Collisions: s.store.Collisions()})
}

func (s *Server) handleRescan(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		Files []string `json:"files"`
		Wait  *bool    `json:"wait"`
	}
	if len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
			return errorResult("invalid arguments: %v", err)
		}
	}

	if len(params.Files) == 0 {
		debug.LogMCP("rescan requested: full corpus")
		s.coord.RequestFullScan()
	} else {
		debug.LogMCP("rescan requested: %d files", len(params.Files))
		s.coord.RequestTargetedScan(params.Files)
	}

	if params.Wait != nil && !*params.Wait {
		return jsonResult(map[string]string{"status": "queued"})
	}

	start := time.Now()
	if err := s.coord.ScanAndWait(ctx); err != nil {
		return errorResult("scan did not complete: %v", err)
	}
	return jsonResult(struct {
		Status  string      `json:"status"`
		Elapsed string      `json:"elapsed"`
		Stats   index.Stats `json:"stats"`
	}{Status: "done", Elapsed: time.Since(start).Round(time.Millisecond).String(), Stats: s.store.Stats()})
}
