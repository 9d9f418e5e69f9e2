// Package mcp exposes the index over the Model Context Protocol so agent
// tooling can query nodes, backlinks, and scan health, and request
// rescans. The server speaks stdio; stdout is reserved for the protocol.
package mcp

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/alanz/org-node/internal/coordinator"
	"github.com/alanz/org-node/internal/debug"
	"github.com/alanz/org-node/internal/index"
	"github.com/alanz/org-node/internal/version"
)

// Server wires index queries and scan control into MCP tools.
type Server struct {
	store  *index.Store
	coord  coordinator.Coordinator
	server *mcp.Server
}

// NewServer builds the tool surface. Call Run to serve.
func NewServer(store *index.Store, coord coordinator.Coordinator) *Server {
	s := &Server{
		store: store,
		coord: coord,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "org-node",
			Version: version.Version,
		}, nil),
	}
	s.registerTools()
	return s
}

// Run serves MCP over stdio until the context ends. Debug output is
// rerouted away from stdout first; anything stray there corrupts the
// protocol stream.
func (s *Server) Run(ctx context.Context) error {
	debug.SetMCPMode(true)
	debug.LogMCP("server starting: %s", version.FullInfo())
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	s.server.AddTool(&mcp.Tool{
		Name:        "node_by_id",
		Description: "Look up a node by its unique id. Returns the node's title, file, outline path, tags, todo state, properties, aliases and refs.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"id": {Type: "string", Description: "Node id"},
			},
			Required: []string{"id"},
		},
	}, s.handleNodeByID)

	s.server.AddTool(&mcp.Tool{
		Name:        "node_by_title",
		Description: "Resolve a title or alias to a node. Exact (case-insensitive) match first, then fuzzy candidates ranked by similarity.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"title": {Type: "string", Description: "Title or alias to resolve"},
				"limit": {Type: "integer", Description: "Max fuzzy candidates (default 5)"},
			},
			Required: []string{"title"},
		},
	}, s.handleNodeByTitle)

	s.server.AddTool(&mcp.Tool{
		Name:        "backlinks",
		Description: "List every link pointing at a node id or ref, with origin node and byte position.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"dest": {Type: "string", Description: "Destination node id, ref, or @citekey"},
			},
			Required: []string{"dest"},
		},
	}, s.handleBacklinks)

	s.server.AddTool(&mcp.Tool{
		Name:        "list_files",
		Description: "List the files currently tracked by the index with modification time and scan duration.",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{},
		},
	}, s.handleListFiles)

	s.server.AddTool(&mcp.Tool{
		Name:        "scan_problems",
		Description: "Report files whose last scan failed, plus title collisions, with positions.",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{},
		},
	}, s.handleScanProblems)

	s.server.AddTool(&mcp.Tool{
		Name:        "rescan",
		Description: "Request a rescan. With no files, rescans the whole corpus; otherwise only the named files. Waits for the merge unless wait is false.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"files": {
					Type:        "array",
					Items:       &jsonschema.Schema{Type: "string"},
					Description: "Absolute paths to rescan",
				},
				"wait": {Type: "boolean", Description: "Block until the index is updated (default true)"},
			},
		},
	}, s.handleRescan)
}
