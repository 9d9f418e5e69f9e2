package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/alanz/org-node/internal/config"
	"github.com/alanz/org-node/internal/coordinator"
	"github.com/alanz/org-node/internal/debug"
	"github.com/alanz/org-node/internal/index"
	"github.com/alanz/org-node/internal/mcp"
	"github.com/alanz/org-node/internal/scan"
	"github.com/alanz/org-node/internal/types"
	"github.com/alanz/org-node/internal/version"
	"github.com/alanz/org-node/internal/watch"
)

func main() {
	app := &cli.App{
		Name:                   "org-node",
		Usage:                  "Index an org corpus: nodes, links, refs, backlinks",
		Version:                version.Version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Corpus root directory (overrides config)",
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "Number of scan workers (overrides config)",
			},
			&cli.BoolFlag{
				Name:  "inline",
				Usage: "Scan in-process instead of spawning worker processes",
			},
		},
		Before: func(c *cli.Context) error {
			// Debug output goes to a temp-dir log file so MCP stdio and
			// command output stay clean.
			if debug.IsDebugEnabled() {
				if path, err := debug.InitDebugLogFile(); err == nil {
					fmt.Fprintf(os.Stderr, "debug log: %s\n", path)
				}
			}
			return nil
		},
		After: func(c *cli.Context) error {
			return debug.CloseDebugLog()
		},
		Commands: []*cli.Command{
			{
				Name:    "scan",
				Aliases: []string{"s"},
				Usage:   "Run a full scan and print index statistics",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "json",
						Aliases: []string{"j"},
						Usage:   "Output as JSON",
					},
				},
				Action: scanCommand,
			},
			{
				Name:      "query",
				Aliases:   []string{"q"},
				Usage:     "Scan, then resolve a node by id or title and print it",
				ArgsUsage: "<id-or-title>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "backlinks",
						Aliases: []string{"b"},
						Usage:   "Also print links pointing at the node",
					},
				},
				Action: queryCommand,
			},
			{
				Name:    "status",
				Aliases: []string{"st"},
				Usage:   "Show what a scan would cover without building the index",
				Action:  statusCommand,
			},
			{
				Name:   "watch",
				Usage:  "Scan, then keep the index current as files change",
				Action: watchCommand,
			},
			{
				Name:   "mcp",
				Usage:  "Start MCP (Model Context Protocol) server with stdio transport",
				Action: mcpCommand,
			},
			{
				// Spawned by the process pool; reads one JSON job from
				// stdin and writes one JSON result to stdout.
				Name:   coordinator.WorkerCommand,
				Hidden: true,
				Action: workerCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfigWithOverrides loads configuration and applies CLI flag overrides.
func loadConfigWithOverrides(c *cli.Context) (*config.Config, error) {
	root := c.String("root")
	if root == "" {
		root = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path %q: %w", root, err)
	}

	cfg, err := config.Load(absRoot)
	if err != nil {
		return nil, err
	}
	if w := c.Int("workers"); w > 0 {
		cfg.Pool.Workers = w
	}
	if c.Bool("inline") {
		cfg.Pool.Inline = true
	}
	return cfg, nil
}

// setup builds the store and coordinator for commands that need an index.
func setup(c *cli.Context) (*config.Config, *index.Store, coordinator.Coordinator, error) {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return nil, nil, nil, err
	}
	store := index.NewStore()

	var pool coordinator.Pool
	if cfg.Pool.Inline || cfg.EffectiveWorkers() == 1 {
		pool = coordinator.InlinePool{}
	} else {
		pool = &coordinator.ProcessPool{}
	}
	return cfg, store, coordinator.NewCoordinator(cfg, store, pool), nil
}

func fullScan(ctx context.Context, coord coordinator.Coordinator) error {
	coord.RequestFullScan()
	return coord.ScanAndWait(ctx)
}

func scanCommand(c *cli.Context) error {
	_, store, coord, err := setup(c)
	if err != nil {
		return err
	}
	defer coord.Close()

	start := time.Now()
	if err := fullScan(c.Context, coord); err != nil {
		return err
	}
	stats := store.Stats()

	if c.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Stats   index.Stats `json:"stats"`
			Elapsed string      `json:"elapsed"`
		}{stats, time.Since(start).Round(time.Millisecond).String()})
	}

	fmt.Printf("Scanned %d files in %v\n", stats.Files, time.Since(start).Round(time.Millisecond))
	fmt.Printf("  nodes:      %d\n", stats.Nodes)
	fmt.Printf("  links:      %d\n", stats.Links)
	fmt.Printf("  titles:     %d\n", stats.Titles)
	fmt.Printf("  refs:       %d\n", stats.Refs)
	if stats.Problems > 0 {
		fmt.Printf("  problems:   %d\n", stats.Problems)
		for _, p := range store.Problems() {
			fmt.Printf("    %s:%d: %s\n", p.File, p.Pos, p.Message)
		}
	}
	if stats.Collisions > 0 {
		fmt.Printf("  collisions: %d\n", stats.Collisions)
		for _, col := range store.Collisions() {
			fmt.Printf("    %q claimed by %s over %s\n", col.Name, col.Winner, col.Loser)
		}
	}
	return nil
}

func queryCommand(c *cli.Context) error {
	if c.NArg() < 1 {
		return errors.New("usage: org-node query <id-or-title>")
	}
	key := c.Args().First()

	_, store, coord, err := setup(c)
	if err != nil {
		return err
	}
	defer coord.Close()

	if err := fullScan(c.Context, coord); err != nil {
		return err
	}

	node, ok := store.NodeByID(types.NodeID(key))
	if !ok {
		if id, found := store.IDByTitle(key); found {
			node, ok = store.NodeByID(id)
		}
	}
	if !ok {
		matches := store.ResolveTitleFuzzy(key, 5, 0.75)
		if len(matches) == 0 {
			return fmt.Errorf("no node matches %q", key)
		}
		fmt.Printf("No exact match for %q. Close titles:\n", key)
		for _, m := range matches {
			fmt.Printf("  %-40q %s\n", m.Title, m.ID)
		}
		return nil
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(node); err != nil {
		return err
	}

	if c.Bool("backlinks") {
		for _, l := range store.LinksTo(string(node.ID)) {
			origin := string(l.Origin)
			if n, ok := store.NodeByID(l.Origin); ok {
				origin = fmt.Sprintf("%s (%s:%d)", n.Title, n.File, l.Pos)
			}
			fmt.Printf("  <- %s\n", origin)
		}
	}
	return nil
}

func statusCommand(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	files, err := scan.Discover(cfg.Root, &cfg.Scan)
	if err != nil {
		return err
	}
	fmt.Printf("%s\n", version.FullInfo())
	fmt.Printf("Root:    %s\n", cfg.Root)
	fmt.Printf("Files:   %d eligible\n", len(files))
	fmt.Printf("Workers: %d", cfg.EffectiveWorkers())
	if cfg.Pool.Inline {
		fmt.Printf(" (inline)")
	}
	fmt.Println()
	return nil
}

func watchCommand(c *cli.Context) error {
	cfg, store, coord, err := setup(c)
	if err != nil {
		return err
	}
	defer coord.Close()

	ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := fullScan(ctx, coord); err != nil {
		return err
	}
	stats := store.Stats()
	fmt.Printf("Indexed %d nodes across %d files; watching %s\n", stats.Nodes, stats.Files, cfg.Root)

	w, err := watch.New(cfg, store, coord)
	if err != nil {
		return err
	}
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func mcpCommand(c *cli.Context) error {
	debug.SetMCPMode(true)

	cfg, store, coord, err := setup(c)
	if err != nil {
		return err
	}
	defer coord.Close()

	ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Build the index up front so the first tool call answers from a warm
	// store. Clients can still force rescans through the rescan tool.
	if err := fullScan(ctx, coord); err != nil {
		return err
	}

	if cfg.Watch.Enabled {
		w, err := watch.New(cfg, store, coord)
		if err != nil {
			return err
		}
		go func() {
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				debug.LogWatch("watcher stopped: %v", err)
			}
		}()
	}

	return mcp.NewServer(store, coord).Run(ctx)
}

func workerCommand(c *cli.Context) error {
	return coordinator.RunWorker(c.Context, os.Stdin, os.Stdout)
}
