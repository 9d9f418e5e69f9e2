package coordinator

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanz/org-node/internal/config"
	"github.com/alanz/org-node/internal/scan"
	"github.com/alanz/org-node/internal/types"
)

// Pool runs one scan cycle: each batch of files is scanned by one worker,
// and the per-worker results come back only when every worker finished.
// A failed or cancelled worker fails the whole cycle; partial results are
// never returned.
type Pool interface {
	Scan(ctx context.Context, batches [][]string, cfg *config.ScanConfig) ([]*types.ScanResult, error)
}

// InlinePool scans in-process with one goroutine per batch. It is the
// fallback when spawning workers is unavailable or disabled, and the
// default under test.
type InlinePool struct{}

// Scan implements Pool.
func (InlinePool) Scan(ctx context.Context, batches [][]string, cfg *config.ScanConfig) ([]*types.ScanResult, error) {
	results := make([]*types.ScanResult, len(batches))

	g, ctx := errgroup.WithContext(ctx)
	for i, batch := range batches {
		g.Go(func() error {
			res, err := scanBatch(ctx, batch, cfg)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// scanBatch scans one worker's file list sequentially and stamps the
// completion time. Cancellation is checked between files.
func scanBatch(ctx context.Context, files []string, cfg *config.ScanConfig) (*types.ScanResult, error) {
	res := &types.ScanResult{}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res.Add(scan.ScanFile(f, cfg))
	}
	res.CompletedAt = time.Now()
	return res, nil
}
