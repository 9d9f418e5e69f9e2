// Package coordinator schedules scan cycles: it buffers scan requests,
// partitions the corpus across a worker pool, and merges the per-worker
// results into the index exactly once per cycle. Requests arriving while a
// cycle runs are queued and coalesced; a full-corpus request subsumes any
// targeted one.
package coordinator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alanz/org-node/internal/config"
	"github.com/alanz/org-node/internal/debug"
	"github.com/alanz/org-node/internal/index"
	"github.com/alanz/org-node/internal/orgerrors"
	"github.com/alanz/org-node/internal/partition"
	"github.com/alanz/org-node/internal/scan"
	"github.com/alanz/org-node/internal/types"
)

// State is the coordinator's scheduling state.
type State int

const (
	// StateIdle means no request is queued and no cycle is running.
	StateIdle State = iota
	// StatePending means a request is queued waiting for the next cycle.
	StatePending
	// StateRunning means workers are scanning.
	StateRunning
	// StateFinalizing means worker results are being merged into the index.
	StateFinalizing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateFinalizing:
		return "finalizing"
	default:
		return "unknown"
	}
}

// Coordinator accepts scan requests and keeps the index current.
type Coordinator interface {
	// RequestFullScan queues a full-corpus rescan.
	RequestFullScan()
	// RequestTargetedScan queues a rescan of specific files. Paths of
	// deleted files are valid input; scanning them prunes their records.
	RequestTargetedScan(files []string)
	// ScanAndWait blocks until every request queued so far has been merged
	// into the index, or the context expires.
	ScanAndWait(ctx context.Context) error
	// State reports the current scheduling state.
	State() State
	// Close stops the scheduler. Pending requests are dropped.
	Close() error
}

// request is the coalesced pending work. full subsumes the file set.
type request struct {
	full  bool
	files map[string]bool
}

func (r *request) empty() bool {
	return !r.full && len(r.files) == 0
}

// DefaultCoordinator implements Coordinator with a single scheduling
// goroutine. Failed cycles are discarded and retried on a ticker until a
// cycle merges cleanly.
type DefaultCoordinator struct {
	cfg   *config.Config
	store *index.Store
	pool  Pool

	mu      sync.Mutex
	state   State
	pending request
	waiters []chan struct{}
	closed  bool

	// baseCtx parents every cycle's timeout context so Close can cut an
	// in-flight cycle short instead of waiting out the scan timeout.
	baseCtx    context.Context
	baseCancel context.CancelFunc

	kick chan struct{}
	stop chan struct{}
	done chan struct{}
}

// NewCoordinator starts the scheduling loop.
func NewCoordinator(cfg *config.Config, store *index.Store, pool Pool) *DefaultCoordinator {
	c := &DefaultCoordinator{
		cfg:     cfg,
		store:   store,
		pool:    pool,
		pending: request{files: make(map[string]bool)},
		kick:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	c.baseCtx, c.baseCancel = context.WithCancel(context.Background())
	go c.loop()
	return c
}

// RequestFullScan implements Coordinator.
func (c *DefaultCoordinator) RequestFullScan() {
	c.mu.Lock()
	c.pending.full = true
	c.pending.files = make(map[string]bool)
	if c.state == StateIdle {
		c.state = StatePending
	}
	c.mu.Unlock()
	c.wake()
}

// RequestTargetedScan implements Coordinator.
func (c *DefaultCoordinator) RequestTargetedScan(files []string) {
	if len(files) == 0 {
		return
	}
	c.mu.Lock()
	if !c.pending.full {
		for _, f := range files {
			c.pending.files[f] = true
		}
	}
	if c.state == StateIdle {
		c.state = StatePending
	}
	c.mu.Unlock()
	c.wake()
}

// ScanAndWait implements Coordinator.
func (c *DefaultCoordinator) ScanAndWait(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return orgerrors.NewScanError("wait", context.Canceled)
	}
	if c.state == StateIdle {
		c.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	c.waiters = append(c.waiters, ch)
	c.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return orgerrors.NewScanError("wait", context.Canceled)
	}
}

// State implements Coordinator.
func (c *DefaultCoordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close implements Coordinator.
func (c *DefaultCoordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	c.baseCancel()
	close(c.stop)
	<-c.done
	return nil
}

func (c *DefaultCoordinator) wake() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

func (c *DefaultCoordinator) loop() {
	defer close(c.done)

	ticker := time.NewTicker(c.cfg.Pool.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-c.kick:
		case <-ticker.C:
		}

		for {
			req, ok := c.takePending()
			if !ok {
				break
			}
			if err := c.runCycle(req); err != nil {
				debug.LogCoordinator("cycle failed, will retry: %v", err)
				c.requeue(req)
				break
			}
			select {
			case <-c.stop:
				return
			default:
			}
		}
	}
}

// takePending claims the queued request and moves to Running. Returns
// false when nothing is queued.
func (c *DefaultCoordinator) takePending() (request, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending.empty() {
		c.state = StateIdle
		return request{}, false
	}
	req := c.pending
	c.pending = request{files: make(map[string]bool)}
	c.state = StateRunning
	return req, true
}

// requeue puts a failed cycle's request back, under anything queued since.
func (c *DefaultCoordinator) requeue(req request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if req.full || c.pending.full {
		c.pending.full = true
		c.pending.files = make(map[string]bool)
	} else {
		for f := range req.files {
			c.pending.files[f] = true
		}
	}
	c.state = StatePending
}

// runCycle executes one scan cycle end to end: resolve the file list,
// partition it, run the pool under the hard timeout, merge the worker
// results, and apply them to the index.
func (c *DefaultCoordinator) runCycle(req request) error {
	var files []string
	if req.full {
		discovered, err := scan.Discover(c.cfg.Root, &c.cfg.Scan)
		if err != nil {
			return orgerrors.NewScanError("discover", err).WithFile(c.cfg.Root)
		}
		files = discovered
	} else {
		for f := range req.files {
			files = append(files, f)
		}
		sort.Strings(files)
	}

	merged := &types.ScanResult{}
	if len(files) > 0 {
		k := c.cfg.EffectiveWorkers()
		batches := partition.ByElapsed(files, k, c.store.ElapsedHistory())
		debug.LogCoordinator("cycle start: full=%v, %d files, %d workers", req.full, len(files), len(batches))

		ctx, cancel := context.WithTimeout(c.baseCtx, c.cfg.Pool.ScanTimeout)
		results, err := c.pool.Scan(ctx, batches, &c.cfg.Scan)
		cancel()
		if err != nil {
			// The whole cycle is discarded; no partial merge.
			return err
		}

		c.setState(StateFinalizing)
		for _, res := range results {
			merged.Merge(res)
		}
	} else {
		c.setState(StateFinalizing)
	}

	var err error
	if req.full {
		err = c.store.ApplyFullScan(merged)
	} else {
		err = c.store.ApplyIncrementalScan(merged)
	}
	if err != nil {
		// Consistency errors are reported but the merge already happened;
		// the cycle still counts as complete.
		debug.LogCoordinator("merge reported: %v", err)
	}

	c.finishCycle()
	return nil
}

func (c *DefaultCoordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// finishCycle settles the next state and releases waiters. Waiters are
// held back while more work is queued: their requests may be part of it.
func (c *DefaultCoordinator) finishCycle() {
	c.mu.Lock()
	var waiters []chan struct{}
	if c.pending.empty() {
		c.state = StateIdle
		waiters = c.waiters
		c.waiters = nil
	} else {
		c.state = StatePending
	}
	c.mu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}
}
