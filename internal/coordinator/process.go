package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"

	"golang.org/x/sync/errgroup"

	"github.com/alanz/org-node/internal/config"
	"github.com/alanz/org-node/internal/debug"
	"github.com/alanz/org-node/internal/orgerrors"
	"github.com/alanz/org-node/internal/types"
	"github.com/alanz/org-node/internal/version"
)

// workerRequest is the job sent to a worker process on stdin. The scan
// configuration travels with the request so workers never read config
// files themselves.
type workerRequest struct {
	BuildID string            `json:"coordinator_build"`
	Config  config.ScanConfig `json:"config"`
	Files   []string          `json:"files"`
}

// workerResponse is the worker's single reply on stdout. The worker stamps
// its own build fingerprint; the coordinator refuses results from a binary
// that does not match its own.
type workerResponse struct {
	BuildID string            `json:"worker_build"`
	Result  *types.ScanResult `json:"result,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// ProcessPool runs each batch in a separate OS process: the same binary
// re-invoked with the hidden worker command, jobs and results exchanged as
// JSON over stdin/stdout. Cancelling the context kills every worker.
type ProcessPool struct {
	// Binary overrides the executable to spawn. Empty means self.
	Binary string
	// ExtraArgs are inserted before the worker command, for test harnesses.
	ExtraArgs []string
}

// WorkerCommand is the hidden CLI command workers are spawned with.
const WorkerCommand = "worker"

// Scan implements Pool.
func (p *ProcessPool) Scan(ctx context.Context, batches [][]string, cfg *config.ScanConfig) ([]*types.ScanResult, error) {
	binary := p.Binary
	if binary == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, orgerrors.NewWorkerError(0, "locate binary", err)
		}
		binary = self
	}

	results := make([]*types.ScanResult, len(batches))

	g, ctx := errgroup.WithContext(ctx)
	for i, batch := range batches {
		g.Go(func() error {
			res, err := p.runWorker(ctx, binary, i, batch, cfg)
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

func (p *ProcessPool) runWorker(ctx context.Context, binary string, id int, files []string, cfg *config.ScanConfig) (*types.ScanResult, error) {
	args := append(append([]string(nil), p.ExtraArgs...), WorkerCommand)
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, orgerrors.NewWorkerError(id, "open stdin", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, orgerrors.NewWorkerError(id, "open stdout", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, orgerrors.NewWorkerError(id, "start", err)
	}
	debug.LogCoordinator("worker %d started: pid %d, %d files", id, cmd.Process.Pid, len(files))

	req := workerRequest{BuildID: version.BuildID(), Config: *cfg, Files: files}
	if err := json.NewEncoder(stdin).Encode(&req); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, orgerrors.NewWorkerError(id, "send job", err)
	}
	_ = stdin.Close()

	var resp workerResponse
	decodeErr := json.NewDecoder(stdout).Decode(&resp)
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return nil, orgerrors.NewWorkerError(id, "scan", ctx.Err())
	}
	if decodeErr != nil {
		return nil, orgerrors.NewWorkerError(id, "read result", decodeErr)
	}
	if waitErr != nil {
		return nil, orgerrors.NewWorkerError(id, "exit", waitErr)
	}
	if resp.BuildID != version.BuildID() {
		return nil, orgerrors.NewWorkerError(id, "verify build",
			fmt.Errorf("worker build %q does not match coordinator build %q", resp.BuildID, version.BuildID()))
	}
	if resp.Error != "" {
		return nil, orgerrors.NewWorkerError(id, "scan", fmt.Errorf("%s", resp.Error))
	}
	if resp.Result == nil {
		return nil, orgerrors.NewWorkerError(id, "read result", fmt.Errorf("empty response"))
	}
	debug.LogCoordinator("worker %d done: %d nodes, %d missing", id, len(resp.Result.Nodes), len(resp.Result.Missing))
	return resp.Result, nil
}

// RunWorker is the worker-side entry point: read one job from in, scan it,
// write one response to out. Called by the hidden worker CLI command.
func RunWorker(ctx context.Context, in io.Reader, out io.Writer) error {
	var req workerRequest
	if err := json.NewDecoder(in).Decode(&req); err != nil {
		return orgerrors.NewScanError("decode job", err)
	}

	resp := workerResponse{BuildID: version.BuildID()}
	res, err := scanBatch(ctx, req.Files, &req.Config)
	if err != nil {
		resp.Error = err.Error()
	} else {
		resp.Result = res
	}
	return json.NewEncoder(out).Encode(&resp)
}
