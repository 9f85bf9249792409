// Package buildjob tracks the life of one remote compilation request:
// submission, status polling, and terminal resolution.
//
// The Orchestrator is the state machine behind the build command and the TUI
// build view. Presentation layers register a NotifyFunc and render snapshots;
// they own no lifecycle logic themselves.
//
// Concurrency model: each Start spawns a single goroutine that performs the
// submission and then polls strictly sequentially — the next poll is issued
// only after the previous one resolved, so at most one status request is
// outstanding at any time. Reset and Close cancel the goroutine's context and
// bump a run generation; a response that arrives after a reset can therefore
// never resurrect stale state.
package buildjob

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/forgeworks/forgectl/internal/client"
	"github.com/forgeworks/forgectl/internal/log"
)

// Polling cadence. Two fixed intervals, no backoff growth and no attempt cap:
// polling runs until a terminal status is observed or the orchestrator is
// reset. The slower interval applies after a failed poll round trip, which is
// a transport problem, not a build outcome.
const (
	// PollInterval is the delay between healthy status polls.
	PollInterval = 2 * time.Second
	// RetryInterval is the delay after a poll that failed in transport or decoding.
	RetryInterval = 5 * time.Second
)

var (
	// ErrStartFailed indicates the submission did not yield a build ID.
	// Starting a build is user-resubmittable, so there is no retry.
	ErrStartFailed = errors.New("failed to start build")

	// ErrBusy indicates a build is already starting or running.
	ErrBusy = errors.New("a build is already in progress")

	// ErrClosed indicates the orchestrator has been closed.
	ErrClosed = errors.New("orchestrator is closed")
)

// fallbackFailureReason is shown when the service reports failure without a reason.
const fallbackFailureReason = "compilation failed, check the server logs for details"

// Client is the subset of the API client the orchestrator needs.
type Client interface {
	StartBuild(ctx context.Context, debug bool, workspaceUUID string) (string, error)
	GetBuildStatus(ctx context.Context, buildID string) (*client.BuildStatus, error)
}

// Options configures one build run.
type Options struct {
	// Debug requests a debug build.
	Debug bool

	// WorkspaceUUID tags the build output with a workspace.
	// Empty means the default (untagged) group.
	WorkspaceUUID string
}

// Snapshot is an immutable view of the tracked build.
//
// Invariant: Error is populated iff State is StateFailed; Files and
// DownloadURL are populated iff State is StateCompleted. Non-terminal states
// carry neither.
type Snapshot struct {
	State       State
	BuildID     string
	Progress    string // advisory human-readable hint, no semantic weight
	Error       string
	Files       []string
	DownloadURL string
}

// NotifyFunc observes snapshots. It is called once per state transition, in
// order, and additionally when the advisory progress text changes. It runs on
// the orchestrator's polling goroutine and must not block for long.
type NotifyFunc func(Snapshot)

// Config configures an Orchestrator.
type Config struct {
	// PollInterval overrides the healthy poll cadence. Default: PollInterval.
	PollInterval time.Duration

	// RetryInterval overrides the degraded poll cadence. Default: RetryInterval.
	RetryInterval time.Duration

	// Notify receives state snapshots. Optional.
	Notify NotifyFunc
}

// Orchestrator owns the life of one build request at a time.
type Orchestrator struct {
	client        Client
	logger        log.Logger
	notify        NotifyFunc
	pollInterval  time.Duration
	retryInterval time.Duration

	// sleep is the context-aware delay between polls, injectable in tests.
	sleep func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	snap   Snapshot
	run    int // generation; bumped by Start/Reset/Close to invalidate in-flight work
	cancel context.CancelFunc
	closed bool
}

// NewOrchestrator creates an Orchestrator in StateIdle.
func NewOrchestrator(apiClient Client, cfg Config, logger log.Logger) (*Orchestrator, error) {
	if apiClient == nil {
		return nil, errors.New("buildjob.NewOrchestrator: client is required")
	}
	if logger == nil {
		return nil, errors.New("buildjob.NewOrchestrator: logger is required")
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = PollInterval
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = RetryInterval
	}
	notify := cfg.Notify
	if notify == nil {
		notify = func(Snapshot) {}
	}

	return &Orchestrator{
		client:        apiClient,
		logger:        logger,
		notify:        notify,
		pollInterval:  cfg.PollInterval,
		retryInterval: cfg.RetryInterval,
		sleep:         sleepContext,
		snap:          Snapshot{State: StateIdle},
	}, nil
}

// Snapshot returns a copy of the current build state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snap.clone()
}

// Start submits a build and begins polling for its outcome.
//
// Allowed from StateIdle and from terminal states; re-issuing a build from a
// terminal state implicitly resets first. Returns ErrBusy while a build is
// starting or running. The submission and all polls are bounded by ctx:
// cancelling it stops the run the same way Reset does.
func (o *Orchestrator) Start(ctx context.Context, opts Options) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.snap.State == StateStarting || o.snap.State == StateRunning {
		o.mu.Unlock()
		return ErrBusy
	}

	// Implicit reset: discard the previous terminal outcome.
	o.run++
	gen := o.run
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.snap = Snapshot{State: StateStarting}
	snap := o.snap.clone()
	o.mu.Unlock()

	o.notify(snap)
	o.logger.Info("starting build", "debug", opts.Debug, "workspace", opts.WorkspaceUUID)

	go o.runBuild(runCtx, gen, opts)
	return nil
}

// Reset cancels any pending poll, clears the tracked build and returns to
// StateIdle. Safe to call from any state, including mid-poll: the in-flight
// request's eventual response is discarded by the generation guard.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.run++
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.snap = Snapshot{State: StateIdle}
	snap := o.snap.clone()
	o.mu.Unlock()

	o.notify(snap)
}

// Close tears the orchestrator down. Any pending poll is cancelled and no
// further network activity originates from it. Subsequent Start calls return
// ErrClosed. Close does not notify: the observer is being discarded too.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	o.run++
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.snap = Snapshot{State: StateIdle}
}

// runBuild performs the submission and then polls to a terminal outcome.
// Runs on its own goroutine; gen identifies the run it belongs to.
func (o *Orchestrator) runBuild(ctx context.Context, gen int, opts Options) {
	buildID, err := o.client.StartBuild(ctx, opts.Debug, opts.WorkspaceUUID)
	if err != nil {
		o.logger.Error("build submission failed", "error", err)
		o.apply(gen, func(s *Snapshot) {
			*s = Snapshot{State: StateFailed, Error: ErrStartFailed.Error()}
		})
		return
	}

	if !o.apply(gen, func(s *Snapshot) {
		*s = Snapshot{State: StateRunning, BuildID: buildID}
	}) {
		return // reset happened while the submission was in flight
	}
	o.logger.Info("build accepted", "build_id", buildID)

	o.pollUntilTerminal(ctx, gen, buildID)
}

// pollUntilTerminal issues status requests until a terminal status arrives or
// the run is cancelled. Polls are strictly sequential.
func (o *Orchestrator) pollUntilTerminal(ctx context.Context, gen int, buildID string) {
	for {
		status, err := o.client.GetBuildStatus(ctx, buildID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Transport or decode failure: we failed to ask about the build,
			// which says nothing about the build itself. Stay Running.
			o.logger.Warn("status poll failed", "build_id", buildID, "error", err)
			if o.sleep(ctx, o.retryInterval) != nil {
				return
			}
			continue
		}

		switch status.Status {
		case wireStatusCompleted:
			o.logger.Info("build completed", "build_id", buildID, "files", len(status.Files))
			o.apply(gen, func(s *Snapshot) {
				*s = Snapshot{
					State:       StateCompleted,
					BuildID:     buildID,
					Progress:    status.Progress,
					Files:       slices.Clone(status.Files),
					DownloadURL: status.DownloadURL,
				}
			})
			return

		case wireStatusFailed:
			reason := status.Error
			if reason == "" {
				reason = fallbackFailureReason
			}
			o.logger.Info("build failed", "build_id", buildID, "reason", reason)
			o.apply(gen, func(s *Snapshot) {
				*s = Snapshot{State: StateFailed, BuildID: buildID, Error: reason}
			})
			return

		default:
			// Any other well-formed status is non-terminal; keep polling.
			if status.Progress != "" {
				o.apply(gen, func(s *Snapshot) {
					s.Progress = status.Progress
				})
			}
			if o.sleep(ctx, o.pollInterval) != nil {
				return
			}
		}
	}
}

// apply mutates the snapshot and notifies, unless the run generation has
// moved on (reset/close/new start), in which case the mutation is discarded.
// Returns whether the mutation was applied. The notify callback is invoked
// outside the lock; ordering is preserved because all mutations for one run
// happen on one goroutine.
func (o *Orchestrator) apply(gen int, mutate func(*Snapshot)) bool {
	o.mu.Lock()
	if o.closed || gen != o.run {
		o.mu.Unlock()
		return false
	}
	before := o.snap
	mutate(&o.snap)
	changed := o.snap.State != before.State || o.snap.Progress != before.Progress
	snap := o.snap.clone()
	o.mu.Unlock()

	if changed {
		o.notify(snap)
	}
	return true
}

// clone returns a deep copy so observers cannot alias internal state.
func (s Snapshot) clone() Snapshot {
	c := s
	c.Files = slices.Clone(s.Files)
	return c
}

// RemoteFailure formats a job-level failure for callers that want an error
// value rather than a snapshot field.
func RemoteFailure(reason string) error {
	return fmt.Errorf("build failed: %s", reason)
}

// sleepContext waits for d or until ctx is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
