// Run orchestration: status state machine and goal evaluation.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"scriptquest/internal/logging"
	"scriptquest/internal/state"
)

// Status is the externally visible run state. Transitions out of running are
// one-directional; idle is both the initial state and the state after reset.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusTimeout Status = "timeout"
	StatusError   Status = "error"
)

// DefaultSampleEvery is the goal-predicate sampling cadence in ticks. The
// final tick is always re-checked, so a goal met between samples is still
// caught, at the cost of a slightly overstated ticks-used.
const DefaultSampleEvery = 10

// ErrSessionActive is returned when a run is started or reset while another
// session is still active on the same runner.
var ErrSessionActive = errors.New("a session is already active")

// Callbacks lets the presentation layer react to run progress without
// polling. All callbacks are optional.
type Callbacks struct {
	OnLog          func(LogLine)
	OnStep         func(state.Row)
	OnStatusChange func(Status)
}

// Options describes one run.
type Options struct {
	Script      string
	ChallengeID string
	Budget      int
	SampleEvery int
	Goal        func(state.Snapshot) bool
	Writer      SnapshotWriter
	Callbacks   Callbacks
}

// RunResult is the single terminal result object every run yields.
type RunResult struct {
	SessionID     string         `json:"session_id"`
	Status        Status         `json:"status"`
	Message       string         `json:"message"`
	TicksUsed     int            `json:"ticks_used"`
	FinalSnapshot state.Snapshot `json:"final_snapshot"`
	ErrMessage    string         `json:"error,omitempty"`
	Trace         string         `json:"trace,omitempty"`
	Logs          []LogLine      `json:"logs"`
}

// Runner drives one session at a time against one coordinator. Multiple
// consoles mean multiple coordinator/runner pairs, each with independent
// state; there are no package-level singletons.
type Runner struct {
	coord *Coordinator

	mu          sync.Mutex
	status      Status
	active      bool
	stopped     bool
	cancel      context.CancelFunc
	challengeID string
	logs        []LogLine
	lastResult  *RunResult
	listener    func(Status)
}

// NewRunner returns an idle runner bound to the coordinator.
func NewRunner(coord *Coordinator) *Runner {
	return &Runner{coord: coord, status: StatusIdle}
}

// SetStatusListener installs a persistent status observer, in addition to
// any per-run callback. Intended for long-lived displays.
func (r *Runner) SetStatusListener(fn func(Status)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listener = fn
}

// Status reports the current run status.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// ChallengeID reports the challenge identity of the current or last run.
func (r *Runner) ChallengeID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.challengeID
}

// Logs returns a copy of the log lines captured so far.
func (r *Runner) Logs() []LogLine {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]LogLine, len(r.logs))
	copy(out, r.logs)
	return out
}

// LastResult returns the terminal result of the most recent run, if any.
func (r *Runner) LastResult() *RunResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastResult
}

// Run executes the script end to end and blocks until the run resolves.
// Starting a run while another is active on this runner fails fast.
func (r *Runner) Run(ctx context.Context, opts Options) (*RunResult, error) {
	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return nil, ErrSessionActive
	}
	r.active = true
	r.stopped = false
	r.challengeID = opts.ChallengeID
	r.logs = nil
	r.lastResult = nil
	r.mu.Unlock()

	if opts.SampleEvery <= 0 {
		opts.SampleEvery = DefaultSampleEvery
	}
	log := logging.FromContext(ctx)
	r.setStatus(StatusRunning, opts.Callbacks.OnStatusChange)

	runCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	defer cancel()

	link := newStepLink()
	onLog := func(line LogLine) {
		r.mu.Lock()
		r.logs = append(r.logs, line)
		r.mu.Unlock()
		if opts.Callbacks.OnLog != nil {
			opts.Callbacks.OnLog(line)
		}
	}
	sess := newSession(opts.Budget, link, onLog)
	log.Info("session starting", "session_id", sess.id, "challenge", opts.ChallengeID, "budget", opts.Budget)

	// Goal tracking shared with the serve loop. All onStep calls happen
	// before the matching response is delivered, so these are synchronized
	// with the sandbox through the response channel; no further locking.
	var (
		frame     int
		goalMet   bool
		goalFrame int
		lastSnap  state.Snapshot
	)
	onStep := func(tick uint64, snap state.Snapshot) {
		frame++
		lastSnap = snap
		if !goalMet && opts.Goal != nil && frame%opts.SampleEvery == 0 && opts.Goal(snap) {
			goalMet = true
			goalFrame = frame
		}
		row := state.Row{
			SessionID: sess.id,
			Challenge: opts.ChallengeID,
			Tick:      tick,
			Frame:     frame,
			Values:    snap,
			Timestamp: time.Now().UTC(),
		}
		if opts.Writer != nil {
			if err := opts.Writer.WriteSnapshot(row); err != nil {
				log.Error("snapshot write failed", "frame", frame, "err", err)
			}
		}
		if opts.Callbacks.OnStep != nil {
			opts.Callbacks.OnStep(row)
		}
	}

	served := make(chan struct{})
	go func() {
		defer close(served)
		r.coord.Serve(runCtx, link, onStep)
	}()

	// Seed the script's initial observable state without consuming a tick.
	initial := r.coord.HandleState()
	sess.last = initial.Snapshot
	lastSnap = initial.Snapshot

	res := runScript(runCtx, sess, opts.Script)

	// Teardown: stop the serve loop, drop anything in flight, and make sure
	// no button stays logically pressed into the next session.
	cancel()
	<-served
	r.coord.ReleaseAllInputs()

	// Final re-check against the very last snapshot, even when the sampling
	// cadence did not land on it.
	if !goalMet && opts.Goal != nil && lastSnap != nil && opts.Goal(lastSnap) {
		goalMet = true
		goalFrame = frame
	}

	r.mu.Lock()
	stopped := r.stopped
	r.mu.Unlock()

	result := &RunResult{
		SessionID:     res.SessionID,
		TicksUsed:     res.FramesUsed,
		FinalSnapshot: lastSnap,
		ErrMessage:    res.ErrMessage,
		Trace:         res.Trace,
		Logs:          res.Logs,
	}
	switch {
	case stopped:
		result.Status = StatusIdle
		result.Message = "run stopped"
		result.ErrMessage = ""
		result.Trace = ""
	case res.ProtocolViolation:
		result.Status = StatusError
		result.Message = "step protocol violation: " + res.ErrMessage
	case res.ErrMessage != "" && !res.BudgetHit:
		result.Status = StatusError
		result.Message = "script error: " + res.ErrMessage
	case goalMet:
		result.Status = StatusSuccess
		result.TicksUsed = goalFrame
		result.Message = fmt.Sprintf("goal reached after %d frames", goalFrame)
	case opts.Budget > 0 && res.FramesUsed >= opts.Budget:
		result.Status = StatusTimeout
		result.Message = fmt.Sprintf("frame budget of %d exhausted", opts.Budget)
	case res.Completed:
		result.Status = StatusFailure
		result.Message = "script completed without reaching the goal"
	default:
		result.Status = StatusError
		result.Message = "run aborted: " + res.ErrMessage
	}

	r.mu.Lock()
	r.lastResult = result
	r.active = false
	r.cancel = nil
	r.mu.Unlock()
	r.setStatus(result.Status, opts.Callbacks.OnStatusChange)
	log.Info("session resolved", "session_id", res.SessionID, "status", result.Status, "ticks_used", result.TicksUsed)
	return result, nil
}

// Stop tears down the active session, if any. The in-flight request or
// response is discarded without being delivered, held inputs are released,
// and status returns to idle.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	if r.active && cancel != nil {
		r.stopped = true
	}
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Reset returns the runner to idle after a terminal status. It fails while
// a session is active.
func (r *Runner) Reset() error {
	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return ErrSessionActive
	}
	r.lastResult = nil
	r.logs = nil
	r.challengeID = ""
	r.mu.Unlock()
	r.coord.ReleaseAllInputs()
	r.setStatus(StatusIdle, nil)
	return nil
}

func (r *Runner) setStatus(s Status, cb func(Status)) {
	r.mu.Lock()
	r.status = s
	listener := r.listener
	r.mu.Unlock()
	if listener != nil {
		listener(s)
	}
	if cb != nil {
		cb(s)
	}
}
