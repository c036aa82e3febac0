// Host-side step coordinator: the single authority over the console.
package runner

import (
	"context"
	"fmt"
	"sync"

	"scriptquest/internal/emu"
	"scriptquest/internal/logging"
	"scriptquest/internal/state"
)

// Coordinator owns the console. Every simulation mutation goes through it,
// one step at a time; no caller may advance a tick while another step is in
// flight. Input state it has applied is tracked so teardown can release it.
type Coordinator struct {
	console emu.Console
	reader  *state.Reader
	player  int

	mu   sync.Mutex
	held map[string]bool
}

// NewCoordinator returns a coordinator driving player 0 of the console.
func NewCoordinator(console emu.Console, reader *state.Reader) *Coordinator {
	return &Coordinator{
		console: console,
		reader:  reader,
		held:    make(map[string]bool),
	}
}

// HandleStep applies the request's input actions in order, advances exactly
// one tick, and returns the new tick number plus a full named snapshot.
func (c *Coordinator) HandleStep(req StepRequest) StepResponse {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, a := range req.Actions {
		switch a.Kind {
		case ActionPress:
			if err := c.console.ApplyInput(c.player, a.Button, true); err != nil {
				return StepResponse{Seq: req.Seq, Err: err.Error()}
			}
			c.held[a.Button] = true
		case ActionRelease:
			if err := c.console.ApplyInput(c.player, a.Button, false); err != nil {
				return StepResponse{Seq: req.Seq, Err: err.Error()}
			}
			delete(c.held, a.Button)
		case ActionReleaseAll:
			c.releaseHeldLocked()
		default:
			return StepResponse{Seq: req.Seq, Err: fmt.Sprintf("unknown input action %q", a.Kind)}
		}
	}

	if err := c.console.AdvanceOneTick(); err != nil {
		return StepResponse{Seq: req.Seq, Err: fmt.Sprintf("advancing tick: %v", err)}
	}
	return StepResponse{
		Seq:      req.Seq,
		Tick:     c.console.CurrentTick(),
		Snapshot: c.snapshotLocked(),
	}
}

// HandleState returns the current snapshot without advancing a tick. It is
// used once per session to seed the sandbox's initial observable state.
func (c *Coordinator) HandleState() StepResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	return StepResponse{
		Tick:     c.console.CurrentTick(),
		Snapshot: c.snapshotLocked(),
	}
}

// snapshotLocked reads all named variables, degrading to an empty snapshot
// when no table is loaded so a run stays attemptable with imperfect mapping.
func (c *Coordinator) snapshotLocked() state.Snapshot {
	snap, err := c.reader.ReadAll()
	if err != nil {
		return state.Snapshot{}
	}
	return snap
}

// ReleaseAllInputs clears every button the coordinator has applied. Called
// on session teardown so no input stays logically pressed across sessions.
func (c *Coordinator) ReleaseAllInputs() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseHeldLocked()
}

func (c *Coordinator) releaseHeldLocked() {
	for b := range c.held {
		_ = c.console.ApplyInput(c.player, b, false)
	}
	c.held = make(map[string]bool)
}

// Serve consumes step requests from the link until ctx is done. It is the
// single consumer: requests are handled strictly in arrival order and each
// response is delivered before the next request is read. Sequence numbers
// are verified on the host side too; a gap is answered with a protocol
// violation instead of advancing the console.
func (c *Coordinator) Serve(ctx context.Context, link *stepLink, onStep func(tick uint64, snap state.Snapshot)) {
	log := logging.FromContext(ctx)
	var expected uint64
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-link.requests:
			expected++
			var resp StepResponse
			if req.Seq != expected {
				log.Error("step request out of sequence", "got", req.Seq, "expected", expected)
				resp = StepResponse{
					Seq: req.Seq,
					Err: fmt.Sprintf("%v: request %d, expected %d", ErrProtocolViolation, req.Seq, expected),
				}
			} else {
				resp = c.HandleStep(req)
			}
			if resp.Err == "" && onStep != nil {
				onStep(resp.Tick, resp.Snapshot)
			}
			select {
			case link.responses <- resp:
			case <-ctx.Done():
				return
			}
		}
	}
}
