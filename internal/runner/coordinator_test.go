package runner

import (
	"context"
	"strings"
	"testing"

	"scriptquest/internal/emu"
	"scriptquest/internal/state"
)

func testTable() state.Table {
	return state.Table{
		"x":     {Offset: 0, Width: 2, Endian: state.Little},
		"y":     {Offset: 2, Width: 2, Endian: state.Little},
		"zone":  {Offset: 4, Width: 1, Endian: state.Little},
		"coins": {Offset: 5, Width: 1, Endian: state.Little},
		"score": {Offset: 8, Width: 4, Endian: state.Little},
	}
}

func testRig(t *testing.T, seed int64) (*emu.Sidescroller, *Coordinator) {
	t.Helper()
	console := emu.NewSidescroller(seed)
	reader := state.NewReader(console)
	reader.LoadTable(testTable())
	reader.SetBase(console.Base())
	return console, NewCoordinator(console, reader)
}

func step(seq uint64, actions ...InputAction) StepRequest {
	return StepRequest{Seq: seq, Actions: actions}
}

func press(b string) InputAction   { return InputAction{Kind: ActionPress, Button: b} }
func release(b string) InputAction { return InputAction{Kind: ActionRelease, Button: b} }

func TestHandleStep_AppliesInputsInOrderAndAdvances(t *testing.T) {
	_, coord := testRig(t, 1)

	resp := coord.HandleStep(step(1, press(emu.ButtonRight)))
	if resp.Err != "" {
		t.Fatalf("unexpected error: %s", resp.Err)
	}
	if resp.Tick != 1 {
		t.Errorf("expected tick 1, got %d", resp.Tick)
	}
	if resp.Snapshot["x"] != 5 {
		t.Errorf("expected x=5 after one held tick, got %d", resp.Snapshot["x"])
	}

	resp = coord.HandleStep(step(2))
	if resp.Snapshot["x"] != 10 {
		t.Errorf("press must stay held across steps: expected x=10, got %d", resp.Snapshot["x"])
	}

	resp = coord.HandleStep(step(3, release(emu.ButtonRight)))
	if resp.Snapshot["x"] != 10 {
		t.Errorf("release applies before the tick: expected x=10, got %d", resp.Snapshot["x"])
	}
}

func TestHandleStep_ReleaseAllClearsHeldSet(t *testing.T) {
	_, coord := testRig(t, 1)
	coord.HandleStep(step(1, press(emu.ButtonRight), press(emu.ButtonA)))
	resp := coord.HandleStep(step(2, InputAction{Kind: ActionReleaseAll}))
	if resp.Err != "" {
		t.Fatalf("unexpected error: %s", resp.Err)
	}
	x := resp.Snapshot["x"]
	resp = coord.HandleStep(step(3))
	if resp.Snapshot["x"] != x {
		t.Errorf("buttons still held after release-all: x moved %d -> %d", x, resp.Snapshot["x"])
	}
}

func TestHandleStep_UnknownButtonErrors(t *testing.T) {
	console, coord := testRig(t, 1)
	resp := coord.HandleStep(step(1, press("turbo")))
	if resp.Err == "" {
		t.Fatal("expected error for unknown button")
	}
	if console.CurrentTick() != 0 {
		t.Errorf("console must not advance on a failed request, tick=%d", console.CurrentTick())
	}
}

func TestHandleState_DoesNotAdvance(t *testing.T) {
	console, coord := testRig(t, 1)
	before := console.CurrentTick()
	resp := coord.HandleState()
	if console.CurrentTick() != before {
		t.Errorf("HandleState advanced the console: %d -> %d", before, console.CurrentTick())
	}
	if resp.Snapshot == nil {
		t.Error("expected a snapshot")
	}
}

func TestHandleStep_DegradesWithoutVariableTable(t *testing.T) {
	console := emu.NewSidescroller(1)
	coord := NewCoordinator(console, state.NewReader(console))
	resp := coord.HandleStep(step(1))
	if resp.Err != "" {
		t.Fatalf("step must survive a missing table, got %s", resp.Err)
	}
	if len(resp.Snapshot) != 0 {
		t.Errorf("expected empty snapshot, got %v", resp.Snapshot)
	}
}

func TestServe_ResponsesOrderedAndTicksMonotonic(t *testing.T) {
	_, coord := testRig(t, 2)
	link := newStepLink()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go coord.Serve(ctx, link, nil)

	var lastTick uint64
	for seq := uint64(1); seq <= 25; seq++ {
		link.requests <- step(seq)
		resp := <-link.responses
		if resp.Err != "" {
			t.Fatalf("request %d failed: %s", seq, resp.Err)
		}
		if resp.Seq != seq {
			t.Fatalf("response out of order: got seq %d, expected %d", resp.Seq, seq)
		}
		if resp.Tick != lastTick+1 {
			t.Fatalf("tick not monotonic by one: %d after %d", resp.Tick, lastTick)
		}
		lastTick = resp.Tick
	}
}

func TestServe_OutOfSequenceRequestRejected(t *testing.T) {
	console, coord := testRig(t, 2)
	link := newStepLink()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go coord.Serve(ctx, link, nil)

	link.requests <- step(7)
	resp := <-link.responses
	if resp.Err == "" || !strings.Contains(resp.Err, ErrProtocolViolation.Error()) {
		t.Fatalf("expected protocol violation, got %q", resp.Err)
	}
	if console.CurrentTick() != 0 {
		t.Errorf("console advanced on a rejected request, tick=%d", console.CurrentTick())
	}
}

func TestReleaseAllInputs_AfterTeardown(t *testing.T) {
	_, coord := testRig(t, 3)
	coord.HandleStep(step(1, press(emu.ButtonRight)))
	coord.ReleaseAllInputs()
	resp := coord.HandleStep(step(2))
	x := resp.Snapshot["x"]
	resp = coord.HandleStep(step(3))
	if resp.Snapshot["x"] != x {
		t.Errorf("input leaked past ReleaseAllInputs: x moved %d -> %d", x, resp.Snapshot["x"])
	}
}
