package runner

import (
	"context"
	"strings"
	"testing"

	"scriptquest/internal/emu"
	"scriptquest/internal/state"
)

// runTestScript executes a script against a fresh sidescroller with the
// given frame budget and returns the sandbox result.
func runTestScript(t *testing.T, script string, budget int) Result {
	t.Helper()
	console := emu.NewSidescroller(5)
	reader := state.NewReader(console)
	reader.LoadTable(testTable())
	reader.SetBase(console.Base())
	coord := NewCoordinator(console, reader)

	link := newStepLink()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go coord.Serve(ctx, link, nil)

	sess := newSession(budget, link, nil)
	sess.last = coord.HandleState().Snapshot
	return runScript(ctx, sess, script)
}

func TestSandbox_FrameNumberIsRunRelative(t *testing.T) {
	script := `
if frameNumber() ~= 0 then error("frameNumber must start at 0, got " .. frameNumber()) end
step()
if frameNumber() ~= 1 then error("expected 1 after step(), got " .. frameNumber()) end
stepFrames(5)
if frameNumber() ~= 6 then error("expected 6 after stepFrames(5), got " .. frameNumber()) end
wait(4)
if frameNumber() ~= 10 then error("expected 10 after wait(4), got " .. frameNumber()) end
`
	res := runTestScript(t, script, 100)
	if !res.Completed {
		t.Fatalf("script failed: %s\n%s", res.ErrMessage, res.Trace)
	}
	if res.FramesUsed != 10 {
		t.Errorf("expected 10 frames used, got %d", res.FramesUsed)
	}
}

func TestSandbox_HeldInputDrivesSimulation(t *testing.T) {
	script := `
press("right")
stepFrames(10)
if getVariable("x") ~= 50 then error("expected x=50, got " .. getVariable("x")) end
`
	res := runTestScript(t, script, 100)
	if !res.Completed {
		t.Fatalf("script failed: %s", res.ErrMessage)
	}
}

func TestSandbox_TapPressesForExactlyOneFrame(t *testing.T) {
	script := `
tap("right")
if getVariable("x") ~= 5 then error("expected x=5 after tap, got " .. getVariable("x")) end
step()
if getVariable("x") ~= 5 then error("tap leaked a held button, x=" .. getVariable("x")) end
`
	res := runTestScript(t, script, 100)
	if !res.Completed {
		t.Fatalf("script failed: %s", res.ErrMessage)
	}
}

func TestSandbox_HoldPressesForNFrames(t *testing.T) {
	script := `
hold("right", 4)
if getVariable("x") ~= 20 then error("expected x=20 after hold, got " .. getVariable("x")) end
step()
if getVariable("x") ~= 20 then error("hold leaked a held button, x=" .. getVariable("x")) end
`
	res := runTestScript(t, script, 100)
	if !res.Completed {
		t.Fatalf("script failed: %s", res.ErrMessage)
	}
}

func TestSandbox_ReleaseAllStopsMovement(t *testing.T) {
	script := `
press("right")
stepFrames(2)
releaseAll()
step()
if getVariable("x") ~= 10 then error("expected x=10 after releaseAll, got " .. getVariable("x")) end
`
	res := runTestScript(t, script, 100)
	if !res.Completed {
		t.Fatalf("script failed: %s", res.ErrMessage)
	}
}

func TestSandbox_BudgetExceededUncaught(t *testing.T) {
	res := runTestScript(t, `stepFrames(10)`, 3)
	if res.Completed {
		t.Fatal("expected script failure past the budget")
	}
	if !res.BudgetHit {
		t.Error("expected BudgetHit to be recorded")
	}
	if res.FramesUsed != 3 {
		t.Errorf("expected exactly 3 frames consumed, got %d", res.FramesUsed)
	}
	if !strings.Contains(res.ErrMessage, "frame budget exceeded") {
		t.Errorf("unexpected error message %q", res.ErrMessage)
	}
}

func TestSandbox_BudgetExceededIsCatchable(t *testing.T) {
	script := `
local ok, err = pcall(function() stepFrames(10) end)
if ok then error("expected budget error") end
if not string.find(err, "frame budget exceeded") then error("unexpected error: " .. err) end
`
	res := runTestScript(t, script, 3)
	if !res.Completed {
		t.Fatalf("script should have caught the budget error: %s", res.ErrMessage)
	}
	if !res.BudgetHit || res.FramesUsed != 3 {
		t.Errorf("expected BudgetHit with 3 frames, got hit=%v frames=%d", res.BudgetHit, res.FramesUsed)
	}
}

func TestSandbox_ScriptErrorCaptured(t *testing.T) {
	res := runTestScript(t, `error("boom")`, 100)
	if res.Completed {
		t.Fatal("expected failure")
	}
	if !strings.Contains(res.ErrMessage, "boom") {
		t.Errorf("expected message to carry the thrown value, got %q", res.ErrMessage)
	}
	if res.FramesUsed != 0 {
		t.Errorf("expected 0 frames for a synchronous throw, got %d", res.FramesUsed)
	}
	if res.Trace == "" {
		t.Error("expected a stack trace")
	}
}

func TestSandbox_GetVariableUnknownName(t *testing.T) {
	res := runTestScript(t, `stepFrames(3) getVariable("warp")`, 100)
	if res.Completed {
		t.Fatal("expected failure")
	}
	if !strings.Contains(res.ErrMessage, "variable not found") {
		t.Errorf("unexpected error message %q", res.ErrMessage)
	}
	if res.FramesUsed != 3 {
		t.Errorf("frames consumed before the bad call must be kept, got %d", res.FramesUsed)
	}
}

func TestSandbox_GetStateReturnsCopy(t *testing.T) {
	script := `
step()
local s = getState()
s.x = 9999
if getVariable("x") == 9999 then error("getState must hand out a copy") end
`
	res := runTestScript(t, script, 100)
	if !res.Completed {
		t.Fatalf("script failed: %s", res.ErrMessage)
	}
}

func TestSandbox_ConsoleCapturesLogs(t *testing.T) {
	script := `
console.log("hello", 42)
step()
console.warn("low battery")
console.info("fyi")
console.error("bad")
`
	res := runTestScript(t, script, 100)
	if !res.Completed {
		t.Fatalf("script failed: %s", res.ErrMessage)
	}
	if len(res.Logs) != 4 {
		t.Fatalf("expected 4 log lines, got %d", len(res.Logs))
	}
	if res.Logs[0].Level != "log" || res.Logs[0].Message != "hello 42" {
		t.Errorf("unexpected first line: %+v", res.Logs[0])
	}
	if res.Logs[0].Frame != 0 || res.Logs[1].Frame != 1 {
		t.Errorf("log lines must record the frame they were emitted at: %+v", res.Logs[:2])
	}
	if res.Logs[1].Level != "warn" || res.Logs[2].Level != "info" || res.Logs[3].Level != "error" {
		t.Errorf("unexpected levels: %+v", res.Logs)
	}
}

func TestSandbox_NoAmbientCapabilities(t *testing.T) {
	script := `
if io ~= nil then error("io leaked into the sandbox") end
if os ~= nil then error("os leaked into the sandbox") end
if require ~= nil then error("require leaked into the sandbox") end
if dofile ~= nil then error("dofile leaked into the sandbox") end
if load ~= nil then error("load leaked into the sandbox") end
if math == nil or string == nil then error("safe utilities missing") end
`
	res := runTestScript(t, script, 100)
	if !res.Completed {
		t.Fatalf("script failed: %s", res.ErrMessage)
	}
}

func TestSandbox_StopAbortsSuspendedScript(t *testing.T) {
	console := emu.NewSidescroller(5)
	reader := state.NewReader(console)
	reader.LoadTable(testTable())
	reader.SetBase(console.Base())
	coord := NewCoordinator(console, reader)

	link := newStepLink()
	ctx, cancel := context.WithCancel(context.Background())
	go coord.Serve(ctx, link, nil)

	sess := newSession(0, link, nil)
	sess.last = coord.HandleState().Snapshot

	done := make(chan Result, 1)
	go func() { done <- runScript(ctx, sess, `while true do step() end`) }()

	cancel()
	res := <-done
	if res.Completed {
		t.Fatal("expected the stopped script to fail")
	}
}
