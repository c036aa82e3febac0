// Lua sandbox running untrusted script text against the step protocol.
package runner

import (
	"context"
	"errors"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"scriptquest/internal/state"
)

// safeLibs is the vetted library subset opened inside the sandbox. The
// package loader is deliberately absent: no require, no filesystem, no
// network, no ambient globals beyond these plus the capability surface.
var safeLibs = []struct {
	name string
	open lua.LGFunction
}{
	{lua.BaseLibName, lua.OpenBase},
	{lua.TabLibName, lua.OpenTable},
	{lua.StringLibName, lua.OpenString},
	{lua.MathLibName, lua.OpenMath},
}

// unsafeBaseGlobals are base-library entries that reach outside the sandbox.
var unsafeBaseGlobals = []string{"dofile", "loadfile", "load", "loadstring", "print", "collectgarbage"}

// runScript executes untrusted script text to completion or failure. Every
// step-class capability call suspends the script on the link until the
// coordinator answers; between suspension points the script runs its own
// synchronous logic uninterrupted. The returned Result always carries the
// completion flag, frames consumed, captured log lines, and error text with
// a stack trace where available.
func runScript(ctx context.Context, sess *session, script string) Result {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()
	L.SetContext(ctx)

	for _, lib := range safeLibs {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.open),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			return Result{
				SessionID:  sess.id,
				ErrMessage: "sandbox setup failed: " + err.Error(),
			}
		}
	}
	for _, name := range unsafeBaseGlobals {
		L.SetGlobal(name, lua.LNil)
	}

	registerCapabilities(ctx, L, sess)

	err := L.DoString(script)

	res := Result{
		SessionID:         sess.id,
		FramesUsed:        sess.frames,
		Logs:              sess.logs,
		BudgetHit:         sess.budgetHit,
		ProtocolViolation: sess.protoViolation,
	}
	if err == nil {
		res.Completed = true
		return res
	}
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) {
		res.ErrMessage = apiErr.Object.String()
		res.Trace = apiErr.StackTrace
	} else {
		res.ErrMessage = err.Error()
	}
	return res
}

// registerCapabilities installs the fixed capability surface. This is the
// only doorway untrusted code has: the capabilities are passed in
// explicitly, never looked up from the host environment.
func registerCapabilities(ctx context.Context, L *lua.LState, sess *session) {
	L.SetGlobal("press", L.NewFunction(func(L *lua.LState) int {
		sess.queuePress(L.CheckString(1))
		return 0
	}))
	L.SetGlobal("release", L.NewFunction(func(L *lua.LState) int {
		sess.queueRelease(L.CheckString(1))
		return 0
	}))
	L.SetGlobal("releaseAll", L.NewFunction(func(L *lua.LState) int {
		sess.queueReleaseAll()
		return 0
	}))
	L.SetGlobal("step", L.NewFunction(func(L *lua.LState) int {
		stepOne(ctx, L, sess)
		return 0
	}))
	stepFrames := L.NewFunction(func(L *lua.LState) int {
		n := L.CheckInt(1)
		if n < 0 {
			L.RaiseError("stepFrames: frame count must not be negative, got %d", n)
		}
		for i := 0; i < n; i++ {
			stepOne(ctx, L, sess)
		}
		return 0
	})
	L.SetGlobal("stepFrames", stepFrames)
	L.SetGlobal("wait", stepFrames)
	L.SetGlobal("tap", L.NewFunction(func(L *lua.LState) int {
		button := L.CheckString(1)
		sess.queuePress(button)
		stepOne(ctx, L, sess)
		sess.queueRelease(button)
		return 0
	}))
	L.SetGlobal("hold", L.NewFunction(func(L *lua.LState) int {
		button := L.CheckString(1)
		n := L.CheckInt(2)
		if n < 0 {
			L.RaiseError("hold: frame count must not be negative, got %d", n)
		}
		sess.queuePress(button)
		for i := 0; i < n; i++ {
			stepOne(ctx, L, sess)
		}
		sess.queueRelease(button)
		return 0
	}))
	L.SetGlobal("getVariable", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		v, ok := sess.last[name]
		if !ok {
			L.RaiseError("variable not found: %s", name)
		}
		L.Push(lua.LNumber(v))
		return 1
	}))
	L.SetGlobal("getState", L.NewFunction(func(L *lua.LState) int {
		tbl := L.NewTable()
		for name, v := range sess.last {
			tbl.RawSetString(name, lua.LNumber(v))
		}
		L.Push(tbl)
		return 1
	}))
	L.SetGlobal("frameNumber", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(sess.frames))
		return 1
	}))

	console := L.NewTable()
	for _, level := range []string{"log", "warn", "error", "info"} {
		console.RawSetString(level, L.NewFunction(logFn(sess, level)))
	}
	L.SetGlobal("console", console)
}

// logFn captures a console.<level>(...) call into the session log.
func logFn(sess *session, level string) lua.LGFunction {
	return func(L *lua.LState) int {
		parts := make([]string, 0, L.GetTop())
		for i := 1; i <= L.GetTop(); i++ {
			parts = append(parts, L.Get(i).String())
		}
		sess.log(level, strings.Join(parts, " "))
		return 0
	}
}

// stepOne is the single suspension point: it serializes the pending input
// queue into a StepRequest, parks the script on the link, and resumes with
// the response snapshot. It never spins; suspension is a blocking receive.
func stepOne(ctx context.Context, L *lua.LState, sess *session) {
	if sess.budget > 0 && sess.frames >= sess.budget {
		sess.budgetHit = true
		L.RaiseError("frame budget exceeded: %d frames used of %d", sess.frames, sess.budget)
	}

	sess.seq++
	req := StepRequest{Seq: sess.seq, Actions: sess.pending, Held: sess.heldList()}
	sess.pending = nil

	select {
	case sess.link.requests <- req:
	case <-ctx.Done():
		L.RaiseError("session stopped")
	}
	var resp StepResponse
	select {
	case resp = <-sess.link.responses:
	case <-ctx.Done():
		L.RaiseError("session stopped")
	}

	if resp.Seq != req.Seq {
		sess.protoViolation = true
		L.RaiseError("%v: response %d for request %d", ErrProtocolViolation, resp.Seq, req.Seq)
	}
	if resp.Err != "" {
		if strings.Contains(resp.Err, ErrProtocolViolation.Error()) {
			sess.protoViolation = true
		}
		L.RaiseError("%s", resp.Err)
	}

	sess.frames++
	sess.last = resp.Snapshot
	if sess.last == nil {
		sess.last = state.Snapshot{}
	}
}
