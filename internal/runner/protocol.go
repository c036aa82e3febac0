// Step request/response protocol between the sandbox and the coordinator.
package runner

import (
	"errors"

	"scriptquest/internal/state"
)

// Input action kinds carried by a step request.
const (
	ActionPress      = "press"
	ActionRelease    = "release"
	ActionReleaseAll = "release-all"
)

// ErrProtocolViolation marks a broken channel invariant: a response for a
// request that was never issued, or delivered out of order. It is fatal to
// the session; there is no recovery path.
var ErrProtocolViolation = errors.New("step protocol violation")

// InputAction is one queued input mutation, applied in order before a tick.
type InputAction struct {
	Kind   string `json:"kind"`
	Button string `json:"button,omitempty"`
}

// StepRequest asks the coordinator to apply the queued actions and advance
// the console by exactly one tick. Each request is consumed exactly once.
type StepRequest struct {
	Seq     uint64
	Actions []InputAction
	Held    []string
}

// StepResponse answers exactly one StepRequest, in request order.
type StepResponse struct {
	Seq      uint64
	Tick     uint64
	Snapshot state.Snapshot
	Err      string
}

// stepLink is the ordered, lossless, point-to-point channel pair between the
// sandbox goroutine and the coordinator's serve loop. Both channels are
// unbuffered: the sandbox suspends on send and the coordinator handles one
// request at a time, which is exactly the one-in-flight invariant.
type stepLink struct {
	requests  chan StepRequest
	responses chan StepResponse
}

func newStepLink() *stepLink {
	return &stepLink{
		requests:  make(chan StepRequest),
		responses: make(chan StepResponse),
	}
}
