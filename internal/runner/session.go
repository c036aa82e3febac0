package runner

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"scriptquest/internal/state"
)

// LogLine is one captured entry from the script's restricted console.
type LogLine struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Frame   int       `json:"frame"`
	Time    time.Time `json:"time"`
}

// Result is the structured outcome of one sandbox execution. Script failures
// are data here, never live errors: nothing thrown inside the sandbox
// escapes into the host.
type Result struct {
	SessionID         string
	Completed         bool
	FramesUsed        int
	Logs              []LogLine
	ErrMessage        string
	Trace             string
	BudgetHit         bool
	ProtocolViolation bool
}

// session is the per-run state owned exclusively by the sandbox goroutine.
// At most one session is active per runner; it is destroyed when the run
// resolves or is torn down externally.
type session struct {
	id     string
	budget int
	link   *stepLink
	onLog  func(LogLine)

	frames  int
	seq     uint64
	pending []InputAction
	held    map[string]bool
	last    state.Snapshot
	logs    []LogLine

	budgetHit      bool
	protoViolation bool
}

func newSession(budget int, link *stepLink, onLog func(LogLine)) *session {
	return &session{
		id:     uuid.New().String(),
		budget: budget,
		link:   link,
		onLog:  onLog,
		held:   make(map[string]bool),
		last:   state.Snapshot{},
	}
}

// queuePress records a press action; it takes effect at the next step.
func (s *session) queuePress(button string) {
	s.pending = append(s.pending, InputAction{Kind: ActionPress, Button: button})
	s.held[button] = true
}

func (s *session) queueRelease(button string) {
	s.pending = append(s.pending, InputAction{Kind: ActionRelease, Button: button})
	delete(s.held, button)
}

func (s *session) queueReleaseAll() {
	s.pending = append(s.pending, InputAction{Kind: ActionReleaseAll})
	s.held = make(map[string]bool)
}

// heldList snapshots the currently-held set in a deterministic order.
func (s *session) heldList() []string {
	if len(s.held) == 0 {
		return nil
	}
	out := make([]string, 0, len(s.held))
	for b := range s.held {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

// log captures a console line and forwards it to the observer.
func (s *session) log(level, message string) {
	line := LogLine{Level: level, Message: message, Frame: s.frames, Time: time.Now().UTC()}
	s.logs = append(s.logs, line)
	if s.onLog != nil {
		s.onLog(line)
	}
}
