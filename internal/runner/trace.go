package runner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Event is one step of a run as written to the trace file.
type Event struct {
	At       time.Time `json:"at"`
	Surface  string    `json:"surface,omitempty"`
	Strategy string    `json:"strategy,omitempty"`
	Step     string    `json:"step"`
	Result   string    `json:"result"`
	Detail   string    `json:"detail,omitempty"`
}

// Trace is the diagnostic record of a whole run.
type Trace struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Success    bool      `json:"success"`
	Output     string    `json:"output,omitempty"`
	Channel    string    `json:"channel,omitempty"`
	Error      string    `json:"error,omitempty"`
	Events     []Event   `json:"events"`
}

// recorder collects events in order. Runs are sequential so no locking is
// needed.
type recorder struct {
	events []Event
}

func (r *recorder) record(surface, strategy, step, result string, err error) {
	e := Event{
		At:       time.Now().UTC(),
		Surface:  surface,
		Strategy: strategy,
		Step:     step,
		Result:   result,
	}
	if err != nil {
		e.Detail = err.Error()
	}
	r.events = append(r.events, e)
}

func (r *recorder) snapshot() []Event {
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func writeTrace(path string, t Trace) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("encode trace: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create trace dir: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
