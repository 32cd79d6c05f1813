package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Phase is the derived, aggregate-level update phase.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseChecking
	PhaseUpdating
)

func (p Phase) String() string {
	switch p {
	case PhaseChecking:
		return "checking"
	case PhaseUpdating:
		return "updating"
	default:
		return "idle"
	}
}

// MarshalText implements encoding.TextMarshaler for JSON snapshots.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*p = PhaseIdle
	case "checking":
		*p = PhaseChecking
	case "updating":
		*p = PhaseUpdating
	default:
		return fmt.Errorf("unknown phase %q", text)
	}
	return nil
}

// UpdatePhase describes what the orchestrator is doing right now.
// Series and Progress are meaningful for Checking/Updating; LastCheck
// is meaningful for Idle.
type UpdatePhase struct {
	Phase     Phase     `json:"phase"`
	Series    Series    `json:"series,omitempty"`
	Progress  float64   `json:"progress,omitempty"`
	LastCheck time.Time `json:"lastCheck,omitzero"`
}

// Snapshot is the immutable aggregate view pushed to observers: every
// dataset's state, the current phase, and the most recent failure.
type Snapshot struct {
	Datasets  map[Dataset]DatasetState `json:"datasets"`
	Phase     UpdatePhase              `json:"phase"`
	LastError *UpdateFailure           `json:"lastError,omitempty"`
}

// Initialized reports whether every dataset has resolved out of the
// Uninitialized state. Snapshots are withheld until this holds.
func (s *Snapshot) Initialized() bool {
	if len(s.Datasets) == 0 {
		return false
	}
	for _, ds := range s.Datasets {
		if ds.State == LoadStateUninitialized {
			return false
		}
	}
	return true
}

// LatestCheck returns the most recent successful version check across
// all datasets, or a zero time when none has ever completed.
func (s *Snapshot) LatestCheck() time.Time {
	var latest time.Time
	for _, ds := range s.Datasets {
		if ds.UpdateState.LastCheck.After(latest) {
			latest = ds.UpdateState.LastCheck
		}
	}
	return latest
}

// MarshalJSON serializes the failure with its message and kind, which
// the error value itself cannot carry across a wire boundary.
func (f UpdateFailure) MarshalJSON() ([]byte, error) {
	type wire struct {
		Message    string    `json:"message"`
		Kind       string    `json:"kind"`
		NextRetry  time.Time `json:"nextRetry,omitzero"`
		RetryCount int       `json:"retryCount,omitempty"`
	}
	return json.Marshal(wire{
		Message:    f.Message(),
		Kind:       f.Kind().String(),
		NextRetry:  f.NextRetry,
		RetryCount: f.RetryCount,
	})
}
