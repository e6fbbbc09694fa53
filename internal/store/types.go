package store

import (
	"fmt"
	"math"
	"time"

	"github.com/wisq/autocrew/internal/scenario"
	"github.com/wisq/autocrew/internal/tma"
)

// Checkpoint is the latest solution of a contact together with the plot it
// was solved from.
//
// The scenario is saved whole so a contact can be restored and re-solved
// after a restart; the solution is the warm start for that re-solve.
type Checkpoint struct {
	ContactID string             `json:"contactId"`
	Scenario  *scenario.Scenario `json:"scenario"`
	Solution  tma.Solution       `json:"solution"`
	// Settled is set once successive solutions stopped moving.
	Settled   bool      `json:"settled"`
	Timestamp time.Time `json:"timestamp"`
}

// CheckpointInfo is checkpoint metadata for listings.
type CheckpointInfo struct {
	ContactID    string    `json:"contactId"`
	Name         string    `json:"name"`
	Observations int       `json:"observations"`
	Value        float64   `json:"value"`
	Course       float64   `json:"course"`
	Speed        float64   `json:"speed"`
	Settled      bool      `json:"settled"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewCheckpoint stamps a checkpoint with the current time.
func NewCheckpoint(contactID string, sc *scenario.Scenario, sol tma.Solution, settled bool) *Checkpoint {
	return &Checkpoint{
		ContactID: contactID,
		Scenario:  sc,
		Solution:  sol,
		Settled:   settled,
		Timestamp: time.Now(),
	}
}

// ToInfo converts a full Checkpoint to CheckpointInfo.
func (c *Checkpoint) ToInfo() CheckpointInfo {
	info := CheckpointInfo{
		ContactID:    c.ContactID,
		Observations: c.Solution.Observations,
		Value:        c.Solution.Value,
		Course:       c.Solution.Course,
		Speed:        c.Solution.Speed,
		Settled:      c.Settled,
		Timestamp:    c.Timestamp,
	}
	if c.Scenario != nil {
		info.Name = c.Scenario.Name
	}
	return info
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// Validate checks that the checkpoint can be restored.
func (c *Checkpoint) Validate() error {
	if c.ContactID == "" {
		return &ValidationError{Field: "ContactID", Reason: "cannot be empty"}
	}
	if c.Scenario == nil {
		return &ValidationError{Field: "Scenario", Reason: "cannot be nil"}
	}
	if err := c.Scenario.Validate(); err != nil {
		return &ValidationError{Field: "Scenario", Reason: err.Error()}
	}
	s := c.Solution
	for name, v := range map[string]float64{"X": s.X, "Y": s.Y, "Course": s.Course, "Speed": s.Speed, "Value": s.Value} {
		if !finite(v) {
			return &ValidationError{Field: "Solution." + name, Reason: "must be finite"}
		}
	}
	if s.Speed < 0 {
		return &ValidationError{Field: "Solution.Speed", Reason: "cannot be negative"}
	}
	if s.Value < 0 {
		return &ValidationError{Field: "Solution.Value", Reason: "cannot be negative"}
	}
	if s.Observations > len(c.Scenario.Observations) {
		return &ValidationError{
			Field:  "Solution.Observations",
			Reason: fmt.Sprintf("solution fits %d observations but the scenario has %d", s.Observations, len(c.Scenario.Observations)),
		}
	}
	if c.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	return nil
}

// ValidationError represents a checkpoint validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// IsCompatible reports whether the checkpoint's solution can warm-start a
// solve of sc: the observer track must match and the checkpointed
// observations must be a prefix of sc's.
func (c *Checkpoint) IsCompatible(sc *scenario.Scenario) error {
	old := c.Scenario
	if old.Observer.Start != sc.Observer.Start {
		return &CompatibilityError{
			Field:    "Observer.Start",
			Expected: fmt.Sprint(old.Observer.Start),
			Actual:   fmt.Sprint(sc.Observer.Start),
		}
	}
	if len(sc.Observer.Legs) < len(old.Observer.Legs) {
		return &CompatibilityError{
			Field:    "Observer.Legs",
			Expected: fmt.Sprintf("at least %d", len(old.Observer.Legs)),
			Actual:   fmt.Sprintf("%d", len(sc.Observer.Legs)),
		}
	}
	for i, leg := range old.Observer.Legs {
		if sc.Observer.Legs[i] != leg {
			return &CompatibilityError{
				Field:    fmt.Sprintf("Observer.Legs[%d]", i),
				Expected: fmt.Sprintf("%+v", leg),
				Actual:   fmt.Sprintf("%+v", sc.Observer.Legs[i]),
			}
		}
	}
	if len(sc.Observations) < len(old.Observations) {
		return &CompatibilityError{
			Field:    "Observations",
			Expected: fmt.Sprintf("at least %d", len(old.Observations)),
			Actual:   fmt.Sprintf("%d", len(sc.Observations)),
		}
	}
	for i, o := range old.Observations {
		if sc.Observations[i] != o {
			return &CompatibilityError{
				Field:    fmt.Sprintf("Observations[%d]", i),
				Expected: fmt.Sprintf("%v bearing %g", o.At, o.Bearing),
				Actual:   fmt.Sprintf("%v bearing %g", sc.Observations[i].At, sc.Observations[i].Bearing),
			}
		}
	}
	return nil
}

// CompatibilityError represents a checkpoint compatibility error.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
