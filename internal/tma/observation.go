package tma

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"
)

// ErrTooFewObservations is returned when a contact can't be solved yet.
var ErrTooFewObservations = errors.New("tma: at least two observations are needed")

// Observation is a bearing to a contact taken by the observer at Time.
type Observation struct {
	Time    time.Duration `json:"time"`
	Bearing float64       `json:"bearing"`
}

// Validate reports whether the bearing is usable.
func (o Observation) Validate() error {
	if math.IsNaN(o.Bearing) || math.IsInf(o.Bearing, 0) {
		return fmt.Errorf("tma: invalid bearing %v at %v", o.Bearing, o.Time)
	}
	if o.Time < 0 {
		return fmt.Errorf("tma: negative observation time %v", o.Time)
	}
	return nil
}

// Contact is the set of observations of one target by one observer.
type Contact struct {
	Observer     Track
	Observations []Observation
}

// Add appends an observation, keeping observations ordered by time.
func (c *Contact) Add(o Observation) error {
	if err := o.Validate(); err != nil {
		return err
	}
	i, _ := slices.BinarySearchFunc(c.Observations, o, func(a, b Observation) int {
		return int(a.Time - b.Time)
	})
	// after any observations at the same time
	for i < len(c.Observations) && c.Observations[i].Time == o.Time {
		i++
	}
	c.Observations = slices.Insert(c.Observations, i, o)
	return nil
}
