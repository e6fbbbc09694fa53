// Package scenario reads contact plots from YAML or JSON files.
//
// A scenario describes the observer's track, the bearings taken on one
// contact and, optionally, the contact's true track and solver options:
//
//	name: zigzag
//	observer:
//	  start: {x: 0, y: 10}
//	  legs:
//	    - {duration: "1:00", course: 90, speed: 10}
//	    - {duration: "1:00", course: 180, speed: 10}
//	observations:
//	  - {at: "0:00", bearing: 180}
//	  - {at: "0:30", bearing: 195.36}
//	truth: {x: 0, y: 0, course: 135, speed: 5}
package scenario

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/wisq/autocrew/internal/constrained"
	"github.com/wisq/autocrew/internal/tma"
	"gonum.org/v1/gonum/spatial/r2"
	"gopkg.in/yaml.v3"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Leg kinds.
const (
	LegStraight = "straight"
	LegCurved   = "curved"
)

type Point struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
}

// Leg is one observer movement. Straight legs use Course; curved legs turn
// from Course to FinalCourse in Direction.
type Leg struct {
	Kind        string  `yaml:"kind,omitempty" json:"kind,omitempty" validate:"omitempty,oneof=straight curved"`
	Duration    Clock   `yaml:"duration" json:"duration" validate:"gt=0"`
	Course      float64 `yaml:"course" json:"course" validate:"gte=0,lt=360"`
	FinalCourse float64 `yaml:"final_course,omitempty" json:"final_course,omitempty" validate:"gte=0,lt=360"`
	Direction   string  `yaml:"direction,omitempty" json:"direction,omitempty" validate:"required_if=Kind curved,omitempty,oneof=port starboard"`
	Speed       float64 `yaml:"speed" json:"speed" validate:"gte=0"`
}

type Observer struct {
	Start Point `yaml:"start" json:"start"`
	Legs  []Leg `yaml:"legs" json:"legs" validate:"dive"`
}

type Observation struct {
	At      Clock   `yaml:"at" json:"at" validate:"gte=0"`
	Bearing float64 `yaml:"bearing" json:"bearing" validate:"gte=0,lt=360"`
}

// Truth is the contact's actual track, for checking solutions.
type Truth struct {
	X      float64 `yaml:"x" json:"x"`
	Y      float64 `yaml:"y" json:"y"`
	Course float64 `yaml:"course" json:"course" validate:"gte=0,lt=360"`
	Speed  float64 `yaml:"speed" json:"speed" validate:"gte=0"`
}

// SolverOptions override the solver configuration for one scenario.
type SolverOptions struct {
	Enforcement string  `yaml:"enforcement,omitempty" json:"enforcement,omitempty" validate:"omitempty,oneof=linear quadratic"`
	MaxSpeed    float64 `yaml:"max_speed,omitempty" json:"max_speed,omitempty" validate:"gte=0"`
}

type Scenario struct {
	Name         string         `yaml:"name" json:"name" validate:"required"`
	Observer     Observer       `yaml:"observer" json:"observer"`
	Observations []Observation  `yaml:"observations" json:"observations" validate:"dive"`
	Truth        *Truth         `yaml:"truth,omitempty" json:"truth,omitempty"`
	Solver       *SolverOptions `yaml:"solver,omitempty" json:"solver,omitempty"`
}

// ValidationError lists the fields that failed validation.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("scenario: invalid: %v", e.Problems)
}

// Validate checks field ranges and that every observation falls within the
// observer's track.
func (s *Scenario) Validate() error {
	if err := validate.Struct(s); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("scenario: validate: %w", err)
		}
		verr := &ValidationError{}
		for _, fe := range fieldErrs {
			verr.Problems = append(verr.Problems,
				fmt.Sprintf("%s failed %s", fe.Namespace(), fe.ActualTag()))
		}
		return verr
	}

	end := s.Track().End()
	for i, o := range s.Observations {
		if o.At.Duration() > end {
			return &ValidationError{Problems: []string{
				fmt.Sprintf("observation %d at %v is after the observer track ends at %v", i, o.At, Clock(end)),
			}}
		}
	}
	return nil
}

// Parse decodes and validates a YAML or JSON scenario.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("scenario: parse: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Load reads a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Marshal encodes s as YAML.
func (s *Scenario) Marshal() ([]byte, error) {
	return yaml.Marshal(s)
}

// Track builds the observer's track.
func (s *Scenario) Track() tma.Track {
	track := tma.Track{Start: r2.Vec{X: s.Observer.Start.X, Y: s.Observer.Start.Y}}
	for _, leg := range s.Observer.Legs {
		var m tma.Movement
		if leg.Kind == LegCurved {
			m = tma.Curved{
				Length:        leg.Duration.Duration(),
				InitialCourse: leg.Course,
				FinalCourse:   leg.FinalCourse,
				Direction:     tma.TurnDirection(leg.Direction),
				Speed:         leg.Speed,
			}
		} else {
			m = tma.Straight{Length: leg.Duration.Duration(), Course: leg.Course, Speed: leg.Speed}
		}
		track.Movements = append(track.Movements, m)
	}
	return track
}

// Contact builds the observer's track and observations.
func (s *Scenario) Contact() (tma.Contact, error) {
	c := tma.Contact{Observer: s.Track()}
	for _, o := range s.Observations {
		if err := c.Add(tma.Observation{Time: o.At.Duration(), Bearing: o.Bearing}); err != nil {
			return tma.Contact{}, err
		}
	}
	return c, nil
}

// TruthSolution returns the true track as a solution, or nil.
func (s *Scenario) TruthSolution() *tma.Solution {
	if s.Truth == nil {
		return nil
	}
	return &tma.Solution{X: s.Truth.X, Y: s.Truth.Y, Course: s.Truth.Course, Speed: s.Truth.Speed}
}

// ApplySolverOptions returns base with this scenario's overrides.
func (s *Scenario) ApplySolverOptions(base tma.SolverConfig) (tma.SolverConfig, error) {
	if s.Solver == nil {
		return base, nil
	}
	if s.Solver.Enforcement != "" {
		e, err := constrained.ParseEnforcement(s.Solver.Enforcement)
		if err != nil {
			return base, err
		}
		base.Enforcement = e
	}
	if s.Solver.MaxSpeed > 0 {
		base.MaxSpeed = s.Solver.MaxSpeed
	}
	return base, nil
}
