// Package testconfig models scripted fit-test protocols: a typed stage
// sequence, a permissive CSV-like loader, a structural validator, and a
// set of embedded built-in protocols.
package testconfig

import "errors"

// StageKind discriminates the two TestStage variants.
type StageKind int

const (
	AmbientSample StageKind = iota
	Exercise
)

func (k StageKind) String() string {
	if k == Exercise {
		return "Exercise"
	}
	return "AmbientSample"
}

// TestStage is one stage of a test protocol: either an ambient sample or
// a scripted exercise. Name is meaningful only for Exercise stages.
type TestStage struct {
	Kind        StageKind
	Name        string
	PurgeCount  int
	SampleCount int
}

// TestConfig is an ordered, named sequence of stages.
type TestConfig struct {
	ID          string
	DisplayName string
	Stages      []TestStage
}

// ErrInvalidConfig is returned by Validate when a structural invariant is
// violated.
var ErrInvalidConfig = errors.New("testconfig: invalid config")

// Validate checks the structural invariants of spec.md §3:
//   - at least 3 stages
//   - the first and last stages are AmbientSample
//   - no two consecutive AmbientSample stages
//   - every stage has SampleCount >= 1
func (c TestConfig) Validate() error {
	if len(c.Stages) < 3 {
		return ErrInvalidConfig
	}
	if c.Stages[0].Kind != AmbientSample || c.Stages[len(c.Stages)-1].Kind != AmbientSample {
		return ErrInvalidConfig
	}
	var prev *TestStage
	for i := range c.Stages {
		stage := &c.Stages[i]
		if stage.SampleCount < 1 {
			return ErrInvalidConfig
		}
		if prev != nil && prev.Kind == AmbientSample && stage.Kind == AmbientSample {
			return ErrInvalidConfig
		}
		prev = stage
	}
	return nil
}

// ExerciseCount returns the number of Exercise stages.
func (c TestConfig) ExerciseCount() int {
	n := 0
	for _, s := range c.Stages {
		if s.Kind == Exercise {
			n++
		}
	}
	return n
}

// ExerciseNames returns the names of the Exercise stages, in order.
func (c TestConfig) ExerciseNames() []string {
	names := make([]string, 0, c.ExerciseCount())
	for _, s := range c.Stages {
		if s.Kind == Exercise {
			names = append(names, s.Name)
		}
	}
	return names
}
