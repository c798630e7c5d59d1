package fittest

import (
	"errors"
	"fmt"
	"math"

	"portacount.dev/multidev"
	"portacount.dev/protocol"
	"portacount.dev/testconfig"
)

// ErrProtocolViolation is returned by Step when an incoming sample
// contradicts the valve state the caller asserts (a stuck valve, a lost
// echo that was never reconciled). It is fatal to the Test but not to the
// underlying device connection.
var ErrProtocolViolation = errors.New("fittest: protocol violation")

type stageResult struct {
	kind    testconfig.StageKind
	purges  []float64
	samples []float64
}

// minMeasurable is the minimum-measurable-concentration floor for an
// average over n samples: below this, noise dominates and the average is
// clamped rather than trusted.
func minMeasurable(n int) float64 {
	return 60.0 / (100.0 * float64(n))
}

func stageAvg(sum float64, n int) float64 {
	return math.Max(sum/float64(n), minMeasurable(n))
}

func stageErr(avg float64, n int) float64 {
	return 1 / math.Sqrt(avg*float64(n)*100.0/60.0)
}

func sum(xs []float64) float64 {
	var total float64
	for _, x := range xs {
		total += x
	}
	return total
}

// Test is one in-progress fit test: a position in a testconfig.TestConfig's
// stage sequence, the accumulated per-stage readings, the fit factors
// computed so far, and the notification sink.
type Test struct {
	cfg      testconfig.TestConfig
	deviceID int
	notify   func(Notification)
	sync     *multidev.DeviceSynchroniser

	currentStage       int
	results            []stageResult
	exerciseFFs        []float64
	exercisesCompleted int
	deferred           []protocol.Command
}

// New constructs a Test for cfg, to run on a device whose valve currently
// reads initialValve. deviceID tags every notification this Test emits,
// letting an embedder correlate results across a multi-device run. sync
// may be nil for a single-device run.
//
// New does not itself send anything: the instrument's init sequence is
// deferred until the first Sample arrives (see Step), to avoid a command
// sent immediately after EnterExternalControl being silently dropped. If
// the valve needs to move to ambient before the test can start, a single
// ValveAmbient command is returned for the caller to send right away.
func New(cfg testconfig.TestConfig, initialValve ValveState, deviceID int, sync *multidev.DeviceSynchroniser, notify func(Notification)) (*Test, []protocol.Command, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	t := &Test{
		cfg:      cfg,
		deviceID: deviceID,
		notify:   notify,
		sync:     sync,
		results:  []stageResult{{kind: cfg.Stages[0].Kind}},
		deferred: []protocol.Command{
			{Kind: protocol.ClearDisplay},
			protocol.NewIndicator(protocol.Indicator{InProgress: true}),
			protocol.NewDisplayExercise(1),
			protocol.NewBeep(40),
		},
	}
	var immediate []protocol.Command
	if initialValve == Specimen || initialValve == AwaitingSpecimen {
		immediate = append(immediate, protocol.Command{Kind: protocol.ValveAmbient})
	}
	return t, immediate, nil
}

// Step feeds one message from the device's coordinator to the test. It
// returns any commands to send and whether the test has now completed.
// Non-Sample messages are no-ops: the coordinator itself tracks valve
// acknowledgements and settings independent of any in-progress test.
func (t *Test) Step(msg protocol.Message, valve *ValveState) (StepOutcome, []protocol.Command, error) {
	if msg.Kind != protocol.Sample {
		return None, nil, nil
	}
	return t.step(msg.Value, valve)
}

func (t *Test) currentStageCfg() testconfig.TestStage {
	return t.cfg.Stages[t.currentStage]
}

func (t *Test) lastAmbient() *stageResult {
	for i := t.currentStage - 1; i >= 0; i-- {
		if t.cfg.Stages[i].Kind == testconfig.AmbientSample {
			return &t.results[i]
		}
	}
	return nil
}

func (t *Test) step(value float64, valve *ValveState) (StepOutcome, []protocol.Command, error) {
	var cmds []protocol.Command
	if len(t.deferred) > 0 {
		cmds = append(cmds, t.deferred...)
		t.deferred = nil
	}

	if t.sync != nil && t.sync.TryStep() == multidev.Skip {
		return None, cmds, nil
	}

	stageCfg := t.currentStageCfg()
	switch *valve {
	case AwaitingAmbient:
		cmds = append(cmds, protocol.Command{Kind: protocol.ValveAmbient})
		return None, cmds, nil
	case AwaitingSpecimen:
		cmds = append(cmds, protocol.Command{Kind: protocol.ValveSpecimen})
	case Ambient:
		if stageCfg.Kind != testconfig.AmbientSample {
			return None, cmds, fmt.Errorf("%w: valve reads Ambient during stage %v", ErrProtocolViolation, stageCfg.Kind)
		}
	case Specimen:
		if stageCfg.Kind != testconfig.Exercise {
			return None, cmds, fmt.Errorf("%w: valve reads Specimen during stage %v", ErrProtocolViolation, stageCfg.Kind)
		}
	}

	cur := &t.results[t.currentStage]
	purging := len(cur.purges) < stageCfg.PurgeCount
	if purging {
		cur.purges = append(cur.purges, value)
	} else {
		cur.samples = append(cur.samples, value)
	}

	sampleKind := classify(stageCfg.Kind, purging)
	t.notify(Notification{
		Kind:       Sample,
		SampleKind: sampleKind,
		DeviceID:   t.deviceID,
		Exercise:   t.exercisesCompleted,
		Index:      len(cur.purges) + len(cur.samples) - 1,
		Value:      value,
	})

	if !purging && stageCfg.Kind == testconfig.Exercise {
		if ambient := t.lastAmbient(); ambient != nil && len(ambient.samples) > 0 {
			ambientAvg := sum(ambient.samples) / float64(len(ambient.samples))

			liveFF := ambientAvg / math.Max(value, minMeasurable(1))
			t.notify(Notification{Kind: LiveFF, DeviceID: t.deviceID, Exercise: t.exercisesCompleted, Index: len(cur.samples), FitFactor: liveFF})

			interimAvg := stageAvg(sum(cur.samples), len(cur.samples))
			interimFF := ambientAvg / interimAvg
			t.notify(Notification{Kind: InterimFF, DeviceID: t.deviceID, Exercise: t.exercisesCompleted, FitFactor: interimFF})
		}
	}

	if !purging && len(cur.samples) < stageCfg.SampleCount {
		return None, cmds, nil
	}
	if purging {
		return None, cmds, nil
	}

	return t.completeStage(cmds, valve)
}

func classify(kind testconfig.StageKind, purging bool) SampleKind {
	switch {
	case kind == testconfig.AmbientSample && purging:
		return AmbientPurge
	case kind == testconfig.AmbientSample && !purging:
		return AmbientSampleReading
	case kind == testconfig.Exercise && purging:
		return SpecimenPurge
	default:
		return SpecimenSample
	}
}

func (t *Test) completeStage(cmds []protocol.Command, valve *ValveState) (StepOutcome, []protocol.Command, error) {
	completedKind := t.currentStageCfg().Kind

	if completedKind == testconfig.AmbientSample && t.exercisesCompleted > 0 {
		cmds = t.computeFinalFFs(cmds)
	}

	if t.currentStage == len(t.cfg.Stages)-1 {
		cmds = append(cmds, protocol.Command{Kind: protocol.ValveSpecimen}, protocol.Command{Kind: protocol.ClearDisplay}, protocol.NewBeep(50))
		*valve = AwaitingSpecimen
		return TestComplete, cmds, nil
	}

	t.currentStage++
	t.results = append(t.results, stageResult{kind: t.currentStageCfg().Kind})
	nextCfg := t.currentStageCfg()

	switch nextCfg.Kind {
	case testconfig.AmbientSample:
		cmds = append(cmds, protocol.Command{Kind: protocol.ValveAmbient})
		*valve = AwaitingAmbient
	case testconfig.Exercise:
		if *valve != Specimen {
			cmds = append(cmds, protocol.Command{Kind: protocol.ValveSpecimen})
			*valve = AwaitingSpecimen
		}
	}

	if completedKind == testconfig.Exercise {
		t.exercisesCompleted++
		t.notify(Notification{Kind: StateChange, StartedExercise: t.exercisesCompleted})
		cmds = append(cmds, protocol.NewDisplayExercise(uint8((t.exercisesCompleted+1)%20)), protocol.NewBeep(10))
	}

	return None, cmds, nil
}

// computeFinalFFs walks backward from the just-closed ambient stage to the
// previous ambient stage, pooling their samples for the ambient average
// and emitting one ExerciseResult per exercise in between, in chronological
// order, via a stack built by the backward walk.
func (t *Test) computeFinalFFs(cmds []protocol.Command) []protocol.Command {
	closed := t.currentStage
	var prevAmbient = -1
	for i := closed - 1; i >= 0; i-- {
		if t.cfg.Stages[i].Kind == testconfig.AmbientSample {
			prevAmbient = i
			break
		}
	}
	if prevAmbient < 0 {
		return cmds
	}

	pooled := append(append([]float64{}, t.results[closed].samples...), t.results[prevAmbient].samples...)
	pooledN := len(pooled)
	pooledSum := sum(pooled)
	ambientAvg := pooledSum / float64(pooledN)
	ambientErr := 1 / math.Sqrt(pooledSum*100.0/60.0)

	type entry struct{ avg, err float64 }
	var stack []entry
	for i := closed - 1; i > prevAmbient; i-- {
		if t.cfg.Stages[i].Kind != testconfig.Exercise {
			continue
		}
		r := t.results[i]
		avg := stageAvg(sum(r.samples), len(r.samples))
		stack = append(stack, entry{avg: avg, err: stageErr(avg, len(r.samples))})
	}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		ff := ambientAvg / top.avg
		sigma := ff * math.Sqrt(top.err*top.err+ambientErr*ambientErr)
		exercise := len(t.exerciseFFs)
		t.notify(Notification{Kind: ExerciseResult, DeviceID: t.deviceID, Exercise: exercise, FitFactor: ff, Sigma: sigma})
		t.exerciseFFs = append(t.exerciseFFs, ff)
	}

	return cmds
}

// ExerciseFFs returns the final fit factors computed so far, in exercise
// order.
func (t *Test) ExerciseFFs() []float64 {
	return append([]float64(nil), t.exerciseFFs...)
}
