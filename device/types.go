// Package device owns a respirator-instrument serial session: it wires
// together the wire protocol, the test orchestrator, and the optional
// multi-device synchroniser into three cooperating goroutines, and
// exposes the embedder-facing action/notification surface.
package device

import (
	"time"

	"portacount.dev/fittest"
	"portacount.dev/multidev"
	"portacount.dev/testconfig"
)

// Options tunes the pacing, timeouts, and tick budget of the three
// device goroutines. The zero value is not valid; use DefaultOptions.
type Options struct {
	WriterPace        time.Duration
	ReaderIdleTimeout time.Duration
	CoordinatorTick   time.Duration
	OpenSettleDelay   time.Duration
}

// DefaultOptions matches spec.md §4.5's documented intervals.
var DefaultOptions = Options{
	WriterPace:        400 * time.Millisecond,
	ReaderIdleTimeout: 100 * time.Millisecond,
	CoordinatorTick:   50 * time.Millisecond,
	OpenSettleDelay:   500 * time.Millisecond,
}

// ActionKind discriminates the Action variants of spec.md §4.5/§6.
type ActionKind int

const (
	StartTest ActionKind = iota
	CancelTest
	CloseConnection
)

// Action is a client request delivered to the device coordinator.
type Action struct {
	Kind ActionKind

	// StartTest
	Config       testconfig.TestConfig
	DeviceID     int
	Synchroniser *multidev.DeviceSynchroniser
	TestCallback func(fittest.Notification)
}

// NotificationKind discriminates the DeviceNotification variants of
// spec.md §6.
type NotificationKind int

const (
	Sample NotificationKind = iota
	TestStarted
	TestCompleted
	TestCancelled
	ConnectionClosed
	DevicePropertiesReady
)

func (k NotificationKind) String() string {
	switch k {
	case Sample:
		return "Sample"
	case TestStarted:
		return "TestStarted"
	case TestCompleted:
		return "TestCompleted"
	case TestCancelled:
		return "TestCancelled"
	case ConnectionClosed:
		return "ConnectionClosed"
	case DevicePropertiesReady:
		return "DevicePropertiesReady"
	default:
		return "NotificationKind(?)"
	}
}

// DeviceNotification is a tagged event delivered to the embedder's
// device-level callback.
type DeviceNotification struct {
	Kind NotificationKind

	Concentration float64          // Sample
	FitFactors    []float64        // TestCompleted
	Properties    DeviceProperties // DevicePropertiesReady
}

// DeviceProperties is the instrument identity/service record, assembled
// from a stream of Setting messages (spec.md §4.6).
type DeviceProperties struct {
	SerialNumber                 string
	RunTimeSinceLastServiceHours float64
	LastServiceMonth             int
	LastServiceYear              int
}
