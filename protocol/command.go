// Package protocol implements the 8020-family wire protocol: encoding
// outbound commands and parsing inbound samples, command echoes, settings
// dumps, and error responses.
package protocol

import (
	"errors"
	"fmt"
	"math"
)

// ErrOutOfRange is returned by Command.Encode when a parameterised command's
// value falls outside the range the device accepts.
var ErrOutOfRange = errors.New("protocol: value out of range")

// CommandKind discriminates the Command variants of spec.md §3.
type CommandKind int

const (
	EnterExternalControl CommandKind = iota
	ExitExternalControl
	Beep
	ValveAmbient
	ValveSpecimen
	DisplayExercise
	DisplayConcentration
	IndicatorCommand
	ClearDisplay
	RequestSettings
)

func (k CommandKind) String() string {
	switch k {
	case EnterExternalControl:
		return "EnterExternalControl"
	case ExitExternalControl:
		return "ExitExternalControl"
	case Beep:
		return "Beep"
	case ValveAmbient:
		return "ValveAmbient"
	case ValveSpecimen:
		return "ValveSpecimen"
	case DisplayExercise:
		return "DisplayExercise"
	case DisplayConcentration:
		return "DisplayConcentration"
	case IndicatorCommand:
		return "Indicator"
	case ClearDisplay:
		return "ClearDisplay"
	case RequestSettings:
		return "RequestSettings"
	default:
		return fmt.Sprintf("CommandKind(%d)", int(k))
	}
}

// Indicator is the 7-bit indicator field, in wire order.
type Indicator struct {
	InProgress  bool
	FitFactor   bool
	Service     bool
	LowParticle bool
	LowBattery  bool
	Fail        bool
	Pass        bool
}

// Command is a tagged outbound command. Only the fields relevant to Kind
// are meaningful.
type Command struct {
	Kind          CommandKind
	Deciseconds   uint8   // Beep
	Exercise      uint8   // DisplayExercise
	Concentration float64 // DisplayConcentration
	Indicator     Indicator
}

func NewBeep(deciseconds uint8) Command {
	return Command{Kind: Beep, Deciseconds: deciseconds}
}

func NewDisplayExercise(exercise uint8) Command {
	return Command{Kind: DisplayExercise, Exercise: exercise}
}

func NewDisplayConcentration(concentration float64) Command {
	return Command{Kind: DisplayConcentration, Concentration: concentration}
}

func NewIndicator(ind Indicator) Command {
	return Command{Kind: IndicatorCommand, Indicator: ind}
}

// Encode renders c as ASCII, without the transport's trailing CR.
func (c Command) Encode() (string, error) {
	switch c.Kind {
	case EnterExternalControl:
		return "J", nil
	case ExitExternalControl:
		return "G", nil
	case ValveAmbient:
		return "VN", nil
	case ValveSpecimen:
		return "VF", nil
	case ClearDisplay:
		return "K", nil
	case RequestSettings:
		return "S", nil
	case Beep:
		if c.Deciseconds < 1 || c.Deciseconds > 60 {
			return "", fmt.Errorf("%w: beep duration %d deciseconds", ErrOutOfRange, c.Deciseconds)
		}
		return fmt.Sprintf("B%02d", c.Deciseconds), nil
	case DisplayExercise:
		if c.Exercise > 19 {
			return "", fmt.Errorf("%w: exercise %d", ErrOutOfRange, c.Exercise)
		}
		return fmt.Sprintf("N%02d", c.Exercise), nil
	case DisplayConcentration:
		return encodeConcentration(c.Concentration)
	case IndicatorCommand:
		return encodeIndicator(c.Indicator), nil
	default:
		return "", fmt.Errorf("protocol: unknown command kind %v", c.Kind)
	}
}

func encodeConcentration(x float64) (string, error) {
	if x < 0 {
		return "", fmt.Errorf("%w: concentration %v", ErrOutOfRange, x)
	}
	if x < 100.0 {
		return fmt.Sprintf("D%09.2f", x), nil
	}
	rounded := int64(math.Floor(x + 0.5))
	if rounded > 999999999 {
		return "", fmt.Errorf("%w: concentration %v", ErrOutOfRange, x)
	}
	return fmt.Sprintf("D%09d", rounded), nil
}

func encodeIndicator(ind Indicator) string {
	bit := func(b bool) byte {
		if b {
			return '1'
		}
		return '0'
	}
	buf := make([]byte, 0, 9)
	buf = append(buf, 'I', '0')
	buf = append(buf,
		bit(ind.InProgress),
		bit(ind.FitFactor),
		bit(ind.Service),
		bit(ind.LowParticle),
		bit(ind.LowBattery),
		bit(ind.Fail),
		bit(ind.Pass),
	)
	return string(buf)
}
