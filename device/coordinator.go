package device

import (
	"log"
	"time"

	"portacount.dev/fittest"
	"portacount.dev/protocol"
)

// coordinator implements spec.md §4.5's main loop: it owns the valve
// state, the in-flight test (if any), and the settings aggregator, and
// is the sole writer of cmdCh.
type coordinator struct {
	opts   Options
	notify func(DeviceNotification)

	cmdCh      chan<- protocol.Command
	actions    <-chan Action
	msgCh      <-chan protocol.Message
	tickCh     <-chan struct{}
	writerDone <-chan struct{}

	valve fittest.ValveState
	test  *fittest.Test
	props propertiesAggregator
}

func (c *coordinator) run() {
	defer close(c.cmdCh)

	c.enqueue(protocol.Command{Kind: protocol.EnterExternalControl})
	c.enqueue(protocol.Command{Kind: protocol.RequestSettings})

	for {
		var msg protocol.Message
		haveMsg := false

		select {
		case m, ok := <-c.msgCh:
			if !ok {
				c.notify(DeviceNotification{Kind: ConnectionClosed})
				return
			}
			msg, haveMsg = m, true
		case <-c.tickCh:
		case <-c.writerDone:
			c.notify(DeviceNotification{Kind: ConnectionClosed})
			return
		case <-time.After(c.opts.CoordinatorTick):
		}

		if haveMsg && msg.Kind == protocol.Sample {
			c.notify(DeviceNotification{Kind: Sample, Concentration: msg.Value})
		}

		select {
		case act, ok := <-c.actions:
			if !ok {
				c.enqueue(protocol.Command{Kind: protocol.ExitExternalControl})
				c.notify(DeviceNotification{Kind: ConnectionClosed})
				return
			}
			if c.handleAction(act) {
				return
			}
		default:
		}

		if haveMsg {
			if c.processMessage(msg) {
				return
			}
		}
	}
}

func (c *coordinator) enqueue(cmd protocol.Command) {
	select {
	case c.cmdCh <- cmd:
	default:
		log.Printf("device: command queue full, dropping %v", cmd.Kind)
	}
}

// handleAction implements spec.md §4.5 step 3. It returns true if the
// coordinator should exit.
func (c *coordinator) handleAction(act Action) bool {
	switch act.Kind {
	case StartTest:
		t, cmds, err := fittest.New(act.Config, c.valve, act.DeviceID, act.Synchroniser, act.TestCallback)
		if err != nil {
			log.Printf("device: start test: %v", err)
			return false
		}
		c.test = t
		for _, cmd := range cmds {
			c.enqueue(cmd)
		}
		c.notify(DeviceNotification{Kind: TestStarted})
	case CancelTest:
		c.enqueue(protocol.Command{Kind: protocol.ClearDisplay})
		c.enqueue(protocol.Command{Kind: protocol.ValveSpecimen})
		c.valve = fittest.AwaitingSpecimen
		c.notify(DeviceNotification{Kind: TestCancelled})
		c.test = nil
	case CloseConnection:
		c.enqueue(protocol.Command{Kind: protocol.ExitExternalControl})
		return true
	}
	return false
}

// processMessage implements spec.md §4.5 steps 4-6. It returns true if
// the coordinator should exit.
func (c *coordinator) processMessage(msg protocol.Message) bool {
	switch msg.Kind {
	case protocol.Setting:
		if props, ready := c.props.feed(msg.Setting); ready {
			c.notify(DeviceNotification{Kind: DevicePropertiesReady, Properties: props})
		}
	case protocol.Response:
		switch msg.Command.Kind {
		case protocol.ValveAmbient:
			c.valve = fittest.Ambient
		case protocol.ValveSpecimen:
			c.valve = fittest.Specimen
		}
	case protocol.ErrorResponse, protocol.UnknownError:
		log.Printf("device: device-reported error: %+v", msg)
	}

	if c.test != nil {
		outcome, cmds, err := c.test.Step(msg, &c.valve)
		for _, cmd := range cmds {
			c.enqueue(cmd)
		}
		switch {
		case err != nil:
			log.Printf("device: test step: %v", err)
			c.test = nil
		case outcome == fittest.TestComplete:
			c.notify(DeviceNotification{Kind: TestCompleted, FitFactors: c.test.ExerciseFFs()})
			c.test = nil
		}
	}

	if c.test == nil && msg.Kind == protocol.Sample {
		c.enqueue(protocol.NewDisplayConcentration(msg.Value))
	}
	return false
}
