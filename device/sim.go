package device

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Simulator is an in-memory stand-in for the instrument: it answers
// command echoes, a canned settings dump, and lets a test inject Sample
// lines on demand. It satisfies io.ReadWriteCloser the same way a real
// serial.Port does, so it can be handed straight to newDevice.
//
// Unlike the synchronous request/response protocol a byte-oriented
// engraver speaks, this instrument's wire protocol is asynchronous and
// line-oriented, so the simulator is built on a pair of io.Pipes plus a
// reacting goroutine rather than a single request/response channel.
type Simulator struct {
	toCtrlR *io.PipeReader
	toCtrl  *io.PipeWriter

	fromCtrlR *io.PipeReader
	fromCtrl  *io.PipeWriter

	mu        sync.Mutex
	closeOnce sync.Once
}

// NewSimulator starts a Simulator. The caller must eventually Close it.
func NewSimulator() *Simulator {
	toCtrlR, toCtrlW := io.Pipe()
	fromCtrlR, fromCtrlW := io.Pipe()
	s := &Simulator{
		toCtrlR:   toCtrlR,
		toCtrl:    toCtrlW,
		fromCtrlR: fromCtrlR,
		fromCtrl:  fromCtrlW,
	}
	go s.run()
	return s
}

func (s *Simulator) Read(p []byte) (int, error)  { return s.toCtrlR.Read(p) }
func (s *Simulator) Write(p []byte) (int, error) { return s.fromCtrl.Write(p) }

func (s *Simulator) Close() error {
	s.closeOnce.Do(func() {
		s.fromCtrl.Close()
		s.toCtrl.Close()
	})
	return nil
}

// PushLine injects a raw wire line as if the instrument had sent it.
func (s *Simulator) PushLine(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.toCtrl, "%s\r\n", line)
}

// PushSample injects a Sample reading.
func (s *Simulator) PushSample(v float64) {
	s.PushLine(fmt.Sprintf("%09.2f", v))
}

// run reacts to lines the device-under-test writes, echoing command
// acknowledgements and answering RequestSettings with a canned dump.
func (s *Simulator) run() {
	r := bufio.NewReader(s.fromCtrlR)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		s.react(line)
	}
}

func (s *Simulator) react(line string) {
	switch {
	case line == "J":
		s.PushLine("OK")
	case line == "S":
		s.pushSettingsDump()
	case line == "":
	default:
		// Every other recognised command (VN, VF/VO, G, K, B.., N..,
		// D.........., I0.......) is echoed back verbatim: the real
		// instrument's command-echo wire form is identical to the
		// command it just received.
		s.PushLine(line)
	}
}

func (s *Simulator) pushSettingsDump() {
	s.PushLine("STPA004")
	s.PushLine("STA005")
	s.PushLine("STPM00030")
	s.PushLine("STM00030")
	s.PushLine("SP00100")
	s.PushLine("SS0012345")
	s.PushLine("SR0036")
	s.PushLine("SD0124")
}
