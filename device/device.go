package device

import (
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/tarm/serial"

	"portacount.dev/fittest"
	"portacount.dev/protocol"
)

// Open opens the instrument's serial line at the hardware parameters of
// spec.md §6: 1200 baud, 8N1.
func Open(path string) (io.ReadWriteCloser, error) {
	c := &serial.Config{Name: path, Baud: 1200}
	return serial.OpenPort(c)
}

// Device owns one instrument session: the reader, writer, and
// coordinator goroutines, and the action channel the embedder drives.
type Device struct {
	actions chan Action
	conn    io.Closer

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Connect opens path and starts a Device session against it, delivering
// DeviceNotification values to notify.
func Connect(path string, notify func(DeviceNotification)) (*Device, error) {
	return ConnectOptions(path, notify, DefaultOptions)
}

// ConnectOptions is Connect with explicit pacing/timeout overrides.
func ConnectOptions(path string, notify func(DeviceNotification), opts Options) (*Device, error) {
	conn, err := Open(path)
	if err != nil {
		return nil, err
	}
	return newDevice(conn, notify, opts), nil
}

// newDevice wires conn into the three-role pipeline. It is split out
// from Connect so tests can drive a Simulator instead of a real port.
func newDevice(conn io.ReadWriteCloser, notify func(DeviceNotification), opts Options) *Device {
	cmdCh := make(chan protocol.Command, 64)
	msgCh := make(chan protocol.Message, 16)
	tickCh := make(chan struct{}, 1)
	actions := make(chan Action, 8)
	writerDone := make(chan struct{})

	d := &Device{actions: actions, conn: conn}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		runWriter(conn, cmdCh, opts.WriterPace, writerDone)
	}()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if runtime.GOOS == "windows" {
			time.Sleep(opts.OpenSettleDelay)
			drainBuffered(conn, 50*time.Millisecond)
		}
		runReader(conn, msgCh, tickCh, opts.ReaderIdleTimeout)
	}()

	c := &coordinator{
		opts:       opts,
		notify:     notify,
		cmdCh:      cmdCh,
		actions:    actions,
		msgCh:      msgCh,
		tickCh:     tickCh,
		writerDone: writerDone,
		valve:      fittest.Specimen,
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		c.run()
	}()

	return d
}

// PerformAction submits a to the device coordinator. It is safe to call
// concurrently with Close: a send racing a concurrent Close is silently
// dropped rather than panicking on the closed action channel.
func (d *Device) PerformAction(a Action) {
	defer func() { recover() }()
	d.actions <- a
}

// Close tears the session down: it signals the coordinator, closes the
// underlying connection (unblocking a pending reader read), and waits
// for all three goroutines to exit.
func (d *Device) Close() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.actions)
		err = d.conn.Close()
		d.wg.Wait()
	})
	return err
}

func drainBuffered(conn io.Reader, quiet time.Duration) {
	buf := make([]byte, 256)
	result := make(chan int, 1)
	for {
		go func() {
			n, err := conn.Read(buf)
			if err != nil {
				result <- 0
				return
			}
			result <- n
		}()
		select {
		case n := <-result:
			if n == 0 {
				return
			}
		case <-time.After(quiet):
			return
		}
	}
}
