// Package stream implements the generic Arducom transport over any
// io.ReadWriter (spec §4.2: "a passive reader that appends incoming
// bytes into a fixed buffer until the dispatcher considers the frame
// complete"). It is used directly by tests and by slave endpoints whose
// underlying device is already an io.ReadWriter (a pty, stdin/stdout, a
// pipe to another process).
package stream

import (
	"context"
	"io"
	"sync"

	"github.com/arducom-go/arducom/arducomerr"
	"github.com/arducom-go/arducom/transport"
)

// Transport wraps rw. A background goroutine performs the blocking
// byte-at-a-time reads the underlying io.ReadWriter requires and
// deposits them into an in-memory buffer, mirroring how i2cbus's
// SlaveTransport lets an ISR deposit bytes independently of the
// dispatcher's poll loop (spec §5: "the ISR deposits incoming bytes ...
// main loop drains them"). ReadByte only ever inspects that buffer, so
// it never blocks the caller, which matters for slave endpoints where
// Poll must return promptly (spec §4.4, §5).
type Transport struct {
	rw              io.ReadWriter
	lockKey         uint32
	maximumPayload  int
	defaultExpected int

	mu      sync.Mutex
	buf     []byte
	readErr error
}

// New wraps rw and starts the background read pump. lockKey is typically
// 0 (stream endpoints are usually process-local and need no
// cross-process serialisation) but can be set for a named pipe shared
// between processes.
func New(rw io.ReadWriter, lockKey uint32) *Transport {
	t := &Transport{
		rw:              rw,
		lockKey:         lockKey,
		maximumPayload:  transport.DefaultMaximumPayload,
		defaultExpected: transport.DefaultMaximumPayload,
	}
	go t.pump()
	return t
}

// pump blocks on rw.Read the way a real serial device or pipe would,
// appending each byte it receives to the shared buffer. It exits once rw
// reports an error (closed connection, EOF).
func (t *Transport) pump() {
	one := make([]byte, 1)
	for {
		n, err := t.rw.Read(one)
		if n == 1 {
			t.mu.Lock()
			t.buf = append(t.buf, one[0])
			t.mu.Unlock()
		}
		if err != nil {
			t.mu.Lock()
			t.readErr = err
			t.mu.Unlock()
			return
		}
	}
}

func (t *Transport) Init(ctx context.Context) error { return nil }

func (t *Transport) SendBytes(ctx context.Context, buf []byte, retries int) (err error) {
	defer arducomerr.DeferWrap(&err, arducomerr.KindTransportError)

	for attempt := 0; ; attempt++ {
		_, err = t.rw.Write(buf)
		if err == nil {
			return nil
		}
		if attempt >= retries {
			return err
		}
	}
}

func (t *Transport) Request(ctx context.Context, expected int) error { return nil }

// ReadByte never blocks: it reports NO_DATA immediately if the pump
// hasn't buffered a byte yet, the same way i2cbus's SlaveTransport does
// (spec §5).
func (t *Transport) ReadByte(ctx context.Context) (byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.buf) == 0 {
		if t.readErr != nil {
			return 0, arducomerr.Wrap(arducomerr.KindTransportError, 0, t.readErr)
		}
		return 0, arducomerr.New(arducomerr.KindNoData, 0)
	}
	b := t.buf[0]
	t.buf = t.buf[1:]
	return b, nil
}

func (t *Transport) Done() error { return nil }

func (t *Transport) MaximumPayload() int       { return t.maximumPayload }
func (t *Transport) DefaultExpectedBytes() int { return t.defaultExpected }
func (t *Transport) LockKey() uint32           { return t.lockKey }

// PrintReceiveBuffer dumps whatever bytes the pump has buffered but the
// dispatcher hasn't yet consumed.
func (t *Transport) PrintReceiveBuffer(w io.Writer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = w.Write(t.buf)
}

var _ transport.Transport = (*Transport)(nil)
