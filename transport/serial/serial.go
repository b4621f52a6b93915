// Package serial implements the Arducom master transport over a POSIX
// serial port (spec §4.2): blocking, byte-at-a-time reads with a
// millisecond poll loop up to the per-op timeout, and a default init
// delay for USB-serial paths to cover host-initiated device resets. The
// input buffer is not flushed on open: bytes already pending on the port
// are read as part of the first reply.
package serial

import (
	"context"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/goburrow/serial"

	"github.com/arducom-go/arducom/arducomerr"
	"github.com/arducom-go/arducom/transport"
)

// DefaultUSBInitDelay is applied once, on Init, when the configured path
// looks like a USB-serial device (spec §4.6: "3000 ms for USB-serial
// paths").
const DefaultUSBInitDelay = 3000 * time.Millisecond

var usbSerialPattern = regexp.MustCompile(`^/dev/(ttyUSB|ttyACM)\d+$`)

// Config configures the serial transport.
type Config struct {
	Address       string
	BaudRate      int
	InitDelay     time.Duration // 0 means "use the USB-serial default if the path matches"
	PollInterval  time.Duration // defaults to 1ms (spec §4.2)
	LockKeyOverride *uint32
}

// Transport is the master-side serial transport.
type Transport struct {
	cfg  Config
	port io.ReadWriteCloser
	buf  []byte // never filled: ReadByte reads straight from the port
}

func New(cfg Config) *Transport {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Millisecond
	}
	return &Transport{cfg: cfg}
}

func (t *Transport) Init(ctx context.Context) (err error) {
	defer arducomerr.DeferWrap(&err, arducomerr.KindTransportError)

	port, err := serial.Open(&serial.Config{
		Address:  t.cfg.Address,
		BaudRate: t.cfg.BaudRate,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  time.Second,
	})
	if err != nil {
		return err
	}
	t.port = port

	delay := t.cfg.InitDelay
	if delay == 0 && usbSerialPattern.MatchString(t.cfg.Address) {
		delay = DefaultUSBInitDelay
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			_ = t.port.Close()
			return ctx.Err()
		}
	}

	return nil
}

func (t *Transport) SendBytes(ctx context.Context, buf []byte, retries int) (err error) {
	defer arducomerr.DeferWrap(&err, arducomerr.KindTransportError)

	for attempt := 0; ; attempt++ {
		_, err = t.port.Write(buf)
		if err == nil {
			return nil
		}
		if attempt >= retries {
			return err
		}
	}
}

// Request is a no-op: serial has no internal buffering beyond the OS's,
// and the one-byte-at-a-time poll loop happens in ReadByte (spec §4.2: "serial ... see byte streams; on request(expected)
// they lazily fetch up to the needed bytes one at a time").
func (t *Transport) Request(ctx context.Context, expected int) error {
	return nil
}

func (t *Transport) ReadByte(ctx context.Context) (b byte, err error) {
	defer arducomerr.DeferWrap(&err, arducomerr.KindTimeout)

	one := make([]byte, 1)
	for {
		n, readErr := t.port.Read(one)
		if n == 1 {
			return one[0], nil
		}
		if readErr != nil && !isTimeoutOrAgain(readErr) {
			return 0, readErr
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(t.cfg.PollInterval):
		}
	}
}

func isTimeoutOrAgain(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "resource temporarily unavailable") ||
		strings.Contains(msg, "eagain")
}

func (t *Transport) Done() error {
	return nil // serial stays open across transactions (spec §4.2, §5)
}

func (t *Transport) Close() error {
	if t.port == nil {
		return nil
	}
	return t.port.Close()
}

func (t *Transport) MaximumPayload() int { return transport.DefaultMaximumPayload }

func (t *Transport) DefaultExpectedBytes() int { return transport.DefaultMaximumPayload }

func (t *Transport) LockKey() uint32 {
	if t.cfg.LockKeyOverride != nil {
		return *t.cfg.LockKeyOverride
	}
	return transport.HashEndpoint(t.cfg.Address)
}

func (t *Transport) PrintReceiveBuffer(w io.Writer) {
	_, _ = w.Write(t.buf)
}

var _ transport.Transport = (*Transport)(nil)
