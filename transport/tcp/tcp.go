// Package tcp implements the Arducom master and slave transports over a
// TCP socket (spec §4.2): the master opens a new connection per
// transaction (Nagle disabled, timeouts set) and closes it on Done; the
// slave listens and accepts one connection at a time (the
// Ethernet/WiFi slave transport, spec §4.2 "slave transports mirror
// these").
package tcp

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/arducom-go/arducom/arducomerr"
	"github.com/arducom-go/arducom/transport"
)

// DefaultPort is the reference host tool's default TCP port (spec §6).
const DefaultPort = 4152

// Config configures the master TCP transport.
type Config struct {
	Address         string // host:port
	Timeout         time.Duration
	LockKeyOverride *uint32
}

// MasterTransport dials a fresh connection for every transaction.
type MasterTransport struct {
	cfg  Config
	conn net.Conn
}

func NewMaster(cfg Config) *MasterTransport {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &MasterTransport{cfg: cfg}
}

func (m *MasterTransport) Init(ctx context.Context) (err error) {
	defer arducomerr.DeferWrap(&err, arducomerr.KindTransportError)

	d := net.Dialer{Timeout: m.cfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", m.cfg.Address)
	if err != nil {
		return err
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	m.conn = conn
	return nil
}

func (m *MasterTransport) SendBytes(ctx context.Context, buf []byte, retries int) (err error) {
	defer arducomerr.DeferWrap(&err, arducomerr.KindTransportError)

	// The previous transaction's Done closed the connection; dial anew.
	if m.conn == nil {
		if err = m.Init(ctx); err != nil {
			return err
		}
	}

	_ = m.conn.SetWriteDeadline(time.Now().Add(m.cfg.Timeout))
	for attempt := 0; ; attempt++ {
		_, err = m.conn.Write(buf)
		if err == nil {
			return nil
		}
		if attempt >= retries {
			return err
		}
	}
}

func (m *MasterTransport) Request(ctx context.Context, expected int) error {
	return m.conn.SetReadDeadline(time.Now().Add(m.cfg.Timeout))
}

func (m *MasterTransport) ReadByte(ctx context.Context) (b byte, err error) {
	defer arducomerr.DeferWrap(&err, arducomerr.KindTimeout)

	one := make([]byte, 1)
	if _, err = io.ReadFull(m.conn, one); err != nil {
		return 0, err
	}
	return one[0], nil
}

// Done closes the per-transaction connection (spec §4.2, §5: "connections
// that are per-transaction (TCP) are opened in send_bytes and closed in
// done").
func (m *MasterTransport) Done() error {
	if m.conn == nil {
		return nil
	}
	err := m.conn.Close()
	m.conn = nil
	return err
}

func (m *MasterTransport) MaximumPayload() int       { return transport.DefaultMaximumPayload }
func (m *MasterTransport) DefaultExpectedBytes() int { return transport.DefaultMaximumPayload }

func (m *MasterTransport) LockKey() uint32 {
	if m.cfg.LockKeyOverride != nil {
		return *m.cfg.LockKeyOverride
	}
	return transport.HashEndpoint(m.cfg.Address)
}

func (m *MasterTransport) PrintReceiveBuffer(w io.Writer) {}

var _ transport.Transport = (*MasterTransport)(nil)

// SlaveTransport accepts one connection at a time on a listening socket.
type SlaveTransport struct {
	ln   net.Listener
	conn net.Conn
}

func NewSlave(addr string) (*SlaveTransport, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, arducomerr.Wrap(arducomerr.KindTransportError, 0, err)
	}
	return &SlaveTransport{ln: ln}, nil
}

func (s *SlaveTransport) Init(ctx context.Context) (err error) {
	defer arducomerr.DeferWrap(&err, arducomerr.KindTransportError)

	conn, err := s.ln.Accept()
	if err != nil {
		return err
	}
	s.conn = conn
	return nil
}

func (s *SlaveTransport) SendBytes(ctx context.Context, buf []byte, retries int) (err error) {
	defer arducomerr.DeferWrap(&err, arducomerr.KindTransportError)
	_, err = s.conn.Write(buf)
	return err
}

func (s *SlaveTransport) Request(ctx context.Context, expected int) error { return nil }

func (s *SlaveTransport) ReadByte(ctx context.Context) (b byte, err error) {
	defer arducomerr.DeferWrap(&err, arducomerr.KindTimeout)
	one := make([]byte, 1)
	_ = s.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, err = io.ReadFull(s.conn, one); err != nil {
		return 0, err
	}
	return one[0], nil
}

func (s *SlaveTransport) Done() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

func (s *SlaveTransport) Close() error {
	return s.ln.Close()
}

func (s *SlaveTransport) MaximumPayload() int       { return transport.DefaultMaximumPayload }
func (s *SlaveTransport) DefaultExpectedBytes() int { return transport.DefaultMaximumPayload }
func (s *SlaveTransport) LockKey() uint32           { return 0 }
func (s *SlaveTransport) PrintReceiveBuffer(w io.Writer) {}

var _ transport.Transport = (*SlaveTransport)(nil)
