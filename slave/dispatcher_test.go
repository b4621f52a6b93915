package slave

import (
	"context"
	"io"
	"testing"

	"github.com/arducom-go/arducom/arducomerr"
	"github.com/arducom-go/arducom/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport is an in-memory transport.Transport for dispatcher tests:
// incoming bytes are fed in up front, replies are captured in sent.
type fakeTransport struct {
	incoming []byte
	pos      int
	sent     [][]byte
}

func (f *fakeTransport) Init(ctx context.Context) error { return nil }
func (f *fakeTransport) SendBytes(ctx context.Context, buf []byte, retries int) error {
	f.sent = append(f.sent, append([]byte(nil), buf...))
	return nil
}
func (f *fakeTransport) Request(ctx context.Context, expected int) error { return nil }
func (f *fakeTransport) ReadByte(ctx context.Context) (byte, error) {
	if f.pos >= len(f.incoming) {
		return 0, arducomerr.New(arducomerr.KindNoData, 0)
	}
	b := f.incoming[f.pos]
	f.pos++
	return b, nil
}
func (f *fakeTransport) Done() error                    { return nil }
func (f *fakeTransport) MaximumPayload() int            { return 32 }
func (f *fakeTransport) DefaultExpectedBytes() int      { return 32 }
func (f *fakeTransport) LockKey() uint32                { return 0 }
func (f *fakeTransport) PrintReceiveBuffer(w io.Writer) {}

func noopHandler(ctx *Context, payload []byte) ([]byte, error) {
	return nil, nil
}

func TestDispatcherNoOpCommandSucceeds(t *testing.T) {
	t.Parallel()

	for cmd := byte(0); cmd <= MaxCommandCode; cmd += 17 {
		for _, checksummed := range []bool{false, true} {
			reg := NewRegistry()
			require.NoError(t, reg.Register(&Command{Code: cmd, ExpectedLength: 0, Handler: noopHandler}))

			req, err := frame.BuildRequest(cmd, nil, checksummed)
			require.NoError(t, err)

			ft := &fakeTransport{incoming: req}
			d := NewDispatcher(reg, ft, nil)
			d.Poll(context.Background())

			require.Len(t, ft.sent, 1)
			reply := ft.sent[0]
			assert.Equal(t, cmd|frame.ReplyBit, reply[0])
			if checksummed {
				assert.NotZero(t, reply[1]&frame.ChecksumBit)
			} else {
				assert.Zero(t, reply[1]&frame.ChecksumBit)
			}
			assert.Len(t, reply, len(req)) // no payload either way
		}
	}
}

func TestDispatcherIdempotentWithoutNewInput(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	require.NoError(t, reg.Register(&Command{Code: 1, ExpectedLength: 0, Handler: noopHandler}))

	req, err := frame.BuildRequest(1, nil, false)
	require.NoError(t, err)

	ft := &fakeTransport{incoming: req}
	d := NewDispatcher(reg, ft, nil)

	d.Poll(context.Background())
	require.Len(t, ft.sent, 1)

	d.Poll(context.Background())
	d.Poll(context.Background())
	assert.Len(t, ft.sent, 1, "polling again without new bytes must not re-emit a reply")
}

func TestDispatcherUnknownCommand(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	req, err := frame.BuildRequest(99, nil, false)
	require.NoError(t, err)

	ft := &fakeTransport{incoming: req}
	d := NewDispatcher(reg, ft, nil)
	d.Poll(context.Background())

	require.Len(t, ft.sent, 1)
	assert.Equal(t, []byte{0xFF, 0x81, 0x63}, ft.sent[0])
}

func TestDispatcherParameterMismatch(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	require.NoError(t, reg.Register(&Command{Code: 7, ExpectedLength: 2, Handler: noopHandler}))

	req, err := frame.BuildRequest(7, []byte{0xAA}, false)
	require.NoError(t, err)

	ft := &fakeTransport{incoming: req}
	d := NewDispatcher(reg, ft, nil)
	d.Poll(context.Background())

	require.Len(t, ft.sent, 1)
	assert.Equal(t, []byte{0xFF, 0x83, 0x02}, ft.sent[0])
}

func TestDispatcherChecksumError(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	require.NoError(t, reg.Register(&Command{Code: 5, ExpectedLength: -1, Handler: noopHandler}))

	req, err := frame.BuildRequest(5, []byte{1, 2, 3}, true)
	require.NoError(t, err)
	req[len(req)-1] ^= 0x01 // corrupt last payload byte after checksum was computed

	ft := &fakeTransport{incoming: req}
	d := NewDispatcher(reg, ft, nil)
	d.Poll(context.Background())

	require.Len(t, ft.sent, 1)
	reply := ft.sent[0]
	require.Len(t, reply, 3)
	assert.Equal(t, frame.ErrorLeadByte, reply[0])
	assert.Equal(t, byte(arducomerr.KindChecksumError), reply[1])
}

func TestDispatcherTooMuchData(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()

	// More bytes than the buffer can ever hold (MaximumPayload + frame
	// overhead = 35 for fakeTransport). Every 01 01 01 run would decode
	// as a frame, but ingest drains all available bytes before any decode
	// is attempted, so overflow is detected purely from byte count.
	incoming := make([]byte, 50)
	for i := range incoming {
		incoming[i] = 0x01
	}

	ft := &fakeTransport{incoming: incoming}
	d := NewDispatcher(reg, ft, nil)
	d.Poll(context.Background())

	require.Len(t, ft.sent, 1)
	reply := ft.sent[0]
	require.Len(t, reply, 3)
	assert.Equal(t, frame.ErrorLeadByte, reply[0])
	assert.Equal(t, byte(arducomerr.KindTooMuchData), reply[1])
	assert.Empty(t, d.recvBuf, "overflow must reset the buffer")
}

func TestRegistryUniqueness(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	first := &Command{Code: 3, ExpectedLength: 0, Handler: noopHandler}
	second := &Command{Code: 3, ExpectedLength: 1, Handler: noopHandler}

	require.NoError(t, reg.Register(first))
	err := reg.Register(second)
	assert.ErrorIs(t, err, ErrCommandAlreadyExists)
	assert.Same(t, first, reg.Lookup(3))
}

func TestRegistryRejectsInvalidCode(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	err := reg.Register(&Command{Code: 127, Handler: noopHandler})
	assert.ErrorIs(t, err, ErrCommandCodeInvalid)
}
