package stream_test

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/arducom-go/arducom/frame"
	"github.com/arducom-go/arducom/slave"
	"github.com/arducom-go/arducom/transport/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadByteNeverBlocksWithoutData(t *testing.T) {
	t.Parallel()

	a, b := net.Pipe()
	t.Cleanup(func() { _ = a.Close(); _ = b.Close() })

	tr := stream.New(a, 0)

	done := make(chan struct{})
	go func() {
		_, _ = tr.ReadByte(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("ReadByte blocked waiting for data")
	}
}

func TestPrintReceiveBufferReflectsBufferedBytes(t *testing.T) {
	t.Parallel()

	a, b := net.Pipe()
	t.Cleanup(func() { _ = a.Close(); _ = b.Close() })

	tr := stream.New(a, 0)

	go func() {
		_ = b.SetWriteDeadline(time.Now().Add(2 * time.Second))
		_, _ = b.Write([]byte{1, 2, 3})
	}()

	require.Eventually(t, func() bool {
		var buf bytes.Buffer
		tr.PrintReceiveBuffer(&buf)
		return bytes.Equal(buf.Bytes(), []byte{1, 2, 3})
	}, 2*time.Second, time.Millisecond)
}

// TestDispatcherRoundTripOverStream proves the stream transport works as
// a real slave endpoint: the dispatcher polls it repeatedly without ever
// blocking, and once a full request has arrived it decodes, dispatches,
// and replies correctly.
func TestDispatcherRoundTripOverStream(t *testing.T) {
	t.Parallel()

	a, b := net.Pipe()
	t.Cleanup(func() { _ = a.Close(); _ = b.Close() })

	tr := stream.New(a, 0)

	registry := slave.NewRegistry()
	require.NoError(t, registry.Register(&slave.Command{
		Code:           9,
		ExpectedLength: 1,
		Handler: func(ctx *slave.Context, payload []byte) ([]byte, error) {
			return []byte{payload[0] + 1}, nil
		},
	}))
	dispatcher := slave.NewDispatcher(registry, tr, nil)

	req, err := frame.BuildRequest(9, []byte{41}, false)
	require.NoError(t, err)

	go func() {
		_ = b.SetWriteDeadline(time.Now().Add(2 * time.Second))
		_, _ = b.Write(req)
	}()

	replyCh := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 3)
		_ = b.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, _ := b.Read(buf)
		replyCh <- buf[:n]
	}()

	ctx := context.Background()
	require.Eventually(t, func() bool {
		dispatcher.Poll(ctx)
		select {
		case reply := <-replyCh:
			assert.Equal(t, []byte{0x89, 0x01, 42}, reply)
			return true
		default:
			return false
		}
	}, 2*time.Second, time.Millisecond, "dispatcher never produced the reply")
}
