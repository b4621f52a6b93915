package stream_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/arducom-go/arducom/transport/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestProxyRelaysOneFrame exercises the proxy-device feature restored
// from the original implementation (spec.md [SUPPLEMENT]): a request
// handed to RelayOnce reaches the upstream device unchanged, and the
// upstream's reply reaches the client unchanged.
func TestProxyRelaysOneFrame(t *testing.T) {
	t.Parallel()

	upstreamProxySide, upstreamDeviceSide := net.Pipe()
	clientProxySide, callerSide := net.Pipe()
	t.Cleanup(func() {
		_ = upstreamProxySide.Close()
		_ = upstreamDeviceSide.Close()
		_ = clientProxySide.Close()
		_ = callerSide.Close()
	})

	p := stream.NewProxy(upstreamProxySide, clientProxySide)

	request := []byte{0x09, 0x01, 0x2A}
	reply := []byte{0x89, 0x01, 0x2B}

	deviceErr := make(chan error, 1)
	go func() {
		buf := make([]byte, len(request))
		_ = upstreamDeviceSide.SetDeadline(time.Now().Add(2 * time.Second))
		if _, err := io.ReadFull(upstreamDeviceSide, buf); err != nil {
			deviceErr <- err
			return
		}
		if !bytes.Equal(buf, request) {
			deviceErr <- fmt.Errorf("device saw %v, want %v", buf, request)
			return
		}
		_, err := upstreamDeviceSide.Write(reply)
		deviceErr <- err
	}()

	callerCh := make(chan []byte, 1)
	go func() {
		buf := make([]byte, len(reply))
		_ = callerSide.SetDeadline(time.Now().Add(2 * time.Second))
		n, _ := io.ReadFull(callerSide, buf)
		callerCh <- buf[:n]
	}()

	require.NoError(t, p.RelayOnce(context.Background(), request, len(reply)))
	require.NoError(t, <-deviceErr)
	assert.Equal(t, reply, <-callerCh)
}
