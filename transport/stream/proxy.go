package stream

import (
	"context"
	"io"

	"github.com/arducom-go/arducom/arducomerr"
)

// Proxy forwards raw bytes between an upstream transport and a second
// stream, letting a device expose another device's Arducom port (spec
// §4.2, restored per spec.md's [SUPPLEMENT] note: the original's
// ArducomI2C proxy-device feature, dropped by the distillation).
//
// Proxy does not parse frames; it is a byte-granular relay, so the
// upstream device sees exactly the same request/reply bytes a directly
// attached master would have sent.
type Proxy struct {
	upstream io.ReadWriter
	client   io.ReadWriter
}

func NewProxy(upstream, client io.ReadWriter) *Proxy {
	return &Proxy{upstream: upstream, client: client}
}

// RelayOnce forwards exactly one frame's worth of traffic: request (the
// bytes the caller has already taken from the client) goes to upstream,
// and whatever upstream replies goes back to the client. RelayOnce never
// reads from the client stream itself. expectedReplyBytes must match what the caller
// expects the upstream reply to be (there is no framing information
// available to the proxy itself).
func (p *Proxy) RelayOnce(ctx context.Context, request []byte, expectedReplyBytes int) (err error) {
	defer arducomerr.DeferWrap(&err, arducomerr.KindTransportError)

	if _, err = p.upstream.Write(request); err != nil {
		return err
	}

	reply := make([]byte, expectedReplyBytes)
	if _, err = io.ReadFull(p.upstream, reply); err != nil {
		return err
	}

	_, err = p.client.Write(reply)
	return err
}
