package slave

import (
	"bytes"
	"context"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/arducom-go/arducom/arducomerr"
	"github.com/arducom-go/arducom/frame"
	"github.com/arducom-go/arducom/transport"
)

// DefaultReceiveTimeout is the default per-transaction receive timeout
// (spec §4.4, §4.6: "default ~500ms where defined").
const DefaultReceiveTimeout = 500 * time.Millisecond

// frameOverhead is the command and code byte every request carries ahead
// of its payload, plus the optional checksum byte (spec §3).
const frameOverhead = 3

// Dispatcher drives the slave steady-state loop: one Poll call per
// main-loop iteration (spec §4.4).
type Dispatcher struct {
	registry  *Registry
	transport transport.Transport
	logger    *slog.Logger
	timeout   time.Duration
	maxBuf    int

	recvBuf      []byte
	lastByteTime time.Time
}

func NewDispatcher(registry *Registry, t transport.Transport, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry:  registry,
		transport: t,
		logger:    logger,
		timeout:   DefaultReceiveTimeout,
		maxBuf:    t.MaximumPayload() + frameOverhead,
	}
}

// SetReceiveTimeout overrides DefaultReceiveTimeout.
func (d *Dispatcher) SetReceiveTimeout(timeout time.Duration) {
	d.timeout = timeout
}

// SetMaxBufferSize overrides the receive buffer's capacity, derived by
// default from the transport's MaximumPayload (spec §3: "fixed-capacity
// byte array (<= 64; 32 typical)").
func (d *Dispatcher) SetMaxBufferSize(n int) {
	d.maxBuf = n
}

// Poll ingests whatever bytes the transport has available, checks
// whether a full frame is now buffered, and if so looks up the command,
// verifies its expected length and checksum, invokes the handler, and
// emits the reply. It never blocks (spec §5: "a single poll() returns
// promptly whether or not a command was handled").
func (d *Dispatcher) Poll(ctx context.Context) {
	d.ingest(ctx)

	if len(d.recvBuf) == 0 {
		return
	}

	req, ok := frame.TryDecodeRequest(d.recvBuf)
	if !ok {
		if !d.lastByteTime.IsZero() && time.Since(d.lastByteTime) > d.timeout {
			var transportBuf bytes.Buffer
			d.transport.PrintReceiveBuffer(&transportBuf)
			d.logger.Debug("arducom: receive timeout, resetting buffer",
				"buffered", len(d.recvBuf), "transportHex", hex.EncodeToString(transportBuf.Bytes()))
			d.recvBuf = d.recvBuf[:0]
		}
		return
	}

	d.dispatch(ctx, req)
	d.recvBuf = d.recvBuf[req.TotalSize:]
}

// ingest drains whatever bytes are immediately available without
// blocking: ReadByte returning an error just means "nothing more right
// now" for every concrete slave transport. A frame that overruns the
// fixed-capacity receive buffer (spec §3) aborts the buffer immediately
// with a TOO_MUCH_DATA reply, mirroring the original's
// receiveEvent/doWork overflow handling
// (original_source/src/slave/lib/Arducom/Arducom.cpp,
// ArducomI2C.cpp:25,48).
func (d *Dispatcher) ingest(ctx context.Context) {
	for {
		b, err := d.transport.ReadByte(ctx)
		if err != nil {
			return
		}
		if len(d.recvBuf) >= d.maxBuf {
			d.logger.Warn("arducom: receive buffer overflow, resetting", "capacity", d.maxBuf)
			d.recvBuf = d.recvBuf[:0]
			if sendErr := d.transport.SendBytes(ctx, frame.BuildErrorReply(arducomerr.KindTooMuchData, byte(d.maxBuf)), 0); sendErr != nil {
				d.logger.Warn("arducom: failed to send reply", "err", sendErr)
			}
			return
		}
		d.recvBuf = append(d.recvBuf, b)
		d.lastByteTime = time.Now()
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, req frame.DecodedRequest) {
	var replyFrame []byte

	switch cmd := d.registry.Lookup(req.Command); {
	case cmd == nil:
		replyFrame = frame.BuildErrorReply(arducomerr.KindCommandUnknown, req.Command)

	case cmd.ExpectedLength >= 0 && req.Length != cmd.ExpectedLength:
		replyFrame = frame.BuildErrorReply(arducomerr.KindParameterMismatch, byte(cmd.ExpectedLength))

	case req.Checksummed:
		if computed, ok := req.VerifyChecksum(); !ok {
			replyFrame = frame.BuildErrorReply(arducomerr.KindChecksumError, computed)
		} else {
			replyFrame = d.invoke(cmd, req)
		}

	default:
		replyFrame = d.invoke(cmd, req)
	}

	if err := d.transport.SendBytes(ctx, replyFrame, 0); err != nil {
		d.logger.Warn("arducom: failed to send reply", "err", err)
	}
}

func (d *Dispatcher) invoke(cmd *Command, req frame.DecodedRequest) []byte {
	hctx := &Context{
		MaxReplySize: d.transport.MaximumPayload(),
		Logger:       d.logger,
	}

	reply, err := cmd.Handler(hctx, req.Payload)
	if err != nil {
		aerr, ok := arducomerr.As(err)
		if !ok {
			aerr = arducomerr.New(arducomerr.KindFunctionError, 0)
		}
		return frame.BuildErrorReply(aerr.Kind, aerr.Info)
	}

	if len(reply) > hctx.MaxReplySize {
		return frame.BuildErrorReply(arducomerr.KindBufferOverrun, byte(len(reply)))
	}

	out, err := frame.BuildSuccessReply(req.Command, reply, req.Checksummed)
	if err != nil {
		return frame.BuildErrorReply(arducomerr.KindBufferOverrun, byte(len(reply)))
	}
	return out
}
