// Package master implements the Arducom master execute engine (spec
// §4.3): lock the shared bus, send one request frame, then poll for a
// reply with a delay/retry policy, mapping reply codes onto the shared
// error taxonomy.
package master

import (
	"bytes"
	"context"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/arducom-go/arducom/arducomerr"
	"github.com/arducom-go/arducom/frame"
	"github.com/arducom-go/arducom/iplock"
	"github.com/arducom-go/arducom/transport"
)

// Parameters are the per-call transaction options (spec §3).
type Parameters struct {
	Checksummed bool
	DelayMS     int
	TimeoutMS   int
	Retries     int
	Verbose     bool
	VeryVerbose bool

	// LockKeyOverride wins over the transport's own LockKey when >= 0.
	// -1 means "unset" (spec §4.3 point 1).
	LockKeyOverride int64
}

// DefaultHostTimeoutMS is the host-side per-op timeout default (spec
// §4.6: 5000ms, "to distinguish unreachable from slow").
const DefaultHostTimeoutMS = 5000

// Master executes transactions against one transport.
type Master struct {
	t         transport.Transport
	logger    *slog.Logger
	lastErr   error
	closeable bool // true once Init has succeeded; guards double-close
}

// New wraps t. t must already be safe to call Init on.
func New(t transport.Transport) *Master {
	return &Master{t: t, logger: slog.Default()}
}

// SetLogger overrides the logger used for verbose-mode hex dumps.
func (m *Master) SetLogger(logger *slog.Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// Open initializes the underlying transport.
func (m *Master) Open(ctx context.Context) error {
	if err := m.t.Init(ctx); err != nil {
		m.lastErr = err
		return err
	}
	m.closeable = true
	return nil
}

// Close ends any transaction left open by Execute(closeAfter=false) by
// calling the transport's Done, then tears down the transport. Safe to
// call multiple times.
func (m *Master) Close() error {
	if !m.closeable {
		return nil
	}
	m.closeable = false
	doneErr := m.t.Done()
	if closer, ok := m.t.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return doneErr
}

// LastError returns the most recently observed error, for callers (the
// CLI) that want to use it as a process exit code (spec §7).
func (m *Master) LastError() error { return m.lastErr }

// logHex renders a byte slice as a slog attribute, generalizing the
// teacher's logHex helper to the master's own hex-dump diagnostics.
func logHex(key string, value []byte) slog.Attr {
	return slog.String(key, hex.EncodeToString(value))
}

// Execute runs one transaction: lock -> send -> delay -> poll/retry ->
// unlock -> return payload or typed error (spec §4.3). info carries a
// handler's own error code when err wraps KindFunctionError; it is 0
// otherwise. closeAfter controls whether the transport's Done() is
// called before Execute returns (spec §4.3 point 5); pass false to defer
// it to an explicit Close call, e.g. to keep a TCP connection open
// across several FTP commands issued back to back.
func (m *Master) Execute(ctx context.Context, params Parameters, cmd byte, payload []byte, expectedLen int, closeAfter bool) (reply []byte, info byte, err error) {
	defer func() {
		if err != nil {
			m.lastErr = err
		}
	}()

	verbose := params.Verbose || params.VeryVerbose

	lockKey := m.t.LockKey()
	if params.LockKeyOverride >= 0 {
		lockKey = uint32(params.LockKeyOverride)
	}

	lock, err := iplock.New(lockKey)
	if err != nil {
		return nil, 0, err
	}

	timeout := time.Duration(params.TimeoutMS) * time.Millisecond
	if err = lock.Acquire(ctx, timeout); err != nil {
		return nil, 0, err
	}
	defer func() {
		_ = lock.Release()
		if closeAfter {
			_ = m.t.Done()
		}
	}()

	req, err := frame.BuildRequest(cmd, payload, params.Checksummed)
	if err != nil {
		return nil, 0, err
	}

	if verbose {
		m.logger.Info("arducom: send", "command", cmd, logHex("hex", req))
	}

	if err = m.t.SendBytes(ctx, req, 0); err != nil {
		wrapped := arducomerr.Wrap(arducomerr.KindTransportError, 0, err).WithCommand(cmd)
		return nil, 0, wrapped
	}

	retriesLeft := params.Retries
	maxPayload := m.t.MaximumPayload()

	for {
		if params.DelayMS > 0 {
			select {
			case <-time.After(time.Duration(params.DelayMS) * time.Millisecond):
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			}
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if params.TimeoutMS > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, time.Duration(params.TimeoutMS)*time.Millisecond)
		}

		if err = m.t.Request(attemptCtx, expectedLen); err != nil {
			if cancel != nil {
				cancel()
			}
			if retriesLeft > 0 && isRetryable(err) {
				retriesLeft--
				continue
			}
			return nil, 0, err
		}

		readByte := func() (byte, error) { return m.t.ReadByte(attemptCtx) }
		reply, err = frame.ParseReply(cmd, maxPayload, expectedLen, params.Checksummed, readByte)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			if verbose {
				m.logger.Info("arducom: recv", "command", cmd, logHex("hex", reply))
			}
			if params.VeryVerbose {
				var buf bytes.Buffer
				m.t.PrintReceiveBuffer(&buf)
				m.logger.Debug("arducom: receive buffer", logHex("hex", buf.Bytes()))
			}
			return reply, 0, nil
		}

		if aerr, ok := arducomerr.As(err); ok {
			// A timeout surfaced from the transport itself is treated
			// like NO_DATA for retry purposes (spec §7: "the execute
			// loop converts this into the slave-originated NO_DATA code
			// so the retry policy handles it uniformly").
			if (aerr.Kind == arducomerr.KindNoData || aerr.Kind == arducomerr.KindTimeout) && retriesLeft > 0 {
				retriesLeft--
				continue
			}
			if aerr.Kind == arducomerr.KindFunctionError {
				return nil, aerr.Info, aerr.WithCommand(cmd)
			}
			return nil, 0, aerr.WithCommand(cmd)
		}

		// Unclassified failure (not an *arducomerr.Error at all): no
		// concrete transport produces these, but absorb it into the
		// retry policy rather than failing fast on something we can't
		// even name.
		if retriesLeft > 0 {
			retriesLeft--
			continue
		}
		return nil, 0, arducomerr.Wrap(arducomerr.KindTimeout, 0, err).WithCommand(cmd)
	}
}

// isRetryable reports whether a transport-level Request failure should
// be treated as a NO_DATA-style retryable condition rather than an
// immediate failure.
func isRetryable(err error) bool {
	aerr, ok := arducomerr.As(err)
	if !ok {
		return true // unclassified transport hiccup: let the retry loop absorb it
	}
	switch aerr.Kind {
	case arducomerr.KindChecksumError, arducomerr.KindPayloadTooLong, arducomerr.KindChecksumFlagMismatch:
		return false
	default:
		return true
	}
}
