// Package transport defines the capability set shared by every Arducom
// transport, master and slave alike (spec §4.2): open/init, write a
// frame, request up to N bytes, read one byte, close, report maximum
// payload size, and supply a stable lock key. Concrete transports live in
// sibling packages (serial, i2cbus, tcp, stream) so the "deep
// polymorphism via virtual functions" design note (spec §9) resolves to
// one small concrete type per transport kind instead of an inheritance
// hierarchy.
package transport

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"io"
)

// Transport is implemented by every concrete transport, both master- and
// slave-side.
type Transport interface {
	// Init prepares and opens the endpoint. Must be idempotent with
	// respect to Done.
	Init(ctx context.Context) error

	// SendBytes atomically writes one frame. retries bounds physical
	// write retries only, never protocol-level retries.
	SendBytes(ctx context.Context, buf []byte, retries int) error

	// Request signals intent to receive up to expected bytes. Some
	// transports buffer internally; it may return a timeout error
	// distinct from a generic I/O failure.
	Request(ctx context.Context, expected int) error

	// ReadByte reads exactly one byte from the window opened by the most
	// recent Request call, in order.
	ReadByte(ctx context.Context) (byte, error)

	// Done ends the transaction, releasing or closing transport
	// resources as appropriate for the concrete transport.
	Done() error

	// MaximumPayload is the transport's advertised maximum payload size.
	MaximumPayload() int

	// DefaultExpectedBytes is the transport's default reply size hint
	// when the caller doesn't know the exact expected length.
	DefaultExpectedBytes() int

	// LockKey is a stable identifier for this endpoint, used as an
	// interprocess lock key (spec §4.5). Zero means "no locking."
	LockKey() uint32

	// PrintReceiveBuffer is a diagnostic dump of buffered bytes, for
	// verbose mode.
	PrintReceiveBuffer(w io.Writer)
}

// DefaultMaximumPayload is shared by all three concrete transports (spec
// §4.6): 32 bytes.
const DefaultMaximumPayload = 32

// HashEndpoint derives a lock key from an endpoint identifier (a device
// path or "host:port") by taking the first 4 bytes of its SHA-1 digest as
// a big-endian uint32 (spec §4.5). Independent processes that name the
// same endpoint string arrive at the same key without coordination.
func HashEndpoint(endpoint string) uint32 {
	sum := sha1.Sum([]byte(endpoint))
	return binary.BigEndian.Uint32(sum[:4])
}
