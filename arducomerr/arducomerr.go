// Package arducomerr defines the Arducom error taxonomy: a byte-sized
// "kind" shared by local (master-side) failures and slave-originated
// reply errors, plus an Error type that keeps the causal chain intact
// across transport boundaries.
package arducomerr

import (
	"fmt"

	"github.com/ansel1/merry/v2"
)

// Kind is either a local master-side failure or the kind byte of a
// slave error reply (0xFF <kind> <info>). Slave-originated kinds start
// at 128 so they fit the single byte the wire format reserves for them.
type Kind byte

const (
	// Local, master-side. These never appear on the wire; they describe
	// why the master could not even get as far as a parsed reply.
	KindNoCommand            Kind = iota // receive attempted before any send
	KindInvalidReply                     // lead byte was 0
	KindInvalidResponse                  // lead byte echoed the wrong command
	KindPayloadTooLong                   // reply claims more than transport max
	KindTransportError                   // underlying I/O failure
	KindTimeout                          // request/read timed out
	KindChecksumFlagMismatch             // reply's checksum bit disagrees with the request's

	// Slave-originated, carried as the second byte of a 3-byte error
	// reply. Values match the wire protocol exactly (spec §7).
	KindNoData            Kind = 128
	KindCommandUnknown    Kind = 129
	KindTooMuchData       Kind = 130
	KindParameterMismatch Kind = 131
	KindBufferOverrun     Kind = 132
	KindChecksumError     Kind = 133
	KindLimitExceeded     Kind = 134
	KindFunctionError     Kind = 254
)

func (k Kind) String() string {
	switch k {
	case KindNoCommand:
		return "no command in flight"
	case KindInvalidReply:
		return "invalid reply"
	case KindInvalidResponse:
		return "invalid response"
	case KindPayloadTooLong:
		return "payload too long"
	case KindTransportError:
		return "transport error"
	case KindTimeout:
		return "timeout"
	case KindChecksumFlagMismatch:
		return "checksum flag mismatch"
	case KindNoData:
		return "no data"
	case KindCommandUnknown:
		return "command unknown"
	case KindTooMuchData:
		return "too much data"
	case KindParameterMismatch:
		return "parameter mismatch"
	case KindBufferOverrun:
		return "buffer overrun"
	case KindChecksumError:
		return "checksum error"
	case KindLimitExceeded:
		return "limit exceeded"
	case KindFunctionError:
		return "function error"
	default:
		return fmt.Sprintf("unknown error kind %d", byte(k))
	}
}

// IsSlaveOriginated reports whether k was carried in a wire error reply
// (as opposed to being detected locally by the master before or while
// parsing one).
func (k Kind) IsSlaveOriginated() bool {
	return k >= KindNoData
}

// Error is the concrete error type returned by frame, transport, master
// and slave code. Info carries context specific to Kind: the expected
// length for ParameterMismatch, the recomputed checksum for
// ChecksumError, the handler's own code for FunctionError, and so on
// (spec §7/GLOSSARY).
type Error struct {
	Kind    Kind
	Info    byte
	Command byte // original request command, when known; 0 if irrelevant
	cause   error
}

func New(kind Kind, info byte) *Error {
	return &Error{Kind: kind, Info: info}
}

func Wrap(kind Kind, info byte, cause error) *Error {
	return &Error{Kind: kind, Info: info, cause: merry.WrapSkipping(cause, 1)}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s (%d); %s", e.Kind, byte(e.Kind), e.cause.Error())
	}
	return fmt.Sprintf("%s (%d); info=%d", e.Kind, byte(e.Kind), e.Info)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// WithCommand returns a shallow copy of e carrying the originating
// command code, used by master.Execute to annotate errors with the
// command number per spec §4.3.
func (e *Error) WithCommand(cmd byte) *Error {
	cp := *e
	cp.Command = cmd
	return &cp
}

// DeferWrap is the shared `defer arducomerr.DeferWrap(&err, KindX)` idiom
// used throughout this module, generalizing the teacher's deferWrap
// helper (util.go) to also classify plain errors under a Kind. If *err is
// already an *Error, only its causal chain gains a stack frame; otherwise
// it is wrapped fresh as kind, preserving the original as the cause.
func DeferWrap(err *error, kind Kind) {
	if *err == nil {
		return
	}
	if ae, ok := As(*err); ok {
		if ae.cause != nil {
			ae.cause = merry.WrapSkipping(ae.cause, 1)
		}
		return
	}
	*err = Wrap(kind, 0, *err)
}

// As extracts an *Error from err, following the merry/stdlib wrapping
// chain, the way callers are expected to branch on Kind.
func As(err error) (*Error, bool) {
	var target *Error
	if errorsAs(err, &target) {
		return target, true
	}
	return nil, false
}

// errorsAs walks the single-error Unwrap chain by hand, so this file
// needs no "errors" import; it stops at the first *Error it meets.
func errorsAs(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
