// Package slave implements the Arducom device-side dispatcher: a
// length-driven command registry, a receive-buffer completeness check,
// and reply emission (spec §4.4).
package slave

import "errors"

// MaxCommandCode is the highest legal command code (spec §3: "Command
// byte value is 0..126 inclusive").
const MaxCommandCode = 126

// HandlerFunc implements one command. A nil error means success and
// reply becomes the success frame's payload; a non-nil error is expected
// to be (or wrap) an *arducomerr.Error carrying the kind and info byte
// the error reply should carry. Any other error type is treated as
// KindFunctionError with info 0.
type HandlerFunc func(ctx *Context, payload []byte) (reply []byte, err error)

// Command is one registered (code, expected-length, handler) entry (spec
// §3). ExpectedLength of -1 means variable length.
type Command struct {
	Code           byte
	ExpectedLength int
	Handler        HandlerFunc

	next *Command
}

// Registry is a singly linked list of commands keyed by unique code
// (spec §4.4), matching the teacher's preference for a flat collection
// over an inheritance hierarchy of command objects (spec §9).
type Registry struct {
	head *Command
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds cmd to the registry. Registering a code > MaxCommandCode
// returns ErrCommandCodeInvalid;
// registering a code already present returns ErrCommandAlreadyExists and
// leaves the first registration active (spec §4.4, §8 property 5).
func (r *Registry) Register(cmd *Command) error {
	if cmd.Code > MaxCommandCode {
		return ErrCommandCodeInvalid
	}
	if r.Lookup(cmd.Code) != nil {
		return ErrCommandAlreadyExists
	}
	cmd.next = r.head
	r.head = cmd
	return nil
}

// Lookup finds the command registered for code, or nil.
func (r *Registry) Lookup(code byte) *Command {
	for c := r.head; c != nil; c = c.next {
		if c.Code == code {
			return c
		}
	}
	return nil
}

// These are startup/registration-time errors (spec §4.4), never carried
// on the wire, so they are plain sentinel errors rather than
// arducomerr.Error values.
var (
	ErrCommandAlreadyExists = errors.New("slave: command already registered")
	ErrCommandCodeInvalid   = errors.New("slave: command code invalid")
)
