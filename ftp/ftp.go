// Package ftp is the thin FTP overlay described in spec §6: it claims a
// contiguous range of command codes on a slave's registry and forwards
// each to a caller-supplied handler. This is the only piece of the FTP
// tool in scope for the core (spec §1): everything about file listing,
// chunked reads, and directory state lives with the caller.
package ftp

import (
	"github.com/arducom-go/arducom/slave"
)

// DefaultBase is the FTP command range's default starting code (spec
// §6).
const DefaultBase byte = 60

// Operation names the eight FTP commands, in registration order.
type Operation int

const (
	OpInit Operation = iota
	OpList
	OpRewind
	OpChdir
	OpOpenRead
	OpReadFile
	OpCloseFile
	OpDelete

	opCount
)

func (o Operation) String() string {
	switch o {
	case OpInit:
		return "INIT"
	case OpList:
		return "LIST"
	case OpRewind:
		return "REWIND"
	case OpChdir:
		return "CHDIR"
	case OpOpenRead:
		return "OPENREAD"
	case OpReadFile:
		return "READFILE"
	case OpCloseFile:
		return "CLOSEFILE"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// Handlers supplies one slave.HandlerFunc per Operation, and the expected
// request payload length the registry should enforce for it (-1 for
// variable length).
type Handlers struct {
	Funcs           [int(opCount)]slave.HandlerFunc
	ExpectedLengths [int(opCount)]int
}

// RegisterCommands claims codes in base..base+7 on r, one command per
// Operation in the order above, using only slave.Registry.Register.
// Operations whose Funcs entry is nil are skipped and leave their code
// unregistered.
func RegisterCommands(r *slave.Registry, base byte, h Handlers) error {
	for i := 0; i < int(opCount); i++ {
		if h.Funcs[i] == nil {
			continue
		}
		err := r.Register(&slave.Command{
			Code:           base + byte(i),
			ExpectedLength: h.ExpectedLengths[i],
			Handler:        h.Funcs[i],
		})
		if err != nil {
			return err
		}
	}
	return nil
}
