// Package frame implements the Arducom wire codec: building request and
// reply frames and parsing the three reply shapes (success, error, and
// the raw byte stream a transport hands back). See spec §4.1 and §6.
package frame

import (
	"github.com/arducom-go/arducom/arducomerr"
)

const (
	// ErrorLeadByte is the fixed lead byte of every error reply.
	ErrorLeadByte byte = 0xFF

	// ReplyBit marks a command byte as a reply (success) when set, and
	// is also how 0xFF is distinguished from a legitimate echoed command
	// (0xFF has every low bit set too, so it is checked for explicitly
	// before the generic reply-bit test).
	ReplyBit byte = 0x80

	// ChecksumBit is bit 7 of the code byte; the low 6 bits carry the
	// payload length. Bit 6 is reserved and must be 0.
	ChecksumBit  byte = 0x80
	LengthMask   byte = 0x3F
	ReservedMask byte = 0x40
)

// Checksum computes the one-byte checksum over (command, code, payload):
// an 8-bit sum with end-around carry, bitwise complemented (spec §4.1,
// §6). Because every addend is itself <= 255, a single addition can carry
// past 255 by at most 1, so folding once per byte is sufficient (spec
// §9's carry-bound note).
func Checksum(command, code byte, payload []byte) byte {
	s := uint16(command) + uint16(code)
	if s > 0xFF {
		s = (s & 0xFF) + 1
	}
	for _, b := range payload {
		s += uint16(b)
		if s > 0xFF {
			s = (s & 0xFF) + 1
		}
	}
	return ^byte(s)
}

func codeByte(length int, checksummed bool) byte {
	code := byte(length) & LengthMask
	if checksummed {
		code |= ChecksumBit
	}
	return code
}

// BuildRequest builds a master->slave request frame for command cmd
// carrying payload, optionally checksummed (spec §4.1).
func BuildRequest(cmd byte, payload []byte, checksummed bool) ([]byte, error) {
	return build(cmd, payload, checksummed)
}

// BuildSuccessReply builds a slave->master success reply frame. The
// command byte of a success reply always has ReplyBit set.
func BuildSuccessReply(cmd byte, payload []byte, checksummed bool) ([]byte, error) {
	return build(cmd|ReplyBit, payload, checksummed)
}

func build(leadByte byte, payload []byte, checksummed bool) ([]byte, error) {
	if len(payload) > int(LengthMask) {
		return nil, arducomerr.New(arducomerr.KindPayloadTooLong, byte(len(payload)))
	}
	code := codeByte(len(payload), checksummed)
	out := make([]byte, 0, 3+len(payload))
	out = append(out, leadByte, code)
	if checksummed {
		out = append(out, Checksum(leadByte, code, payload))
	}
	out = append(out, payload...)
	return out, nil
}

// BuildErrorReply builds the fixed 3-byte error reply. Error replies are
// never checksummed and never echo the original command (spec §4.1).
func BuildErrorReply(kind arducomerr.Kind, info byte) []byte {
	return []byte{ErrorLeadByte, byte(kind), info}
}
