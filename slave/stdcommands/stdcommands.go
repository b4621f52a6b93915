// Package stdcommands restores the illustrative EEPROM/RAM/pin reader
// and writer commands spec.md §1 names as out of scope for the core but
// that original_source/'s Arducom.cpp and ArducomI2C.cpp implement as
// consumers of the registration contract (spec.md [SUPPLEMENT]). They
// are implemented against an injected byte-addressable Region instead of
// direct AVR memory access, so the same command table is exercisable
// from tests without hardware.
package stdcommands

import (
	"encoding/binary"

	"github.com/arducom-go/arducom/arducomerr"
	"github.com/arducom-go/arducom/slave"
)

// Region is a byte-addressable memory region a command can read or
// write: EEPROM, SRAM, or (through a synthetic mapping) digital I/O
// pins. Real device implementations back this with hardware accessors;
// tests back it with a plain byte slice.
type Region interface {
	ReadByte(addr uint16) (byte, error)
	WriteByte(addr uint16, value byte) error
	Size() uint16
}

// SliceRegion is a Region backed by an in-memory byte slice, primarily
// for tests and for RAM regions on host-based slaves.
type SliceRegion []byte

func (r SliceRegion) ReadByte(addr uint16) (byte, error) {
	if int(addr) >= len(r) {
		return 0, arducomerr.New(arducomerr.KindLimitExceeded, 0)
	}
	return r[addr], nil
}

func (r SliceRegion) WriteByte(addr uint16, value byte) error {
	if int(addr) >= len(r) {
		return arducomerr.New(arducomerr.KindLimitExceeded, 0)
	}
	r[addr] = value
	return nil
}

func (r SliceRegion) Size() uint16 { return uint16(len(r)) }

// ReadByteCommand builds a fixed 2-byte-request command (address, LE)
// that replies with one byte read from region.
func ReadByteCommand(code byte, region Region) *slave.Command {
	return &slave.Command{
		Code:           code,
		ExpectedLength: 2,
		Handler: func(ctx *slave.Context, payload []byte) ([]byte, error) {
			addr := binary.LittleEndian.Uint16(payload)
			b, err := region.ReadByte(addr)
			if err != nil {
				return nil, err
			}
			return []byte{b}, nil
		},
	}
}

// WriteByteCommand builds a fixed 3-byte-request command (address LE,
// value) that writes one byte into region and replies with no payload.
func WriteByteCommand(code byte, region Region) *slave.Command {
	return &slave.Command{
		Code:           code,
		ExpectedLength: 3,
		Handler: func(ctx *slave.Context, payload []byte) ([]byte, error) {
			addr := binary.LittleEndian.Uint16(payload[0:2])
			if err := region.WriteByte(addr, payload[2]); err != nil {
				return nil, err
			}
			return nil, nil
		},
	}
}

// ReadBlockCommand builds a fixed 3-byte-request command (address LE,
// count) that reads count bytes starting at address. A count exceeding
// the handler's reply budget or the region's bounds becomes
// LIMIT_EXCEEDED rather than a partial read, since Arducom has no
// mechanism to signal a short read (spec §7).
func ReadBlockCommand(code byte, region Region) *slave.Command {
	return &slave.Command{
		Code:           code,
		ExpectedLength: 3,
		Handler: func(ctx *slave.Context, payload []byte) ([]byte, error) {
			addr := binary.LittleEndian.Uint16(payload[0:2])
			count := int(payload[2])
			if count > ctx.MaxReplySize || int(addr)+count > int(region.Size()) {
				return nil, arducomerr.New(arducomerr.KindLimitExceeded, 0)
			}
			out := make([]byte, count)
			for i := 0; i < count; i++ {
				b, err := region.ReadByte(addr + uint16(i))
				if err != nil {
					return nil, err
				}
				out[i] = b
			}
			return out, nil
		},
	}
}

// DigitalPin abstracts one GPIO pin for PinReadCommand/PinWriteCommand.
type DigitalPin interface {
	Read() (bool, error)
	Write(high bool) error
}

// PinReadCommand builds a 1-byte-request command (pin number) replying
// with a single byte, 0 or 1.
func PinReadCommand(code byte, pins func(pin byte) (DigitalPin, error)) *slave.Command {
	return &slave.Command{
		Code:           code,
		ExpectedLength: 1,
		Handler: func(ctx *slave.Context, payload []byte) ([]byte, error) {
			pin, err := pins(payload[0])
			if err != nil {
				return nil, err
			}
			high, err := pin.Read()
			if err != nil {
				return nil, err
			}
			if high {
				return []byte{1}, nil
			}
			return []byte{0}, nil
		},
	}
}

// PinWriteCommand builds a 2-byte-request command (pin number, value)
// that sets a GPIO pin and replies with no payload.
func PinWriteCommand(code byte, pins func(pin byte) (DigitalPin, error)) *slave.Command {
	return &slave.Command{
		Code:           code,
		ExpectedLength: 2,
		Handler: func(ctx *slave.Context, payload []byte) ([]byte, error) {
			pin, err := pins(payload[0])
			if err != nil {
				return nil, err
			}
			return nil, pin.Write(payload[1] != 0)
		},
	}
}
