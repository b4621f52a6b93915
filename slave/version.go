package slave

import (
	"encoding/binary"
	"time"
)

// VersionInfo supplies the values the built-in command 0 ("version /
// status") reports back to the master (spec §4.4).
type VersionInfo struct {
	ProtocolVersion byte
	Description     string // sent as-is with no padding or terminator; truncated to fit

	// Start is used to compute uptime in milliseconds. Zero means "now",
	// i.e. uptime always reads 0 (useful for tests).
	Start time.Time

	// FreeRAM reports free RAM in bytes for the reply; on a host binary
	// there's no meaningful AVR-style free-RAM figure, so callers
	// running on real hardware should supply a real estimator and
	// everyone else can leave it nil.
	FreeRAM func() uint16

	// Flags holds the current device flags (bit 0 = debug echo enabled,
	// bit 6 = self-test loop armed, bit 7 = soft reset armed). Handler
	// mutates it in place under the caller-supplied mask.
	Flags *byte

	// Shutdown is invoked when the request payload is exactly the
	// 0xADDE sentinel (little-endian: wire bytes 0xDE, 0xAD) instead of
	// a mask/flags pair. May be nil.
	Shutdown func()

	// OnSelfTest and OnSoftReset fire when a mask/flags write turns on
	// bit 6 (infinite loop self-test) or bit 7 (soft reset via
	// watchdog) respectively. Both may be nil; the actual hardware
	// behavior they'd trigger is outside the core's scope (spec §1).
	OnSelfTest  func()
	OnSoftReset func()
}

// shutdownSentinelLow, shutdownSentinelHigh are the little-endian bytes
// of the 0xADDE sentinel value (spec §4.4).
const (
	shutdownSentinelLow  byte = 0xDE
	shutdownSentinelHigh byte = 0xAD

	flagDebugEcho byte = 1 << 0
	flagSelfTest  byte = 1 << 6
	flagSoftReset byte = 1 << 7
)

// VersionCommand builds the built-in command-0 registration (spec §4.4).
func VersionCommand(info *VersionInfo) *Command {
	if info.Flags == nil {
		var f byte
		info.Flags = &f
	}

	return &Command{
		Code:           0,
		ExpectedLength: -1,
		Handler: func(ctx *Context, payload []byte) (reply []byte, err error) {
			if len(payload) == 2 && payload[0] == shutdownSentinelLow && payload[1] == shutdownSentinelHigh {
				if info.Shutdown != nil {
					info.Shutdown()
				}
			} else if len(payload) == 2 {
				mask, flags := payload[0], payload[1]
				before := *info.Flags
				*info.Flags = (before &^ mask) | (flags & mask)

				if mask&flagSelfTest != 0 && *info.Flags&flagSelfTest != 0 && before&flagSelfTest == 0 && info.OnSelfTest != nil {
					info.OnSelfTest()
				}
				if mask&flagSoftReset != 0 && *info.Flags&flagSoftReset != 0 && before&flagSoftReset == 0 && info.OnSoftReset != nil {
					info.OnSoftReset()
				}
			}

			reply = encodeVersionReply(info)
			if len(reply) > ctx.MaxReplySize && ctx.MaxReplySize >= 8 {
				reply = reply[:ctx.MaxReplySize] // drop description bytes that don't fit
			}
			return reply, nil
		},
	}
}

func encodeVersionReply(info *VersionInfo) []byte {
	var uptimeMS uint32
	if !info.Start.IsZero() {
		uptimeMS = uint32(time.Since(info.Start).Milliseconds())
	}

	var freeRAM uint16
	if info.FreeRAM != nil {
		freeRAM = info.FreeRAM()
	}

	buf := make([]byte, 8, 8+len(info.Description))
	buf[0] = info.ProtocolVersion
	binary.LittleEndian.PutUint32(buf[1:5], uptimeMS)
	buf[5] = *info.Flags
	binary.LittleEndian.PutUint16(buf[6:8], freeRAM)
	// Description bytes are appended as-is with no trailing NUL: the
	// original copies characters only while they're non-zero and stops
	// before the terminator, so a 0-length description contributes no
	// bytes at all (spec §8 scenario A: exactly 10 bytes total with no
	// description configured) and a non-empty one adds exactly len(bytes).
	buf = append(buf, info.Description...)
	return buf
}
