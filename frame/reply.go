package frame

import "github.com/arducom-go/arducom/arducomerr"

// ReadByteFunc reads exactly one byte from the previously requested
// window of a transport (spec §4.2's read_byte capability). It is a
// plain function type rather than an interface so frame never needs to
// import the transport package.
type ReadByteFunc func() (byte, error)

// ParseReply implements the master-side reply parse of spec §4.1:
// lead byte (error / invalid / echo check), code byte (length +
// checksum flag), optional checksum byte, then up to
// min(length, expectedBytes) payload bytes, with checksum verification
// when the reply set the checksum flag.
//
// expectedBytes caps how many payload bytes are actually read, modeling
// a transport that was only asked to fetch that many (spec §4.1 point 6,
// §9's truncation open question).
//
// requestChecksummed is the checksum flag the original request was built
// with. A success reply's own checksum bit must agree with it: the slave
// set checksum but the master didn't ask for it, or vice versa, is a
// protocol error the master raises explicitly rather than silently
// trusting the reply's own flag (spec §4.1).
func ParseReply(cmd byte, maxPayload, expectedBytes int, requestChecksummed bool, readByte ReadByteFunc) ([]byte, error) {
	lead, err := readByte()
	if err != nil {
		return nil, err
	}

	if lead == ErrorLeadByte {
		kindByte, err := readByte()
		if err != nil {
			return nil, err
		}
		info, err := readByte()
		if err != nil {
			return nil, err
		}
		return nil, arducomerr.New(arducomerr.Kind(kindByte), info)
	}

	if lead == 0 {
		return nil, arducomerr.New(arducomerr.KindInvalidReply, 0)
	}

	if lead != cmd|ReplyBit {
		return nil, arducomerr.New(arducomerr.KindInvalidResponse, lead&0x7F)
	}

	code, err := readByte()
	if err != nil {
		return nil, err
	}

	length := int(code & LengthMask)
	checksummed := code&ChecksumBit != 0

	if checksummed != requestChecksummed {
		return nil, arducomerr.New(arducomerr.KindChecksumFlagMismatch, code)
	}

	if length > maxPayload {
		return nil, arducomerr.New(arducomerr.KindPayloadTooLong, byte(length))
	}

	var checksumByte byte
	if checksummed {
		checksumByte, err = readByte()
		if err != nil {
			return nil, err
		}
	}

	toRead := length
	if expectedBytes < toRead {
		toRead = expectedBytes
	}

	payload := make([]byte, toRead)
	for i := range payload {
		payload[i], err = readByte()
		if err != nil {
			return nil, err
		}
	}

	if checksummed {
		computed := Checksum(lead, code, payload)
		if computed != checksumByte {
			return payload, arducomerr.New(arducomerr.KindChecksumError, computed)
		}
	}

	return payload, nil
}
