package frame

// DecodedRequest is a fully buffered, parsed master->slave request,
// produced by TryDecodeRequest once the slave's receive buffer holds a
// whole frame (spec §4.4 step 2).
type DecodedRequest struct {
	Command      byte
	Code         byte // code byte exactly as received
	Length       int
	Checksummed  bool
	ChecksumByte byte
	Payload      []byte

	// TotalSize is the number of buffer bytes this request consumed;
	// the dispatcher uses it to reset/advance the receive buffer.
	TotalSize int
}

// TryDecodeRequest reports whether buf holds a complete request frame
// yet, and if so, decodes it. It never mutates buf and never blocks: the
// dispatcher calls it once per poll() and simply waits for more bytes if
// ok is false (spec §4.4 step 2).
func TryDecodeRequest(buf []byte) (req DecodedRequest, ok bool) {
	if len(buf) < 2 {
		return DecodedRequest{}, false
	}

	code := buf[1]
	length := int(code & LengthMask)
	checksummed := code&ChecksumBit != 0

	total := 2 + length
	if checksummed {
		total++
	}
	if len(buf) < total {
		return DecodedRequest{}, false
	}

	req.Command = buf[0]
	req.Code = code
	req.Length = length
	req.Checksummed = checksummed
	req.TotalSize = total

	payloadStart := 2
	if checksummed {
		req.ChecksumByte = buf[2]
		payloadStart = 3
	}
	req.Payload = append([]byte(nil), buf[payloadStart:payloadStart+length]...)

	return req, true
}

// VerifyChecksum recomputes the checksum over (command, code, payload)
// and compares it to the checksum byte carried on the wire. Requests
// without the checksum flag always verify.
func (req DecodedRequest) VerifyChecksum() (byte, bool) {
	if !req.Checksummed {
		return 0, true
	}
	computed := Checksum(req.Command, req.Code, req.Payload)
	return computed, computed == req.ChecksumByte
}
