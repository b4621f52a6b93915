package frame

import (
	"errors"
	"testing"

	"github.com/arducom-go/arducom/arducomerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errShortRead = errors.New("frame_test: short read")

func TestChecksumRoundTrip(t *testing.T) {
	t.Parallel()

	for length := 0; length <= 32; length++ {
		payload := make([]byte, length)
		for i := range payload {
			payload[i] = byte(i*7 + 3)
		}

		req, err := BuildRequest(5, payload, true)
		require.NoError(t, err)

		decoded, ok := TryDecodeRequest(req)
		require.True(t, ok)
		assert.Equal(t, payload, decoded.Payload)

		_, good := decoded.VerifyChecksum()
		assert.True(t, good)
	}
}

func TestChecksumRejectsCorruption(t *testing.T) {
	t.Parallel()

	payload := []byte{1, 2, 3}
	req, err := BuildRequest(5, payload, true)
	require.NoError(t, err)

	for i := 1; i < len(req); i++ {
		for bit := 0; bit < 8; bit++ {
			corrupt := append([]byte(nil), req...)
			corrupt[i] ^= 1 << bit

			decoded, ok := TryDecodeRequest(corrupt)
			if !ok {
				continue // frame considered incomplete; never a false success
			}
			_, good := decoded.VerifyChecksum()
			assert.False(t, good, "bit flip at byte %d bit %d should not verify", i, bit)
		}
	}
}

func TestBuildSuccessReplyEchoesCommand(t *testing.T) {
	t.Parallel()

	reply, err := BuildSuccessReply(0x05, nil, false)
	require.NoError(t, err)
	assert.Equal(t, byte(0x85), reply[0])
	assert.Equal(t, byte(0x00), reply[1])
	assert.Len(t, reply, 2)
}

func TestBuildErrorReplyShape(t *testing.T) {
	t.Parallel()

	reply := BuildErrorReply(arducomerr.KindCommandUnknown, 0x63)
	assert.Equal(t, []byte{0xFF, 0x81, 0x63}, reply)
}

func TestParseReplySuccess(t *testing.T) {
	t.Parallel()

	wire, err := BuildSuccessReply(0x05, []byte{1, 2, 3}, true)
	require.NoError(t, err)

	payload, err := ParseReply(0x05, 32, len(wire)-2, true, byteFeeder(wire))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, payload)
}

func TestParseReplyErrorFrame(t *testing.T) {
	t.Parallel()

	wire := BuildErrorReply(arducomerr.KindParameterMismatch, 2)
	_, err := ParseReply(0x07, 32, 0, false, byteFeeder(wire))
	require.Error(t, err)

	aerr, ok := arducomerr.As(err)
	require.True(t, ok)
	assert.Equal(t, arducomerr.KindParameterMismatch, aerr.Kind)
	assert.Equal(t, byte(2), aerr.Info)
}

func TestParseReplyInvalidResponse(t *testing.T) {
	t.Parallel()

	wire, err := BuildSuccessReply(0x06, nil, false)
	require.NoError(t, err)

	_, err = ParseReply(0x05, 32, 0, false, byteFeeder(wire))
	aerr, ok := arducomerr.As(err)
	require.True(t, ok)
	assert.Equal(t, arducomerr.KindInvalidResponse, aerr.Kind)
	assert.Equal(t, byte(0x06), aerr.Info)
}

func TestParseReplyInvalidLeadZero(t *testing.T) {
	t.Parallel()

	_, err := ParseReply(0x05, 32, 0, false, byteFeeder([]byte{0x00}))
	aerr, ok := arducomerr.As(err)
	require.True(t, ok)
	assert.Equal(t, arducomerr.KindInvalidReply, aerr.Kind)
}

func TestParseReplyChecksumFlagMismatch(t *testing.T) {
	t.Parallel()

	// Slave replies checksummed; master's request (and thus its parse
	// call) did not ask for a checksum.
	wire, err := BuildSuccessReply(0x05, []byte{1}, true)
	require.NoError(t, err)

	_, err = ParseReply(0x05, 32, 1, false, byteFeeder(wire))
	aerr, ok := arducomerr.As(err)
	require.True(t, ok)
	assert.Equal(t, arducomerr.KindChecksumFlagMismatch, aerr.Kind)
}

// byteFeeder adapts a fixed byte slice to ReadByteFunc for tests.
func byteFeeder(buf []byte) ReadByteFunc {
	i := 0
	return func() (byte, error) {
		if i >= len(buf) {
			return 0, errShortRead
		}
		b := buf[i]
		i++
		return b, nil
	}
}
