package slave

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommandNoDescription(t *testing.T) {
	t.Parallel()

	cmd := VersionCommand(&VersionInfo{ProtocolVersion: 1})
	reply, err := cmd.Handler(&Context{MaxReplySize: 32}, nil)
	require.NoError(t, err)
	require.Len(t, reply, 8)
	assert.Equal(t, byte(1), reply[0])
}

func TestVersionCommandShutdownSentinel(t *testing.T) {
	t.Parallel()

	called := false
	cmd := VersionCommand(&VersionInfo{
		ProtocolVersion: 1,
		Shutdown:        func() { called = true },
	})

	_, err := cmd.Handler(&Context{MaxReplySize: 32}, []byte{shutdownSentinelLow, shutdownSentinelHigh})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestVersionCommandFlagsUnderMask(t *testing.T) {
	t.Parallel()

	var flags byte = 0xFF
	cmd := VersionCommand(&VersionInfo{ProtocolVersion: 1, Flags: &flags})

	_, err := cmd.Handler(&Context{MaxReplySize: 32}, []byte{flagDebugEcho, 0x00})
	require.NoError(t, err)
	assert.Equal(t, byte(0xFE), flags, "only the masked bit should change")
}

func TestVersionCommandDescriptionHasNoTrailingNUL(t *testing.T) {
	t.Parallel()

	cmd := VersionCommand(&VersionInfo{ProtocolVersion: 1, Description: "hi"})
	reply, err := cmd.Handler(&Context{MaxReplySize: 32}, nil)
	require.NoError(t, err)
	require.Len(t, reply, 10)
	assert.Equal(t, []byte("hi"), reply[8:])
}

func TestVersionCommandUptimeEncoded(t *testing.T) {
	t.Parallel()

	start := time.Now().Add(-time.Second)
	cmd := VersionCommand(&VersionInfo{ProtocolVersion: 2, Start: start})

	reply, err := cmd.Handler(&Context{MaxReplySize: 32}, nil)
	require.NoError(t, err)
	uptime := uint32(reply[1]) | uint32(reply[2])<<8 | uint32(reply[3])<<16 | uint32(reply[4])<<24
	assert.GreaterOrEqual(t, uptime, uint32(900))
}
