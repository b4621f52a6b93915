package slave

import "log/slog"

// Context is handed to every HandlerFunc. It stands in for the
// original's (Arducom*, payload*, size*, buffer*, maxSize, info*)
// signature: Go's multiple return values replace the output pointers,
// and Context carries only what a handler genuinely needs to read.
type Context struct {
	// MaxReplySize is the transport's maximum payload size; a handler
	// whose reply would exceed it gets BUFFER_OVERRUN instead (spec
	// §4.4 step 4, §7).
	MaxReplySize int

	Logger *slog.Logger
}
