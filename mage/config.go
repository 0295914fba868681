package mage

import "github.com/jabolina/go-mage/logging"

// ProtocolVersion identifies the wire format this build speaks.
// Bumped whenever the header/body layout in wire/ changes.
const ProtocolVersion = 1

// Config generalizes the teacher's BaseConfiguration/
// DefaultConfiguration(name) struct-with-defaults-constructor pattern
// (pkg/mcast/protocol.go) to this domain's process-wide settings.
type Config struct {
	// Logger receives every Node/Endpoint/Channel diagnostic. Defaults
	// to logging.NewDefaultLogger() in DefaultConfig.
	Logger logging.Logger

	// ProtocolVersion is stamped for future compatibility checks; the
	// current codec does not yet negotiate it — cross-architecture and
	// cross-version messaging is out of scope.
	ProtocolVersion int

	// IOLoopCapacity is a sizing hint for the epoll reactor backing
	// the Core-owned IO thread: the number of fds expected to be
	// watched concurrently. It fixes the size of the reactor's per-wait
	// event buffer (capacity plus the wake fd); more fds may still be
	// registered, and readiness beyond the buffer is reported by later
	// waits.
	IOLoopCapacity int
}

// DefaultConfig returns the configuration Init uses when the caller
// does not need to override anything.
func DefaultConfig() Config {
	return Config{
		Logger:          logging.NewDefaultLogger(),
		ProtocolVersion: ProtocolVersion,
		IOLoopCapacity:  64,
	}
}
