package core

import "errors"

// Error taxonomy. Fatal kinds (HandleInUse, HandleTransferred,
// Corrupt, Invariant) are programmer errors and are expected to be
// surfaced to the caller, who treats them as fatal; this package
// itself never panics on them; it returns them and lets the caller
// (the mage facade) decide.
var (
	// ErrTransport covers fd read/write failure, malformed framing, or
	// peer disconnect on a Channel.
	ErrTransport = errors.New("mage/core: transport error")

	// ErrUnknownTarget is returned (and only logged, never fatal) when
	// an incoming message addresses an endpoint not present locally.
	ErrUnknownTarget = errors.New("mage/core: unknown target endpoint")

	// ErrHandleInUse is returned when a caller tries to send a handle
	// whose endpoint is currently Bound.
	ErrHandleInUse = errors.New("mage/core: handle is bound, cannot transfer")

	// ErrHandleTransferred is returned when a caller tries to send a
	// handle whose endpoint already transitioned to UnboundProxying.
	ErrHandleTransferred = errors.New("mage/core: handle already transferred")

	// ErrCorrupt is returned when same-process handle recovery fails
	// to find the endpoint named in a descriptor.
	ErrCorrupt = errors.New("mage/core: corrupt descriptor, endpoint not found")

	// ErrInvariant signals an internal state-machine assertion failure.
	ErrInvariant = errors.New("mage/core: invariant violated")

	// ErrInvitationAlreadyAccepted is returned by Node.AcceptInvitation
	// when called a second time on the same node: a node accepts at
	// most one invitation.
	ErrInvitationAlreadyAccepted = errors.New("mage/core: node already accepted an invitation")

	// ErrEndpointFailed is returned when an operation targets an
	// endpoint that has transitioned to the terminal Failed state
	// after its channel died (SPEC_FULL [CORE/ENDPOINT] addition).
	ErrEndpointFailed = errors.New("mage/core: endpoint failed, channel is gone")
)
