package core

import (
	"github.com/jabolina/go-mage/logging"
	"github.com/jabolina/go-mage/scheduling"
	"github.com/jabolina/go-mage/task"
	"github.com/jabolina/go-mage/wire"

	msync "github.com/jabolina/go-mage/sync"
)

// EndpointState tracks an Endpoint through its lifecycle: queueing
// messages for a delegate that hasn't bound yet, bound and delivering
// to that delegate, proxying toward wherever a handle transfer sent it,
// or permanently failed.
type EndpointState int

const (
	// StateUnboundQueueing is the initial state: no delegate bound yet,
	// arriving messages accumulate in order.
	StateUnboundQueueing EndpointState = iota
	// StateBound has a delegate; arriving messages are posted to it
	// immediately.
	StateBound
	// StateUnboundProxying forwards every arriving message toward
	// proxyTarget instead of queueing or delivering locally.
	StateUnboundProxying
	// StateFailed is a SPEC_FULL addition (see SPEC_FULL.md [CORE/ENDPOINT]):
	// the endpoint's owning channel died; it accepts no further
	// traffic and answers every operation with ErrEndpointFailed.
	StateFailed
)

func (s EndpointState) String() string {
	switch s {
	case StateUnboundQueueing:
		return "UnboundQueueing"
	case StateBound:
		return "Bound"
	case StateUnboundProxying:
		return "UnboundProxying"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Delegate receives messages delivered to a Bound endpoint. handles
// holds one freshly recovered Handle per entry of msg.Descriptors, in
// order, attached the moment the endpoint actually has somewhere to
// deliver them, or is nil/empty when the message carried no inline
// handle transfers. Generated proxy/stub code implements this to decode
// Payload into a typed call.
type Delegate interface {
	OnReceivedMessage(msg *wire.Message, handles []Handle)
}

// descriptorRecoverer turns one inline EndpointDescriptor into a local
// Handle, either by allocating a brand new endpoint (cross-process
// arrival, see Node.RecoverNewFromDescriptor) or by looking up an
// endpoint that already lives on this node (same-process arrival, see
// Node.RecoverExistingFromDescriptor).
type descriptorRecoverer func(wire.EndpointDescriptor) (Handle, error)

// queuedMessage pairs a message with the recoverer its arrival path
// supplied. Descriptor recovery is deferred until the message is
// actually handed to a delegate: recovering eagerly, before the
// endpoint's disposition is known, would allocate endpoints and handles
// that SetProxying later orphans.
type queuedMessage struct {
	msg     *wire.Message
	recover descriptorRecoverer
}

// recoverDescriptors allocates one Handle per entry of msg.Descriptors
// using recover, in order.
func recoverDescriptors(msg *wire.Message, recover descriptorRecoverer) ([]Handle, error) {
	if len(msg.Descriptors) == 0 {
		return nil, nil
	}
	handles := make([]Handle, len(msg.Descriptors))
	for i, d := range msg.Descriptors {
		h, err := recover(d)
		if err != nil {
			return nil, err
		}
		handles[i] = h
	}
	return handles, nil
}

// Endpoint is one side of a message pipe: a mailbox identified by a
// name, addressed to a peer Address, that is at any moment either
// queueing, bound to a delegate, proxying toward a new location after
// a handle transfer, or failed.
type Endpoint struct {
	mu msync.Mutex

	name wire.EndpointName
	node *Node
	log  logging.Logger

	peer  wire.Address
	state EndpointState

	incoming []queuedMessage

	delegate       Delegate
	delegateRunner scheduling.TaskRunner

	proxyTarget wire.Address
}

func newEndpoint(name wire.EndpointName, peer wire.Address, node *Node, log logging.Logger) *Endpoint {
	return &Endpoint{
		name:  name,
		node:  node,
		log:   log,
		peer:  peer,
		state: StateUnboundQueueing,
	}
}

// Name returns the endpoint's own identifier. Immutable after
// construction, safe to read without locking.
func (e *Endpoint) Name() wire.EndpointName { return e.name }

// Peer returns the endpoint's current peer Address.
func (e *Endpoint) Peer() wire.Address {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.peer
}

// State returns the endpoint's current lifecycle state.
func (e *Endpoint) State() EndpointState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// RegisterDelegate transitions UnboundQueueing -> Bound, draining any
// already-queued messages to the delegate in arrival order. Descriptor
// recovery for each queued message happens here, right before the
// delegate sees it, using whichever recoverer its arrival path
// supplied.
func (e *Endpoint) RegisterDelegate(d Delegate, runner scheduling.TaskRunner) error {
	e.mu.Lock()
	if e.state == StateFailed {
		e.mu.Unlock()
		return ErrEndpointFailed
	}
	if e.state != StateUnboundQueueing {
		e.mu.Unlock()
		return ErrInvariant
	}
	queued := e.incoming
	e.incoming = nil
	e.delegate = d
	e.delegateRunner = runner
	e.state = StateBound
	e.mu.Unlock()

	for _, q := range queued {
		msg := q.msg
		handles, err := recoverDescriptors(msg, q.recover)
		if err != nil {
			e.log.Errorf("endpoint %s: failed to recover descriptors for a queued message: %v", e.name, err)
			continue
		}
		runner.Post(task.New(func() { d.OnReceivedMessage(msg, handles) }))
	}
	return nil
}

// UnregisterDelegate transitions Bound -> UnboundQueueing, detaching
// the current delegate so the endpoint goes back to accumulating
// arriving messages in e.incoming instead of delivering them.
func (e *Endpoint) UnregisterDelegate() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateFailed {
		return ErrEndpointFailed
	}
	if e.state != StateBound {
		return ErrInvariant
	}
	e.delegate = nil
	e.delegateRunner = scheduling.TaskRunner{}
	e.state = StateUnboundQueueing
	return nil
}

// TakeQueuedMessages empties and returns the endpoint's queued incoming
// messages. Only legal in UnboundQueueing, mirroring the caller's
// assumption that nothing is bound to receive them through the normal
// delivery path.
func (e *Endpoint) TakeQueuedMessages() ([]*wire.Message, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateFailed {
		return nil, ErrEndpointFailed
	}
	if e.state != StateUnboundQueueing {
		return nil, ErrInvariant
	}
	queued := e.incoming
	e.incoming = nil
	out := make([]*wire.Message, len(queued))
	for i, q := range queued {
		out[i] = q.msg
	}
	return out, nil
}

// SetProxying transitions the endpoint to UnboundProxying, forwarding
// every already-queued message toward target before returning, so that
// no caller can observe a message arrive after the transition out of
// order. Queued messages were never descriptor-recovered (recovery is
// deferred until delivery), so flushing them here forwards the
// original, unrecovered message on toward target.
func (e *Endpoint) SetProxying(targetNode wire.NodeName, targetEndpoint wire.EndpointName) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateBound:
		return ErrHandleInUse
	case StateUnboundProxying:
		return ErrHandleTransferred
	case StateFailed:
		return ErrEndpointFailed
	}

	e.proxyTarget = wire.Address{NodeName: targetNode, EndpointName: targetEndpoint}
	e.state = StateUnboundProxying

	queued := e.incoming
	e.incoming = nil
	for _, q := range queued {
		e.forwardLocked(q.msg)
	}
	return nil
}

func (e *Endpoint) forwardLocked(msg *wire.Message) {
	msg.Header.TargetEndpoint = e.proxyTarget.EndpointName
	if err := e.node.forwardMessage(e.proxyTarget, msg); err != nil {
		e.log.Warnf("endpoint %s: dropping queued message during proxy flush: %v", e.name, err)
	}
}

// AcceptMessageOnIOThread delivers a message that just arrived over the
// wire. Any inline handle descriptors it carries are recovered via
// Node.RecoverNewFromDescriptor (cross-process arrival, allocating a
// fresh endpoint per descriptor) only once the endpoint's disposition
// is known to need them — queueing and proxying both defer recovery.
func (e *Endpoint) AcceptMessageOnIOThread(msg *wire.Message) ([]Handle, error) {
	return e.acceptMessage(msg, e.node.RecoverNewFromDescriptor)
}

// AcceptMessageOnDelegateThread delivers a message produced in this
// process (a direct SendMessage, or a same-process forward). Inline
// handle descriptors are recovered via Node.RecoverExistingFromDescriptor
// (the referenced endpoints already exist locally), deferred the same
// way as AcceptMessageOnIOThread.
func (e *Endpoint) AcceptMessageOnDelegateThread(msg *wire.Message) ([]Handle, error) {
	return e.acceptMessage(msg, e.node.RecoverExistingFromDescriptor)
}

// acceptMessage dispatches msg according to the endpoint's current
// state. Descriptor recovery only happens on the paths that actually
// hand the message (and its handles) to a delegate right now:
// queueing and proxying both leave msg's descriptors unrecovered,
// since a queued message may still be proxied elsewhere, and a
// proxied message is relayed byte-for-byte toward its eventual
// recipient, whose own hop recovers them. Recovering eagerly on every
// hop would allocate endpoints and handles that are immediately
// orphaned once the message moves on.
func (e *Endpoint) acceptMessage(msg *wire.Message, recover descriptorRecoverer) ([]Handle, error) {
	e.mu.Lock()
	switch e.state {
	case StateUnboundQueueing:
		e.incoming = append(e.incoming, queuedMessage{msg: msg, recover: recover})
		e.mu.Unlock()
		return nil, nil
	case StateBound:
		d, r := e.delegate, e.delegateRunner
		e.mu.Unlock()
		handles, err := recoverDescriptors(msg, recover)
		if err != nil {
			return nil, err
		}
		r.Post(task.New(func() { d.OnReceivedMessage(msg, handles) }))
		return handles, nil
	case StateUnboundProxying:
		target := e.proxyTarget
		e.mu.Unlock()
		msg.Header.TargetEndpoint = target.EndpointName
		return nil, e.node.forwardMessage(target, msg)
	default: // StateFailed
		e.mu.Unlock()
		return nil, ErrEndpointFailed
	}
}

// Fail transitions the endpoint to the terminal Failed state, dropping
// any queued messages as undeliverable. Transport failure only fails
// the endpoints routed through the dead channel, never the whole
// process.
func (e *Endpoint) Fail() {
	e.mu.Lock()
	if e.state == StateFailed {
		e.mu.Unlock()
		return
	}
	e.state = StateFailed
	dropped := len(e.incoming)
	e.incoming = nil
	e.delegate = nil
	e.delegateRunner = scheduling.TaskRunner{}
	e.mu.Unlock()

	if dropped > 0 {
		e.log.Warnf("endpoint %s failed, dropping %d undeliverable queued message(s)", e.name, dropped)
	}
}

func (e *Endpoint) replacePeerNodeName(from, to wire.NodeName) {
	e.mu.Lock()
	if e.peer.NodeName == from {
		e.peer.NodeName = to
	}
	e.mu.Unlock()
}
