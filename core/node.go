package core

import (
	"fmt"

	msync "github.com/jabolina/go-mage/sync"

	"github.com/jabolina/go-mage/logging"
	"github.com/jabolina/go-mage/scheduling"
	"github.com/jabolina/go-mage/task"
	"github.com/jabolina/go-mage/wire"
)

// pendingInvitation is the bookkeeping an inviter keeps between sending
// an invitation and receiving its AcceptInvitation reply.
type pendingInvitation struct {
	reserved   *Endpoint
	onAccepted task.Task
	runner     scheduling.TaskRunner
}

// Node is the per-process router: it owns every local endpoint, every
// channel to another node, and drives the invitation handshake that
// turns a bare fd into a working connection. Grounded on the teacher's
// protocol.go Unity type (a map-of-peers plus a poweroff/shutdown
// future), generalized from consensus peers to message-pipe endpoints
// and node channels.
type Node struct {
	mu msync.Mutex

	name  wire.NodeName
	table *HandleTable
	log   logging.Logger

	localEndpoints      map[wire.EndpointName]*Endpoint
	nodeChannels        map[wire.NodeName]*Channel
	pendingInvitations  map[wire.NodeName]*pendingInvitation
	acceptedInvitation  bool
	acceptCallback      func(Handle)
	acceptCallbackRunner scheduling.TaskRunner

	shutdown *shutdownState
}

// NewNode allocates a node with a freshly generated name, backed by
// table for handle allocation.
func NewNode(table *HandleTable, log logging.Logger) *Node {
	return &Node{
		name:               wire.GenerateName(),
		table:              table,
		log:                log,
		localEndpoints:     make(map[wire.EndpointName]*Endpoint),
		nodeChannels:       make(map[wire.NodeName]*Channel),
		pendingInvitations: make(map[wire.NodeName]*pendingInvitation),
		shutdown:           newShutdownState(),
	}
}

// Name returns the node's identity. Immutable after construction.
func (n *Node) Name() wire.NodeName { return n.name }

// CreateMessagePipes allocates two entangled endpoints local to this
// node and returns a handle to each.
func (n *Node) CreateMessagePipes() (Handle, Handle) {
	a := newEndpoint(wire.GenerateName(), wire.Address{}, n, n.log)
	b := newEndpoint(wire.GenerateName(), wire.Address{}, n, n.log)
	a.peer = wire.Address{NodeName: n.name, EndpointName: b.name}
	b.peer = wire.Address{NodeName: n.name, EndpointName: a.name}

	n.mu.Lock()
	n.localEndpoints[a.name] = a
	n.localEndpoints[b.name] = b
	n.mu.Unlock()

	return n.table.Allocate(a), n.table.Allocate(b)
}

// SendInvitation creates the entangled pair, opens a Channel over fd,
// sends the invitation, and returns a handle to the local side
// immediately, before any reply has arrived.
func (n *Node) SendInvitation(fd int, ioLoop scheduling.IOCapableLoop, onAccepted task.Task, runner scheduling.TaskRunner) (Handle, error) {
	local := newEndpoint(wire.GenerateName(), wire.Address{}, n, n.log)
	remote := newEndpoint(wire.GenerateName(), wire.Address{}, n, n.log)

	temp := wire.GenerateName()
	local.peer = wire.Address{NodeName: temp, EndpointName: remote.name}
	remote.peer = wire.Address{NodeName: n.name, EndpointName: local.name}

	ch, err := NewChannel(fd, ioLoop, n.log)
	if err != nil {
		return InvalidHandle, err
	}
	ch.SetRemoteNodeName(temp)
	ch.SetDelegate(n)
	if err := ch.Start(); err != nil {
		return InvalidHandle, err
	}

	body := wire.InvitationBody{
		InviterName:              n.name,
		TemporaryRemoteNodeName:  temp,
		IntendedEndpointName:     remote.name,
		IntendedPeerEndpointName: local.name,
	}

	n.mu.Lock()
	n.localEndpoints[local.name] = local
	n.localEndpoints[remote.name] = remote
	n.nodeChannels[temp] = ch
	n.pendingInvitations[temp] = &pendingInvitation{reserved: remote, onAccepted: onAccepted, runner: runner}
	n.mu.Unlock()

	if err := ch.SendInvitation(body); err != nil {
		return InvalidHandle, err
	}

	return n.table.Allocate(local), nil
}

// AcceptInvitation listens for a single invitation on fd and reports
// the recovered handle to onInvitation, posted to runner. A node may
// accept only one invitation in its lifetime; a second call returns
// ErrInvitationAlreadyAccepted.
func (n *Node) AcceptInvitation(fd int, ioLoop scheduling.IOCapableLoop, onInvitation func(Handle), runner scheduling.TaskRunner) error {
	n.mu.Lock()
	if n.acceptedInvitation {
		n.mu.Unlock()
		return ErrInvitationAlreadyAccepted
	}
	n.acceptedInvitation = true
	n.acceptCallback = onInvitation
	n.acceptCallbackRunner = runner
	n.mu.Unlock()

	ch, err := NewChannel(fd, ioLoop, n.log)
	if err != nil {
		return err
	}
	ch.SetRemoteNodeName(wire.PlaceholderNodeName)
	ch.SetDelegate(n)
	if err := ch.Start(); err != nil {
		return err
	}

	n.mu.Lock()
	n.nodeChannels[wire.PlaceholderNodeName] = ch
	n.mu.Unlock()
	return nil
}

// PopulateEndpointDescriptor builds the EndpointDescriptor for an
// inline handle transfer and atomically transitions handleToSend's
// endpoint to UnboundProxying, targeting wherever carrierHandle's
// endpoint is currently addressed. Called once per handle a generated
// stub embeds in an outgoing message, before that message is passed to
// SendMessage.
func (n *Node) PopulateEndpointDescriptor(handleToSend, carrierHandle Handle) (wire.EndpointDescriptor, error) {
	x, ok := n.table.Lookup(handleToSend)
	if !ok {
		return wire.EndpointDescriptor{}, ErrInvariant
	}
	carrier, ok := n.table.Lookup(carrierHandle)
	if !ok {
		return wire.EndpointDescriptor{}, ErrInvariant
	}
	targetNode := carrier.Peer().NodeName

	xPeer := x.Peer()
	cross := wire.GenerateName()
	d := wire.EndpointDescriptor{
		EndpointName:          x.Name(),
		CrossNodeEndpointName: cross,
		PeerNodeName:          xPeer.NodeName,
		PeerEndpointName:      xPeer.EndpointName,
	}
	if err := x.SetProxying(targetNode, cross); err != nil {
		return wire.EndpointDescriptor{}, err
	}
	return d, nil
}

// SendMessage addresses m at e's current peer and routes it there,
// locally or over its node's channel. Any inline handle transfers must
// already have been applied to m.Descriptors via
// PopulateEndpointDescriptor. Sending on a Failed endpoint returns
// ErrEndpointFailed.
func (n *Node) SendMessage(e *Endpoint, m *wire.Message) error {
	if e.State() == StateFailed {
		return ErrEndpointFailed
	}
	peer := e.Peer()
	m.Header.Kind = wire.KindUserMessage
	m.Header.TargetEndpoint = peer.EndpointName

	if peer.NodeName == n.name {
		target, ok := n.lookupLocalEndpoint(peer.EndpointName)
		if !ok {
			return ErrUnknownTarget
		}
		_, err := target.AcceptMessageOnDelegateThread(m)
		return err
	}
	return n.writeToChannel(peer.NodeName, m)
}

// forwardMessage routes m to target, locally or over a channel,
// without going through SendMessage's descriptor-population (the
// message already carries whatever descriptors it arrived with).
func (n *Node) forwardMessage(target wire.Address, m *wire.Message) error {
	if target.NodeName == n.name {
		e, ok := n.lookupLocalEndpoint(target.EndpointName)
		if !ok {
			return ErrUnknownTarget
		}
		_, err := e.AcceptMessageOnDelegateThread(m)
		return err
	}
	return n.writeToChannel(target.NodeName, m)
}

func (n *Node) writeToChannel(name wire.NodeName, m *wire.Message) error {
	n.mu.Lock()
	ch, ok := n.nodeChannels[name]
	n.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: no channel to node %s", ErrTransport, name)
	}
	return ch.SendMessage(m)
}

func (n *Node) lookupLocalEndpoint(name wire.EndpointName) (*Endpoint, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	e, ok := n.localEndpoints[name]
	return e, ok
}

func (n *Node) RecoverNewFromDescriptor(d wire.EndpointDescriptor) (Handle, error) {
	e := newEndpoint(d.CrossNodeEndpointName, wire.Address{NodeName: d.PeerNodeName, EndpointName: d.PeerEndpointName}, n, n.log)
	n.mu.Lock()
	n.localEndpoints[e.name] = e
	n.mu.Unlock()
	return n.table.Allocate(e), nil
}

func (n *Node) RecoverExistingFromDescriptor(d wire.EndpointDescriptor) (Handle, error) {
	e, ok := n.lookupLocalEndpoint(d.EndpointName)
	if !ok {
		return InvalidHandle, ErrCorrupt
	}
	return n.table.Allocate(e), nil
}

// OnChannelMessage implements ChannelDelegate, dispatching on kind.
func (n *Node) OnChannelMessage(ch *Channel, msg *wire.Message) {
	switch msg.Header.Kind {
	case wire.KindSendInvitation:
		n.handleSendInvitation(ch, msg)
	case wire.KindAcceptInvitation:
		n.handleAcceptInvitation(ch, msg)
	case wire.KindUserMessage:
		n.onReceivedUserMessage(msg)
	default:
		n.log.Warnf("node %s: received unexpected message kind %v", n.name, msg.Header.Kind)
	}
}

func (n *Node) onReceivedUserMessage(msg *wire.Message) {
	e, ok := n.lookupLocalEndpoint(msg.Header.TargetEndpoint)
	if !ok {
		n.log.Warnf("node %s: unknown target endpoint %s, dropping message", n.name, msg.Header.TargetEndpoint)
		return
	}
	if _, err := e.AcceptMessageOnIOThread(msg); err != nil {
		n.log.Errorf("node %s: failed to accept message for %s: %v", n.name, msg.Header.TargetEndpoint, err)
	}
}

func (n *Node) handleSendInvitation(ch *Channel, msg *wire.Message) error {
	body, err := wire.DecodeInvitationBody(msg.Payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}

	local := newEndpoint(body.IntendedEndpointName, wire.Address{NodeName: body.InviterName, EndpointName: body.IntendedPeerEndpointName}, n, n.log)

	n.mu.Lock()
	delete(n.nodeChannels, wire.PlaceholderNodeName)
	n.nodeChannels[body.InviterName] = ch
	n.localEndpoints[local.name] = local
	callback := n.acceptCallback
	runner := n.acceptCallbackRunner
	n.mu.Unlock()

	ch.SetRemoteNodeName(body.InviterName)

	handle := n.table.Allocate(local)
	if callback != nil {
		runner.Post(task.New(func() { callback(handle) }))
	}

	reply := wire.AcceptInvitationBody{
		TemporaryRemoteNodeName: body.TemporaryRemoteNodeName,
		ActualNodeName:          n.name,
	}
	return ch.SendAcceptInvitation(reply)
}

func (n *Node) handleAcceptInvitation(ch *Channel, msg *wire.Message) error {
	body, err := wire.DecodeAcceptInvitationBody(msg.Payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}

	temp, actual := body.TemporaryRemoteNodeName, body.ActualNodeName

	n.mu.Lock()
	if c, ok := n.nodeChannels[temp]; ok {
		delete(n.nodeChannels, temp)
		n.nodeChannels[actual] = c
	}
	endpoints := make([]*Endpoint, 0, len(n.localEndpoints))
	for _, e := range n.localEndpoints {
		endpoints = append(endpoints, e)
	}
	pending, ok := n.pendingInvitations[temp]
	delete(n.pendingInvitations, temp)
	n.mu.Unlock()

	ch.SetRemoteNodeName(actual)
	for _, e := range endpoints {
		e.replacePeerNodeName(temp, actual)
	}

	if ok {
		pending.runner.Post(pending.onAccepted)
	}
	return nil
}

// OnChannelError implements ChannelDelegate: a dead channel fails
// every endpoint routed through it and forgets the channel.
func (n *Node) OnChannelError(ch *Channel, err error) {
	n.log.Errorf("node %s: channel error: %v", n.name, err)

	n.mu.Lock()
	var deadKey wire.NodeName
	found := false
	for k, c := range n.nodeChannels {
		if c == ch {
			deadKey = k
			found = true
			break
		}
	}
	if found {
		delete(n.nodeChannels, deadKey)
	}
	var affected []*Endpoint
	if found {
		for _, e := range n.localEndpoints {
			if e.Peer().NodeName == deadKey {
				affected = append(affected, e)
			}
		}
	}
	n.mu.Unlock()

	for _, e := range affected {
		e.Fail()
	}
}

// Shutdown closes every channel this node owns, fails every invitation
// still awaiting its peer's reply, and returns a future that resolves
// once cleanup has run. Mirrors the teacher's poweroff/Unity.Shutdown
// shape.
func (n *Node) Shutdown() *ShutdownFuture {
	n.mu.Lock()
	channels := make([]*Channel, 0, len(n.nodeChannels))
	for _, c := range n.nodeChannels {
		channels = append(channels, c)
	}
	n.nodeChannels = make(map[wire.NodeName]*Channel)

	pending := make([]*pendingInvitation, 0, len(n.pendingInvitations))
	for _, p := range n.pendingInvitations {
		pending = append(pending, p)
	}
	n.pendingInvitations = make(map[wire.NodeName]*pendingInvitation)
	n.mu.Unlock()

	future := n.shutdown.begin()
	go func() {
		for _, p := range pending {
			p.reserved.Fail()
		}
		for _, c := range channels {
			if err := c.Close(); err != nil {
				n.log.Warnf("node %s: error closing channel during shutdown: %v", n.name, err)
			}
		}
		n.shutdown.complete()
	}()
	return future
}
