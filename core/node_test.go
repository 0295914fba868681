package core

import (
	"testing"
	"time"

	"github.com/jabolina/go-mage/logging"
	"github.com/jabolina/go-mage/scheduling"
	"github.com/jabolina/go-mage/task"
	"github.com/jabolina/go-mage/wire"
)

func newTestNode(t *testing.T) (*Node, scheduling.IOCapableLoop) {
	t.Helper()
	_, ioLoop := startIOThread(t)
	return NewNode(NewHandleTable(), logging.NewDefaultLogger()), ioLoop
}

func TestCreateMessagePipesAreEntangled(t *testing.T) {
	node, _ := newTestNode(t)
	a, b := node.CreateMessagePipes()

	ea, _ := node.table.Lookup(a)
	eb, _ := node.table.Lookup(b)

	if ea.Peer().EndpointName != eb.Name() {
		t.Fatal("endpoint a's peer should be endpoint b")
	}
	if eb.Peer().EndpointName != ea.Name() {
		t.Fatal("endpoint b's peer should be endpoint a")
	}
}

func TestSendMessageBetweenLocalPipes(t *testing.T) {
	node, _ := newTestNode(t)
	a, b := node.CreateMessagePipes()
	ea, _ := node.table.Lookup(a)
	eb, _ := node.table.Lookup(b)

	loop := scheduling.NewWorkerLoop()
	go loop.Run()
	defer loop.Quit()

	recv := newOrderRecorder()
	if err := eb.RegisterDelegate(recv, loop.TaskRunner()); err != nil {
		t.Fatalf("RegisterDelegate: %v", err)
	}

	if err := node.SendMessage(ea, &wire.Message{Payload: []byte("ping")}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if !recv.waitForCount(1, time.Second) {
		t.Fatal("message sent on the local pipe never arrived")
	}
	if string(recv.snapshot()[0].Payload) != "ping" {
		t.Fatalf("unexpected payload: %q", recv.snapshot()[0].Payload)
	}
}

func TestSendMessageToUnknownLocalTargetFails(t *testing.T) {
	node, _ := newTestNode(t)
	a, _ := node.CreateMessagePipes()
	ea, _ := node.table.Lookup(a)

	// Close b out of the node's bookkeeping to make ea's peer unknown.
	node.mu.Lock()
	delete(node.localEndpoints, ea.Peer().EndpointName)
	node.mu.Unlock()

	if err := node.SendMessage(ea, &wire.Message{Payload: []byte("x")}); err != ErrUnknownTarget {
		t.Fatalf("expected ErrUnknownTarget, got %v", err)
	}
}

// invitationHandshake connects two nodes over a real socket pair and
// drives SendInvitation/AcceptInvitation to completion, returning the
// handle each side got for its side of the entangled pair.
func invitationHandshake(t *testing.T) (inviter, acceptor *Node, inviterHandle, acceptorHandle Handle) {
	t.Helper()

	inviter, inviterLoop := newTestNode(t)
	acceptor, acceptorLoop := newTestNode(t)

	a, b := socketPair(t)

	runner := scheduling.NewWorkerLoop()
	go runner.Run()
	t.Cleanup(runner.Quit)

	onAccepted := task.New(func() {})
	ih, err := inviter.SendInvitation(a, inviterLoop, onAccepted, runner.TaskRunner())
	if err != nil {
		t.Fatalf("SendInvitation: %v", err)
	}

	accepted := make(chan Handle, 1)
	if err := acceptor.AcceptInvitation(b, acceptorLoop, func(h Handle) { accepted <- h }, runner.TaskRunner()); err != nil {
		t.Fatalf("AcceptInvitation: %v", err)
	}

	select {
	case ah := <-accepted:
		acceptorHandle = ah
	case <-time.After(time.Second):
		t.Fatal("acceptor never observed the invitation")
	}

	return inviter, acceptor, ih, acceptorHandle
}

func TestInvitationHandshakeDeliversMessageAcrossNodes(t *testing.T) {
	inviter, acceptor, ih, ah := invitationHandshake(t)

	inviterEndpoint, ok := inviter.table.Lookup(ih)
	if !ok {
		t.Fatal("inviter handle not found")
	}
	acceptorEndpoint, ok := acceptor.table.Lookup(ah)
	if !ok {
		t.Fatal("acceptor handle not found")
	}

	loop := scheduling.NewWorkerLoop()
	go loop.Run()
	defer loop.Quit()

	recv := newOrderRecorder()
	if err := acceptorEndpoint.RegisterDelegate(recv, loop.TaskRunner()); err != nil {
		t.Fatalf("RegisterDelegate: %v", err)
	}

	if err := inviter.SendMessage(inviterEndpoint, &wire.Message{Payload: []byte("hello across nodes")}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if !recv.waitForCount(1, 2*time.Second) {
		t.Fatal("message never crossed the invitation channel")
	}
	if string(recv.snapshot()[0].Payload) != "hello across nodes" {
		t.Fatalf("unexpected payload: %q", recv.snapshot()[0].Payload)
	}
}

func TestInvitationHandshakeRenamesTemporaryNodeName(t *testing.T) {
	inviter, acceptor, _, _ := invitationHandshake(t)

	deadline := time.After(time.Second)
	for {
		inviter.mu.Lock()
		n := len(inviter.nodeChannels)
		_, renamed := inviter.nodeChannels[acceptor.Name()]
		inviter.mu.Unlock()
		if n == 1 && renamed {
			break
		}
		select {
		case <-deadline:
			t.Fatal("inviter's node channel map never settled to the actual acceptor name")
		case <-time.After(time.Millisecond):
		}
	}

	inviter.mu.Lock()
	for name := range inviter.nodeChannels {
		if name == acceptor.Name() {
			inviter.mu.Unlock()
			return
		}
	}
	inviter.mu.Unlock()
	t.Fatal("inviter never learned the acceptor's real node name")
}

func TestAcceptInvitationTwiceFails(t *testing.T) {
	acceptor, acceptorLoop := newTestNode(t)
	_, b := socketPair(t)

	runner := scheduling.NewWorkerLoop()
	if err := acceptor.AcceptInvitation(b, acceptorLoop, func(Handle) {}, runner.TaskRunner()); err != nil {
		t.Fatalf("first AcceptInvitation: %v", err)
	}

	_, c := socketPair(t)
	if err := acceptor.AcceptInvitation(c, acceptorLoop, func(Handle) {}, runner.TaskRunner()); err != ErrInvitationAlreadyAccepted {
		t.Fatalf("expected ErrInvitationAlreadyAccepted, got %v", err)
	}
}

func TestPopulateEndpointDescriptorTransitionsToProxying(t *testing.T) {
	node, _ := newTestNode(t)
	toSendHandle, _ := node.CreateMessagePipes()
	carrierHandle, _ := node.CreateMessagePipes()

	d, err := node.PopulateEndpointDescriptor(toSendHandle, carrierHandle)
	if err != nil {
		t.Fatalf("PopulateEndpointDescriptor: %v", err)
	}

	e, _ := node.table.Lookup(toSendHandle)
	if e.State() != StateUnboundProxying {
		t.Fatalf("expected the sent handle's endpoint to become UnboundProxying, got %v", e.State())
	}
	if d.EndpointName != e.Name() {
		t.Fatal("descriptor's EndpointName should match the transferred endpoint's own name")
	}

	if d.PeerNodeName != e.Peer().NodeName {
		t.Fatal("descriptor's PeerNodeName should be the transferred endpoint's own peer node")
	}
}

func TestRecoverExistingFromDescriptorFindsLocalEndpoint(t *testing.T) {
	node, _ := newTestNode(t)
	h, _ := node.CreateMessagePipes()
	e, _ := node.table.Lookup(h)

	d := wire.EndpointDescriptor{EndpointName: e.Name()}
	got, err := node.RecoverExistingFromDescriptor(d)
	if err != nil {
		t.Fatalf("RecoverExistingFromDescriptor: %v", err)
	}
	recovered, _ := node.table.Lookup(got)
	if recovered != e {
		t.Fatal("recovered handle should refer to the same endpoint")
	}
}

func TestRecoverExistingFromDescriptorUnknownEndpointFails(t *testing.T) {
	node, _ := newTestNode(t)
	if _, err := node.RecoverExistingFromDescriptor(wire.EndpointDescriptor{EndpointName: wire.GenerateName()}); err != ErrCorrupt {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestOnChannelErrorFailsAffectedEndpoints(t *testing.T) {
	inviter, _, ih, _ := invitationHandshake(t)

	e, ok := inviter.table.Lookup(ih)
	if !ok {
		t.Fatal("inviter handle not found")
	}

	inviter.mu.Lock()
	var ch *Channel
	for _, c := range inviter.nodeChannels {
		ch = c
		break
	}
	inviter.mu.Unlock()
	if ch == nil {
		t.Fatal("inviter has no channel to fail")
	}

	inviter.OnChannelError(ch, ErrTransport)

	deadline := time.After(time.Second)
	for e.State() != StateFailed {
		select {
		case <-deadline:
			t.Fatalf("endpoint never transitioned to Failed after its channel died, state=%v", e.State())
		case <-time.After(time.Millisecond):
		}
	}
}

func TestNodeShutdownClosesChannelsAndResolves(t *testing.T) {
	inviter, _, _, _ := invitationHandshake(t)

	future := inviter.Shutdown()
	select {
	case <-future.Done():
	case <-time.After(time.Second):
		t.Fatal("shutdown future never resolved")
	}

	inviter.mu.Lock()
	n := len(inviter.nodeChannels)
	inviter.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected node channels to be cleared after shutdown, got %d remaining", n)
	}
}
