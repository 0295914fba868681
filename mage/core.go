// Package mage is the process-wide singleton facade: it wraps exactly
// one core.Node and one core.HandleTable behind package-level
// functions, the same "one instance, accessed through package
// functions" shape the teacher uses for InvokerInstance() throughout
// pkg/mcast/core/peer.go.
package mage

import (
	"sync"

	"github.com/jabolina/go-mage/core"
	"github.com/jabolina/go-mage/scheduling"
	"github.com/jabolina/go-mage/task"
	"github.com/jabolina/go-mage/wire"
)

// Handle is the opaque, process-local reference to an endpoint.
type Handle = core.Handle

// InvalidHandle is the zero Handle value.
const InvalidHandle = core.InvalidHandle

// Delegate receives messages delivered to a bound endpoint.
type Delegate = core.Delegate

// ShutdownFuture resolves once a node's teardown has completed.
type ShutdownFuture = core.ShutdownFuture

var (
	mu       sync.Mutex
	instance *Core
)

// Core is the live singleton state: one node, one handle table, one
// dedicated IO thread driving every Channel's readiness.
type Core struct {
	node     *core.Node
	table    *core.HandleTable
	ioThread *scheduling.Thread
	cfg      Config
}

// Init creates the process-wide Core with cfg, starting its IO thread.
// Calling Init twice without an intervening ShutdownCleanly fails with
// ErrAlreadyInitialized.
func Init(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()
	if instance != nil {
		return ErrAlreadyInitialized
	}

	th, err := scheduling.NewThread(scheduling.FlavorIO, cfg.IOLoopCapacity)
	if err != nil {
		return err
	}
	if err := th.Start(); err != nil {
		return err
	}

	table := core.NewHandleTable()
	node := core.NewNode(table, cfg.Logger)

	instance = &Core{node: node, table: table, ioThread: th, cfg: cfg}
	return nil
}

// ShutdownCleanly tears down the node (closing every channel) and
// stops the IO thread, blocking until both have finished. Safe to call
// when Init was never called.
func ShutdownCleanly() {
	mu.Lock()
	c := instance
	instance = nil
	mu.Unlock()
	if c == nil {
		return
	}

	c.node.Shutdown().Wait()
	c.ioThread.Stop()
	if err := c.ioThread.Join(); err != nil {
		c.cfg.Logger.Errorf("mage: IO thread exited abnormally: %v", err)
	}
}

func current() (*Core, error) {
	mu.Lock()
	defer mu.Unlock()
	if instance == nil {
		return nil, ErrNotInitialized
	}
	return instance, nil
}

func (c *Core) ioLoop() scheduling.IOCapableLoop {
	l, _ := c.ioThread.IOLoop()
	return l
}

// CreateMessagePipes allocates two entangled endpoints local to this
// process and returns a handle to each.
func CreateMessagePipes() (Handle, Handle, error) {
	c, err := current()
	if err != nil {
		return InvalidHandle, InvalidHandle, err
	}
	a, b := c.node.CreateMessagePipes()
	return a, b, nil
}

// SendInvitation opens an invitation handshake over fd, returning a
// handle to the local side of the new pipe immediately; onAccepted
// runs on runner once the peer's AcceptInvitation reply arrives.
func SendInvitation(fd int, onAccepted task.Task, runner scheduling.TaskRunner) (Handle, error) {
	c, err := current()
	if err != nil {
		return InvalidHandle, err
	}
	return c.node.SendInvitation(fd, c.ioLoop(), onAccepted, runner)
}

// AcceptInvitation listens for a single invitation on fd; onInvitation
// runs on runner with the recovered handle once it arrives. A Core may
// accept at most one invitation between Init and ShutdownCleanly.
func AcceptInvitation(fd int, onInvitation func(Handle), runner scheduling.TaskRunner) error {
	c, err := current()
	if err != nil {
		return err
	}
	return c.node.AcceptInvitation(fd, c.ioLoop(), onInvitation, runner)
}

// SendMessage routes m out through the endpoint h refers to. Any
// inline handle transfers must already be reflected in m.Descriptors
// via PopulateEndpointDescriptor.
func SendMessage(h Handle, m *wire.Message) error {
	c, err := current()
	if err != nil {
		return err
	}
	e, ok := c.table.Lookup(h)
	if !ok {
		return core.ErrInvariant
	}
	return c.node.SendMessage(e, m)
}

// BindReceiver attaches delegate to h's endpoint, posting to runner
// for every message the endpoint has already queued and every message
// it receives from now on.
func BindReceiver(h Handle, delegate Delegate, runner scheduling.TaskRunner) error {
	c, err := current()
	if err != nil {
		return err
	}
	e, ok := c.table.Lookup(h)
	if !ok {
		return core.ErrInvariant
	}
	return e.RegisterDelegate(delegate, runner)
}

// UnregisterDelegate detaches h's currently bound delegate, putting the
// endpoint back into UnboundQueueing so it accumulates arriving
// messages instead of delivering them, until BindReceiver is called
// again.
func UnregisterDelegate(h Handle) error {
	c, err := current()
	if err != nil {
		return err
	}
	e, ok := c.table.Lookup(h)
	if !ok {
		return core.ErrInvariant
	}
	return e.UnregisterDelegate()
}

// PopulateEndpointDescriptor builds the EndpointDescriptor for
// transferring handleToSend inline within a message being sent on
// carrierHandle, and transitions handleToSend's endpoint to
// UnboundProxying.
func PopulateEndpointDescriptor(handleToSend, carrierHandle Handle) (wire.EndpointDescriptor, error) {
	c, err := current()
	if err != nil {
		return wire.EndpointDescriptor{}, err
	}
	return c.node.PopulateEndpointDescriptor(handleToSend, carrierHandle)
}

// RecoverNewFromDescriptor creates a fresh local endpoint for a
// cross-process handle transfer, as performed on the IO thread.
func RecoverNewFromDescriptor(d wire.EndpointDescriptor) (Handle, error) {
	c, err := current()
	if err != nil {
		return InvalidHandle, err
	}
	return c.node.RecoverNewFromDescriptor(d)
}

// RecoverExistingFromDescriptor looks up the already-local endpoint a
// same-process handle transfer refers to, as performed on the
// delegate's own thread.
func RecoverExistingFromDescriptor(d wire.EndpointDescriptor) (Handle, error) {
	c, err := current()
	if err != nil {
		return InvalidHandle, err
	}
	return c.node.RecoverExistingFromDescriptor(d)
}

// CloseHandle removes h from the handle table. The underlying
// endpoint, if UnboundQueueing or Bound, is left exactly as it was;
// only the caller's own reference to it is released.
func CloseHandle(h Handle) {
	c, err := current()
	if err != nil {
		return
	}
	c.table.Close(h)
}
