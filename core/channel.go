package core

import (
	"fmt"
	"sync"

	promlog "github.com/prometheus/common/log"
	"golang.org/x/sys/unix"

	"github.com/jabolina/go-mage/logging"
	"github.com/jabolina/go-mage/scheduling"
	"github.com/jabolina/go-mage/wire"
)

// ChannelDelegate receives decoded messages and transport-fatal errors
// from a Channel. Node is the only implementation in this module.
type ChannelDelegate interface {
	OnChannelMessage(ch *Channel, msg *wire.Message)
	OnChannelError(ch *Channel, err error)
}

// Channel is the byte-level transport: it owns one raw, non-blocking
// OS fd, frames outgoing Messages with wire.Encode,
// reassembles incoming bytes into Messages with wire.DecodeHeader/
// DecodeBody, and is driven entirely by an IOCapableLoop registration
// rather than a dedicated reader goroutine, mirroring the teacher's
// TCPTransport being driven by its own read loop (pkg/mcast/core/transport.go)
// generalized here to a reactor callback instead of a blocking read.
type Channel struct {
	fd     int
	ioLoop scheduling.IOCapableLoop
	log    logging.Logger

	mu             sync.Mutex
	delegate       ChannelDelegate
	remoteNodeName wire.NodeName
	readBuf        []byte
	closed         bool

	writeMu sync.Mutex
}

// NewChannel wraps fd, switching it to non-blocking mode: a Channel
// never issues a blocking syscall.
func NewChannel(fd int, ioLoop scheduling.IOCapableLoop, log logging.Logger) (*Channel, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, fmt.Errorf("mage/core: set nonblocking: %w", err)
	}
	return &Channel{fd: fd, ioLoop: ioLoop, log: log}, nil
}

// SetDelegate installs the receiver of decoded messages and errors.
func (c *Channel) SetDelegate(d ChannelDelegate) {
	c.mu.Lock()
	c.delegate = d
	c.mu.Unlock()
}

// SetRemoteNodeName records which NodeName this channel currently
// believes its peer to be, purely for diagnostics; Node's maps are the
// source of truth for routing.
func (c *Channel) SetRemoteNodeName(n wire.NodeName) {
	c.mu.Lock()
	c.remoteNodeName = n
	c.mu.Unlock()
}

func (c *Channel) remoteName() wire.NodeName {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteNodeName
}

// Start registers the channel's fd with the IO loop it was built with.
func (c *Channel) Start() error {
	return c.ioLoop.WatchFD(c.fd, c.onReadable)
}

// SendInvitation writes a KindSendInvitation frame.
func (c *Channel) SendInvitation(body wire.InvitationBody) error {
	return c.SendMessage(&wire.Message{
		Header:  wire.Header{Kind: wire.KindSendInvitation},
		Payload: wire.EncodeInvitationBody(body),
	})
}

// SendAcceptInvitation writes a KindAcceptInvitation frame.
func (c *Channel) SendAcceptInvitation(body wire.AcceptInvitationBody) error {
	return c.SendMessage(&wire.Message{
		Header:  wire.Header{Kind: wire.KindAcceptInvitation},
		Payload: wire.EncodeAcceptInvitationBody(body),
	})
}

// SendMessage encodes msg and writes it to the fd in full, retrying on
// EAGAIN. There is no flow control: the write busy-retries rather than
// deferring to the IO loop's writable-readiness, which keeps Channel's
// surface to the single onReadable callback the loop needs to
// register.
func (c *Channel) SendMessage(msg *wire.Message) error {
	encoded, err := wire.Encode(msg)
	if err != nil {
		return fmt.Errorf("mage/core: encode: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.writeAll(encoded)
}

func (c *Channel) writeAll(b []byte) error {
	for len(b) > 0 {
		n, err := unix.Write(c.fd, b)
		switch err {
		case nil:
			b = b[n:]
		case unix.EAGAIN, unix.EWOULDBLOCK, unix.EINTR:
			continue
		default:
			wrapped := fmt.Errorf("%w: write: %v", ErrTransport, err)
			c.fail(wrapped)
			return wrapped
		}
	}
	return nil
}

// onReadable is the reactor callback: drain whatever is currently
// available non-blocking, then extract as many complete frames as
// have accumulated.
func (c *Channel) onReadable() {
	buf := make([]byte, 64*1024)
	for {
		n, err := unix.Read(c.fd, buf)
		switch err {
		case nil:
			if n == 0 {
				c.fail(fmt.Errorf("%w: peer closed", ErrTransport))
				return
			}
			c.mu.Lock()
			c.readBuf = append(c.readBuf, buf[:n]...)
			c.mu.Unlock()
		case unix.EINTR:
			continue
		case unix.EAGAIN, unix.EWOULDBLOCK:
			goto drain
		default:
			c.fail(fmt.Errorf("%w: read: %v", ErrTransport, err))
			return
		}
	}

drain:
	for c.extractOneMessage() {
	}
}

func (c *Channel) extractOneMessage() bool {
	c.mu.Lock()
	if len(c.readBuf) < wire.HeaderSize {
		c.mu.Unlock()
		return false
	}
	header, err := wire.DecodeHeader(c.readBuf)
	if err != nil {
		c.mu.Unlock()
		c.fail(fmt.Errorf("%w: %v", ErrTransport, err))
		return false
	}
	need := wire.HeaderSize + wire.BodySize(header)
	if len(c.readBuf) < need {
		c.mu.Unlock()
		return false
	}
	body := append([]byte(nil), c.readBuf[wire.HeaderSize:need]...)
	c.readBuf = c.readBuf[need:]
	delegate := c.delegate
	c.mu.Unlock()

	msg, err := wire.DecodeBody(header, body)
	if err != nil {
		c.fail(fmt.Errorf("%w: %v", ErrTransport, err))
		return false
	}

	if delegate != nil {
		delegate.OnChannelMessage(c, msg)
	}
	return true
}

func (c *Channel) fail(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	delegate := c.delegate
	remote := c.remoteNodeName
	c.mu.Unlock()

	promlog.Errorf("mage channel to node %s failed: %v", remote, err)
	if delegate != nil {
		delegate.OnChannelError(c, err)
	}
}

// Close unregisters the fd from the IO loop and closes it.
func (c *Channel) Close() error {
	_ = c.ioLoop.UnwatchFD(c.fd)
	return unix.Close(c.fd)
}
