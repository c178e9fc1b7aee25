package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/vpncore/stats"
)

// State is a TCPClient lifecycle state.
type State int32

const (
	// StateIdle is the initial state before Start.
	StateIdle State = iota
	// StateResolving means name resolution is in flight.
	StateResolving
	// StateConnected means the link is established and running.
	StateConnected
	// StateStopped is terminal; a stopped client cannot restart.
	StateStopped
)

// String returns the state name for log fields.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StateConnected:
		return "connected"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// TCPClient is the stream-oriented TransportClient. It resolves the
// configured remote, dials it, and runs one Link over the connection,
// forwarding decoded packets to its parent.
//
// A client moves Idle -> Resolving -> Connected -> Stopped. Stop renders
// every already-scheduled callback inert via the halt flag, so no parent
// callback observes the client after Stop returns.
type TCPClient struct {
	config *ClientConfig
	parent Parent
	id     uuid.UUID

	state atomic.Int32
	halt  atomic.Bool

	mu       sync.Mutex
	link     *Link
	endpoint *Endpoint
	cancel   context.CancelFunc
}

func newTCPClient(config *ClientConfig, parent Parent) *TCPClient {
	return &TCPClient{
		config: config,
		parent: parent,
		id:     uuid.New(),
	}
}

// Start begins asynchronous resolution of the configured remote. It is a
// no-op unless the client is Idle.
func (c *TCPClient) Start() {
	ctx, cancel := context.WithCancel(context.Background())

	// The cancel func is published under the same lock as the state
	// transition, so a racing Stop either prevents the transition or
	// finds the context to cancel.
	c.mu.Lock()
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateResolving)) {
		c.mu.Unlock()
		cancel()
		return
	}
	c.cancel = cancel
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"conn_id": c.id,
		"host":    c.config.ServerHost,
		"port":    c.config.ServerPort,
	}).Debug("TCP client resolving")

	go c.connect(ctx)
}

// Send forwards one packet to the link, taking ownership of buf. It
// reports false if the client is not connected or the link queue is
// full.
func (c *TCPClient) Send(buf *Buffer) bool {
	c.mu.Lock()
	link := c.link
	c.mu.Unlock()
	if link == nil {
		return false
	}
	return link.Send(buf)
}

// SendConst copies p into a fresh buffer and sends it; the caller keeps
// ownership of p.
func (c *TCPClient) SendConst(p []byte) bool {
	c.mu.Lock()
	link := c.link
	c.mu.Unlock()
	if link == nil {
		return false
	}
	return link.Send(NewBufferFrom(p))
}

// Stop cancels outstanding resolution, stops the link, and marks the
// client terminal. It is idempotent and safe to call before Start.
func (c *TCPClient) Stop() {
	c.halt.Store(true)

	// The state store happens under the lock so a connect completing
	// concurrently cannot resurrect a stopped client.
	c.mu.Lock()
	c.state.Store(int32(StateStopped))
	cancel := c.cancel
	link := c.link
	c.cancel = nil
	c.link = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if link != nil {
		link.Stop()
	}
}

// State returns the current lifecycle state.
func (c *TCPClient) State() State {
	return State(c.state.Load())
}

// RemoteEndpoint returns the resolved endpoint, or nil before resolution.
func (c *TCPClient) RemoteEndpoint() *Endpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpoint
}

// EndpointRender returns "TCP <ip>:<port>" once resolved, and the
// configured remote before that.
func (c *TCPClient) EndpointRender() string {
	c.mu.Lock()
	ep := c.endpoint
	c.mu.Unlock()
	if ep != nil {
		return ep.Render()
	}
	return "TCP " + net.JoinHostPort(c.config.ServerHost, c.config.ServerPort)
}

// connect performs resolution and dialing on its own goroutine, then
// hands off to the link. Every step re-checks the halt flag so a Stop
// racing the connection attempt cannot leak a callback.
func (c *TCPClient) connect(ctx context.Context) {
	host := c.config.ServerHost

	port, err := strconv.Atoi(c.config.ServerPort)
	if err != nil || port < 1 || port > 0xFFFF {
		c.count(stats.ResolveError)
		c.fail(fmt.Errorf("bad port %q for TCP session to %q", c.config.ServerPort, host))
		return
	}

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if c.halt.Load() {
		return
	}
	if err != nil {
		c.count(stats.ResolveError)
		c.fail(fmt.Errorf("DNS resolve error on %q for TCP session: %w", host, err))
		return
	}
	if len(addrs) == 0 {
		c.count(stats.ResolveError)
		c.fail(fmt.Errorf("DNS resolve error on %q for TCP session: no addresses", host))
		return
	}

	// Bind the first resolved address as the endpoint.
	ep := NewEndpoint("TCP", addrs[0].IP, port)

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", ep.HostPort())
	if c.halt.Load() {
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		c.count(stats.NetworkSendError)
		c.fail(fmt.Errorf("TCP connect error on %q (%s): %w", host, ep.Render(), err))
		return
	}

	link := NewLink(conn, c, LinkConfig{
		Role:             Initiator,
		SendQueueMaxSize: c.config.SendQueueMaxSize,
		FreeListMaxSize:  c.config.FreeListMaxSize,
		FrameSizeHint:    c.config.FrameSizeHint,
		Stats:            c.config.Stats,
	})

	c.mu.Lock()
	if c.halt.Load() {
		c.mu.Unlock()
		link.Stop()
		return
	}
	c.endpoint = ep
	c.link = link
	c.state.Store(int32(StateConnected))
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"conn_id":  c.id,
		"endpoint": ep.Render(),
	}).Info("TCP client connected")

	// A Stop landing since the link was published has already torn it
	// down; only the callback needs suppressing.
	if c.halt.Load() {
		return
	}

	// Notify before the read loop starts so Connected strictly precedes
	// the first Receive.
	c.parent.Connected()
	link.Start()
}

// Frame implements LinkOwner, forwarding decoded packets to the parent.
func (c *TCPClient) Frame(buf *Buffer) {
	if c.halt.Load() {
		return
	}
	c.parent.Receive(buf)
}

// StreamError implements LinkOwner. The link already recorded the error
// category; the client stops itself before notifying the parent,
// matching the at-most-one-Error contract.
func (c *TCPClient) StreamError(err error) {
	c.fail(fmt.Errorf("transport error on %q: %w", c.config.ServerHost, err))
}

func (c *TCPClient) count(cat stats.ErrorCategory) {
	if c.config.Stats != nil {
		c.config.Stats.Error(cat)
	}
}

// fail transitions to Stopped and reports the error to the parent. The
// halt check makes late failures after Stop inert.
func (c *TCPClient) fail(err error) {
	if c.halt.Load() {
		return
	}

	logrus.WithFields(logrus.Fields{
		"conn_id": c.id,
		"host":    c.config.ServerHost,
		"error":   err.Error(),
	}).Warn("TCP client failed")

	c.Stop()
	c.parent.Error(err)
}
