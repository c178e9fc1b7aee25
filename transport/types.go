package transport

// Parent receives lifecycle and data events from a TransportClient.
// For a given client, Connected is invoked at most once per successful
// Start, Receive zero or more times, and Error at most once; after Error
// the client has already stopped and no further callbacks occur. The
// three callbacks are never invoked concurrently with each other.
type Parent interface {
	// Connected signals that the client established its stream.
	Connected()

	// Receive delivers one decoded inbound packet. The buffer is owned
	// by the callee after the call returns.
	Receive(buf *Buffer)

	// Error reports a fatal transport condition. The client is stopped
	// before this is invoked.
	Error(err error)
}

// TransportClient is the polymorphic client contract implemented by the
// stream transport here and by datagram variants elsewhere. Callers hold
// only this interface, never a concrete variant.
type TransportClient interface {
	// Start begins resolution and connection establishment. Calling
	// Start on a client that is already started is a no-op. A stopped
	// client cannot be restarted; construct a new one.
	Start()

	// Send queues an outbound packet, taking ownership of the buffer.
	// It reports false if the client is not connected or the send
	// queue is full.
	Send(buf *Buffer) bool

	// SendConst is like Send but copies the data first, so the caller
	// retains ownership of p.
	SendConst(p []byte) bool

	// Stop cancels any outstanding work and releases the connection.
	// It is idempotent and safe to call before Start.
	Stop()

	// RemoteEndpoint returns the resolved endpoint, or nil before
	// resolution succeeds.
	RemoteEndpoint() *Endpoint

	// EndpointRender returns a diagnostic string naming the transport
	// kind and the resolved address.
	EndpointRender() string
}

// TransportClientFactory constructs clients bound to a configured remote
// and to shared tuning parameters.
type TransportClientFactory interface {
	NewClient(parent Parent) TransportClient
}

// LinkOwner receives events from a Link.
type LinkOwner interface {
	// Frame delivers one decoded inbound packet.
	Frame(buf *Buffer)

	// StreamError reports a fatal read or write failure. It is invoked
	// at most once per link; the link does not retry.
	StreamError(err error)
}
