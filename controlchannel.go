package vpncore

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/vpncore/stats"
	"github.com/opd-ai/vpncore/tlsx"
	"github.com/opd-ai/vpncore/transport"
)

// pumpInterval paces the poll of the session's output sides. Message
// backends flush synchronously on events; the pump exists for backends
// whose record machinery runs on internal goroutines.
const pumpInterval = 5 * time.Millisecond

// ControlChannel wires a TransportClient to a tlsx.Session: inbound
// packets feed the session's ciphertext side, and ciphertext the session
// produces is sent back through the client. Decrypted control payloads
// and fatal conditions surface through registered callbacks.
//
// Register callbacks before Start. Callbacks are serialized; they may
// call Send but must not call Stop.
type ControlChannel struct {
	session tlsx.Session
	client  transport.TransportClient
	stats   *stats.Stats

	onPlaintext func(p []byte)
	onHandshake func(details string)
	onError     func(err error)

	mu     sync.Mutex // guards session access and hsSeen
	cbMu   sync.Mutex // serializes callback dispatch
	hsSeen bool

	halt     atomic.Bool
	done     chan struct{}
	stopOnce sync.Once
}

// NewControlChannel builds a channel from a transport factory and a
// session. The channel is the client's parent; Start connects it.
func NewControlChannel(factory transport.TransportClientFactory, session tlsx.Session) *ControlChannel {
	cc := &ControlChannel{
		session: session,
		done:    make(chan struct{}),
	}
	if cfg, ok := factory.(*transport.ClientConfig); ok {
		cc.stats = cfg.Stats
	}
	cc.client = factory.NewClient(cc)
	return cc
}

// OnPlaintext registers the decrypted-payload callback.
func (cc *ControlChannel) OnPlaintext(fn func(p []byte)) { cc.onPlaintext = fn }

// OnHandshake registers a callback invoked once, with the handshake
// summary, when the session authenticates the peer.
func (cc *ControlChannel) OnHandshake(fn func(details string)) { cc.onHandshake = fn }

// OnError registers the fatal-condition callback, invoked at most once.
func (cc *ControlChannel) OnError(fn func(err error)) { cc.onError = fn }

// Start connects the transport. The handshake begins once the transport
// reports Connected.
func (cc *ControlChannel) Start() {
	cc.client.Start()
}

// Stop tears down the client and the session. Idempotent.
func (cc *ControlChannel) Stop() {
	cc.stopOnce.Do(func() {
		cc.halt.Store(true)
		close(cc.done)
		cc.client.Stop()
		cc.session.Close()
	})
}

// Send queues application bytes for encrypted delivery.
func (cc *ControlChannel) Send(p []byte) error {
	cc.mu.Lock()
	_, err := cc.session.WriteCleartextUnbuffered(p)
	out := cc.collectCiphertextLocked()
	cc.mu.Unlock()
	if err != nil {
		return err
	}
	cc.ship(out)
	return nil
}

// Connected implements transport.Parent: it triggers the handshake and
// starts the output pump.
func (cc *ControlChannel) Connected() {
	if cc.halt.Load() {
		return
	}
	logrus.WithFields(logrus.Fields{
		"endpoint": cc.client.EndpointRender(),
	}).Debug("control channel transport up")

	if err := cc.session.StartHandshake(); err != nil {
		cc.failSession(err)
		return
	}
	cc.pump()
	go cc.pumpLoop()
}

// Receive implements transport.Parent, feeding one packet of ciphertext
// into the session and surfacing whatever it produces.
func (cc *ControlChannel) Receive(buf *transport.Buffer) {
	if cc.halt.Load() {
		return
	}
	cc.mu.Lock()
	err := cc.session.WriteCiphertext(buf.Bytes())
	cc.mu.Unlock()
	if err != nil {
		cc.failSession(err)
		return
	}
	cc.pump()
}

// Error implements transport.Parent.
func (cc *ControlChannel) Error(err error) {
	cc.fail(err)
}

func (cc *ControlChannel) pumpLoop() {
	ticker := time.NewTicker(pumpInterval)
	defer ticker.Stop()
	for {
		select {
		case <-cc.done:
			return
		case <-ticker.C:
			if cc.halt.Load() {
				return
			}
			cc.pump()
		}
	}
}

// pump moves pending session output: ciphertext to the transport,
// cleartext to the application, plus the one-shot handshake callback.
// Dispatch happens outside the session lock, serialized by cbMu.
func (cc *ControlChannel) pump() {
	cc.cbMu.Lock()
	defer cc.cbMu.Unlock()

	cc.mu.Lock()
	out := cc.collectCiphertextLocked()

	var hsDetails string
	fireHandshake := false
	if !cc.hsSeen && cc.session.PeerIdentity() != nil {
		cc.hsSeen = true
		fireHandshake = true
		hsDetails = cc.session.HandshakeDetails()
	}

	var plains [][]byte
	if cc.session.ReadCleartextReady() {
		buf := make([]byte, 4096)
		for {
			n, err := cc.session.ReadCleartext(buf)
			if n == 0 || err != nil {
				break
			}
			p := make([]byte, n)
			copy(p, buf[:n])
			plains = append(plains, p)
		}
	}
	cc.mu.Unlock()

	cc.ship(out)
	if fireHandshake && cc.onHandshake != nil {
		cc.onHandshake(hsDetails)
	}
	if cc.onPlaintext != nil {
		for _, p := range plains {
			cc.onPlaintext(p)
		}
	}
}

func (cc *ControlChannel) collectCiphertextLocked() [][]byte {
	var out [][]byte
	for cc.session.ReadCiphertextReady() {
		p, err := cc.session.ReadCiphertext()
		if err != nil || p == nil {
			break
		}
		out = append(out, p)
	}
	return out
}

func (cc *ControlChannel) ship(out [][]byte) {
	for _, p := range out {
		if cc.halt.Load() {
			return
		}
		cc.client.Send(transport.NewBufferFrom(p))
	}
}

// failSession counts a secure-session failure before the usual teardown.
func (cc *ControlChannel) failSession(err error) {
	if cc.stats != nil && !cc.halt.Load() {
		cc.stats.Error(stats.TLSError)
	}
	cc.fail(err)
}

// fail stops the channel and reports the first fatal condition.
func (cc *ControlChannel) fail(err error) {
	if cc.halt.Load() {
		return
	}
	logrus.WithFields(logrus.Fields{
		"endpoint": cc.client.EndpointRender(),
		"error":    err.Error(),
	}).Warn("control channel failed")
	cc.Stop()
	if cc.onError != nil {
		cc.onError(err)
	}
}
