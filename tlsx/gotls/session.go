package gotls

import (
	"bytes"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/vpncore/tlsx"
)

// errSessionStopped is returned by data operations after a fatal
// condition was already reported.
var errSessionStopped = errors.New("ssl session stopped")

const (
	// readChunk is the unit the record pump reads cleartext in.
	readChunk = 4096

	// capacity multipliers over the frame hint for the bounded queues.
	ciphertextInFactor = 8
	cleartextOutFactor = 8
)

// session drives one tls.Conn through a memConn, exposing the
// non-blocking tlsx.Session surface. Handshake and record processing run
// on two internal goroutines started by StartHandshake: one owns
// tconn.Read (and the handshake), the other owns tconn.Write.
type session struct {
	role  tlsx.Role
	tconn *tls.Conn
	pipe  *memConn

	mu       sync.Mutex
	clearIn  bytes.Buffer // decrypted application bytes
	clearOut bytes.Buffer // application bytes awaiting encryption
	err      error
	details  string
	peer     *tlsx.PeerIdentity

	clearOutMax int
	started     bool
	hsDone      atomic.Bool
	writeCh     chan struct{}
	done        chan struct{}
	closeOnce   sync.Once
}

func newSession(role tlsx.Role, cfg *tls.Config, frameHint int) *session {
	pipe := newMemConn(frameHint * ciphertextInFactor)
	s := &session{
		role:        role,
		pipe:        pipe,
		clearOutMax: frameHint * cleartextOutFactor,
		writeCh:     make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	if role == tlsx.RoleServer {
		s.tconn = tls.Server(pipe, cfg)
	} else {
		s.tconn = tls.Client(pipe, cfg)
	}
	return s
}

// StartHandshake launches the handshake and record pumps. Calling it
// again is a no-op.
func (s *session) StartHandshake() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	go s.readPump()
	go s.writePump()
	return nil
}

// readPump performs the handshake, records the result, then moves
// decrypted bytes into the cleartext-in buffer until the session ends.
func (s *session) readPump() {
	if err := s.tconn.Handshake(); err != nil {
		s.fatal(fmt.Errorf("ssl handshake: %w", err))
		return
	}

	state := s.tconn.ConnectionState()
	details := handshakeSummary(state)
	s.mu.Lock()
	s.details = details
	if len(state.PeerCertificates) > 0 {
		leaf := state.PeerCertificates[0]
		sum := sha256.Sum256(leaf.Raw)
		s.peer = &tlsx.PeerIdentity{
			CommonName:  leaf.Subject.CommonName,
			Fingerprint: hex.EncodeToString(sum[:]),
		}
	}
	s.mu.Unlock()
	s.hsDone.Store(true)
	s.kickWriter()

	logrus.WithFields(logrus.Fields{
		"role":    s.role.String(),
		"details": details,
	}).Debug("ssl handshake complete")

	buf := make([]byte, readChunk)
	for {
		n, err := s.tconn.Read(buf)
		if n > 0 {
			s.mu.Lock()
			s.clearIn.Write(buf[:n])
			s.mu.Unlock()
		}
		if err != nil {
			s.fatal(fmt.Errorf("ssl read: %w", err))
			return
		}
	}
}

// writePump drains the cleartext-out buffer into the tls.Conn once the
// handshake is done.
func (s *session) writePump() {
	for {
		select {
		case <-s.done:
			return
		case <-s.writeCh:
		}
		if !s.hsDone.Load() {
			continue
		}

		s.mu.Lock()
		if s.clearOut.Len() == 0 {
			s.mu.Unlock()
			continue
		}
		p := make([]byte, s.clearOut.Len())
		s.clearOut.Read(p)
		s.mu.Unlock()

		if _, err := s.tconn.Write(p); err != nil {
			s.fatal(fmt.Errorf("ssl write: %w", err))
			return
		}
	}
}

func (s *session) kickWriter() {
	select {
	case s.writeCh <- struct{}{}:
	default:
	}
}

// WriteCleartextUnbuffered buffers application bytes for encryption. The
// write is rejected whole when the session has no room for it.
func (s *session) WriteCleartextUnbuffered(p []byte) (int, error) {
	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return 0, errSessionStopped
	}
	if s.clearOut.Len()+len(p) > s.clearOutMax {
		s.mu.Unlock()
		return 0, tlsx.ErrCleartextFull
	}
	s.clearOut.Write(p)
	s.mu.Unlock()
	s.kickWriter()
	return len(p), nil
}

// ReadCleartext copies decrypted bytes into p, returning 0 when none are
// buffered. Buffered cleartext stays readable after a session failure.
func (s *session) ReadCleartext(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clearIn.Len() == 0 {
		return 0, nil
	}
	return s.clearIn.Read(p)
}

// ReadCleartextReady reports whether decrypted bytes are buffered.
func (s *session) ReadCleartextReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearIn.Len() > 0
}

// WriteCiphertext feeds bytes arriving from the network into the record
// machinery. Overflow is reported once and is fatal to the session.
func (s *session) WriteCiphertext(p []byte) error {
	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return errSessionStopped
	}
	s.mu.Unlock()

	ok, err := s.pipe.feed(p)
	if err != nil {
		return errSessionStopped
	}
	if !ok {
		s.fatal(tlsx.ErrCiphertextOverflow)
		return tlsx.ErrCiphertextOverflow
	}
	return nil
}

// ReadCiphertext returns the next outbound network bytes, nil when none.
func (s *session) ReadCiphertext() ([]byte, error) {
	return s.pipe.takeOut(), nil
}

// ReadCiphertextReady reports whether outbound network bytes are queued.
func (s *session) ReadCiphertextReady() bool {
	return s.pipe.outLen() > 0
}

// HandshakeDetails returns the handshake summary, "" before completion.
func (s *session) HandshakeDetails() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.details
}

// PeerIdentity returns the authenticated peer once available.
func (s *session) PeerIdentity() *tlsx.PeerIdentity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer
}

// Close tears the session down. Idempotent.
func (s *session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		if s.err == nil {
			s.err = errSessionStopped
		}
		s.mu.Unlock()
		close(s.done)
		s.pipe.Close()
	})
	return nil
}

// fatal records the first fatal condition. Later failures (including
// teardown noise after Close) keep the original error.
func (s *session) fatal(err error) {
	s.mu.Lock()
	first := s.err == nil
	if first {
		s.err = err
	}
	s.mu.Unlock()
	if first {
		logrus.WithFields(logrus.Fields{
			"role":  s.role.String(),
			"error": err.Error(),
		}).Debug("ssl session failed")
	}
	s.pipe.Close()
}

func handshakeSummary(state tls.ConnectionState) string {
	version := "TLS?"
	switch state.Version {
	case tls.VersionTLS12:
		version = "TLSv1.2"
	case tls.VersionTLS13:
		version = "TLSv1.3"
	}
	summary := version + ", cipher " + tls.CipherSuiteName(state.CipherSuite)
	if len(state.PeerCertificates) > 0 {
		cn := state.PeerCertificates[0].Subject.CommonName
		if cn != "" {
			summary += ", peer CN=" + cn
		}
	}
	return summary
}
