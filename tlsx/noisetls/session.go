package noisetls

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/flynn/noise"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/vpncore/tlsx"
)

var errSessionStopped = errors.New("ssl session stopped")

const (
	// maxMessage is the Noise protocol's transport message ceiling.
	maxMessage = 65535
	// maxPlaintext leaves room for the AEAD tag.
	maxPlaintext = maxMessage - 16

	// ciphertextOutMax bounds the outbound message queue.
	ciphertextOutMax = 64
	// cleartextPendingFactor bounds pre-handshake cleartext buffering
	// over the frame hint.
	cleartextPendingFactor = 8
)

// session runs one Noise-IK handshake followed by transport ciphering.
// Unlike the TLS-over-stream backend, each WriteCiphertext input is one
// discrete Noise message, which matches the framing layer delivering
// whole packets.
type session struct {
	role   tlsx.Role
	expect string

	mu         sync.Mutex
	hs         *noise.HandshakeState
	send       *noise.CipherState
	recv       *noise.CipherState
	complete   bool
	started    bool
	clearIn    bytes.Buffer
	pending    bytes.Buffer // cleartext written before handshake completion
	pendingMax int
	ctOut      [][]byte
	err        error
	details    string
	peer       *tlsx.PeerIdentity
}

func newSession(role tlsx.Role, hs *noise.HandshakeState, expect string, frameHint int) *session {
	return &session{
		role:       role,
		expect:     expect,
		hs:         hs,
		pendingMax: frameHint * cleartextPendingFactor,
	}
}

// StartHandshake emits the initiator's first message; responders wait
// for it. Calling again is a no-op.
func (s *session) StartHandshake() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.err != nil {
		return nil
	}
	s.started = true

	if s.role == tlsx.RoleClient {
		msg, _, _, err := s.hs.WriteMessage(nil, nil)
		if err != nil {
			return s.fatalLocked(fmt.Errorf("ssl handshake: initiator write: %w", err))
		}
		s.queueOutLocked(msg)
	}
	return nil
}

// WriteCleartextUnbuffered buffers or encrypts application bytes. The
// write is rejected whole when there is no room.
func (s *session) WriteCleartextUnbuffered(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, errSessionStopped
	}

	if !s.complete {
		if s.pending.Len()+len(p) > s.pendingMax {
			return 0, tlsx.ErrCleartextFull
		}
		s.pending.Write(p)
		return len(p), nil
	}

	if len(s.ctOut)+(len(p)/maxPlaintext)+1 > ciphertextOutMax {
		return 0, tlsx.ErrCleartextFull
	}
	if err := s.encryptOutLocked(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// ReadCleartext copies decrypted bytes into p, returning 0 when none
// are ready. Buffered cleartext stays readable after a failure.
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

// WriteCiphertext consumes one Noise message from the network: a
// handshake message until the handshake completes, a transport message
// afterward.
func (s *session) WriteCiphertext(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return errSessionStopped
	}
	if len(p) > maxMessage {
		s.fatalLocked(tlsx.ErrCiphertextOverflow)
		return tlsx.ErrCiphertextOverflow
	}

	if !s.complete {
		return s.handshakeInputLocked(p)
	}

	pt, err := s.recv.Decrypt(nil, nil, p)
	if err != nil {
		return s.fatalLocked(fmt.Errorf("ssl decrypt: %w", err))
	}
	s.clearIn.Write(pt)
	return nil
}

// ReadCiphertext pops the next outbound Noise message, nil when none.
func (s *session) ReadCiphertext() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ctOut) == 0 {
		return nil, nil
	}
	msg := s.ctOut[0]
	s.ctOut = s.ctOut[1:]
	return msg, nil
}

// ReadCiphertextReady reports whether outbound messages are queued.
func (s *session) ReadCiphertextReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ctOut) > 0
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
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = errSessionStopped
	}
	return nil
}

// handshakeInputLocked advances the IK state machine with one received
// message. The cipher-state pairing follows the IK message flow: the
// responder completes after writing its reply, the initiator after
// reading it.
func (s *session) handshakeInputLocked(p []byte) error {
	if s.role == tlsx.RoleClient {
		_, recvCipher, sendCipher, err := s.hs.ReadMessage(nil, p)
		if err != nil {
			return s.fatalLocked(fmt.Errorf("ssl handshake: initiator read: %w", err))
		}
		s.recv = recvCipher
		s.send = sendCipher
		return s.finishLocked()
	}

	if _, _, _, err := s.hs.ReadMessage(nil, p); err != nil {
		return s.fatalLocked(fmt.Errorf("ssl handshake: responder read: %w", err))
	}
	msg, sendCipher, recvCipher, err := s.hs.WriteMessage(nil, nil)
	if err != nil {
		return s.fatalLocked(fmt.Errorf("ssl handshake: responder write: %w", err))
	}
	s.send = sendCipher
	s.recv = recvCipher
	s.queueOutLocked(msg)
	return s.finishLocked()
}

// finishLocked records the peer identity, enforces the pinned
// fingerprint, and flushes cleartext buffered during the handshake.
func (s *session) finishLocked() error {
	s.complete = true

	fp := fingerprint(s.hs.PeerStatic())
	if s.expect != "" && s.expect != fp {
		return s.fatalLocked(fmt.Errorf("peer static key fingerprint %s does not match required %s", fp, s.expect))
	}
	s.peer = &tlsx.PeerIdentity{Fingerprint: fp}
	s.details = fmt.Sprintf("%s, %s, peer %s", protocolName, s.role, fp[:16])

	logrus.WithFields(logrus.Fields{
		"role": s.role.String(),
		"peer": fp[:16],
	}).Debug("noise handshake complete")

	if s.pending.Len() > 0 {
		p := make([]byte, s.pending.Len())
		s.pending.Read(p)
		return s.encryptOutLocked(p)
	}
	return nil
}

// encryptOutLocked splits cleartext into transport messages and queues
// them.
func (s *session) encryptOutLocked(p []byte) error {
	for len(p) > 0 {
		n := len(p)
		if n > maxPlaintext {
			n = maxPlaintext
		}
		msg, err := s.send.Encrypt(nil, nil, p[:n])
		if err != nil {
			return s.fatalLocked(fmt.Errorf("ssl encrypt: %w", err))
		}
		s.queueOutLocked(msg)
		p = p[n:]
	}
	return nil
}

func (s *session) queueOutLocked(msg []byte) {
	s.ctOut = append(s.ctOut, msg)
}

// fatalLocked records the first fatal condition and returns it.
func (s *session) fatalLocked(err error) error {
	if s.err == nil {
		s.err = err
		logrus.WithFields(logrus.Fields{
			"role":  s.role.String(),
			"error": err.Error(),
		}).Debug("noise session failed")
	}
	return err
}
