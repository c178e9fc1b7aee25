package tlsx

import (
	"crypto"
	"errors"
	"io"
)

var (
	// ErrOptions indicates malformed or inconsistent configuration
	// material passed to a Config load operation.
	ErrOptions = errors.New("ssl options error")
	// ErrContext indicates the accumulated configuration could not be
	// frozen into a working factory.
	ErrContext = errors.New("ssl context error")
	// ErrExternalPKI indicates a failure in the external private-key
	// signer path.
	ErrExternalPKI = errors.New("ssl external PKI error")
	// ErrCiphertextOverflow indicates more inbound ciphertext than the
	// session can buffer. It signals a protocol or sizing violation and
	// is fatal to the session.
	ErrCiphertextOverflow = errors.New("ssl ciphertext in overflow")
	// ErrCleartextFull indicates an unbuffered cleartext write that the
	// session has no room to accept. The write is rejected whole; the
	// caller may retry after draining ciphertext.
	ErrCleartextFull = errors.New("ssl cleartext write: no room")
)

// Role says which side of the handshake a configuration is built for.
type Role int

const (
	// RoleClient initiates the handshake and verifies the peer.
	RoleClient Role = iota
	// RoleServer accepts handshakes.
	RoleServer
)

// String returns the role name.
func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}

// Version is a minimum-protocol-version policy knob.
type Version int

const (
	// VersionDefault leaves the backend's floor in place.
	VersionDefault Version = iota
	// VersionTLS12 requires TLS 1.2 or newer.
	VersionTLS12
	// VersionTLS13 requires TLS 1.3 or newer.
	VersionTLS13
)

// CertUsage restricts what the peer certificate must be marked for.
type CertUsage int

const (
	// CertUsageAny accepts any peer certificate the trust store admits.
	CertUsageAny CertUsage = iota
	// CertUsageServer requires a server-usage certificate.
	CertUsageServer
	// CertUsageClient requires a client-usage certificate.
	CertUsageClient
)

// PeerIdentity is the authenticated identity of the remote once the
// handshake completes.
type PeerIdentity struct {
	// CommonName is the certificate subject CN, or the backend's
	// nearest equivalent.
	CommonName string
	// Fingerprint is the lowercase hex SHA-256 of the peer's leaf
	// certificate or static key.
	Fingerprint string
}

// Config is the mutable builder tier. It accumulates trust anchors,
// local identity, and policy through discrete setters, then freezes into
// a Factory. A Config is not safe for concurrent use; it may be reused
// to build further factories after NewFactory returns.
//
// Load operations parse PEM-style text and fail with an error wrapping
// ErrOptions on malformed input. The Validate counterparts run the same
// parse without mutating the Config, returning a non-empty diagnostic on
// failure and "" when the material is acceptable.
type Config interface {
	SetRole(role Role)
	Role() Role

	// SetExternalPKI routes private-key operations through an external
	// signer instead of loaded key material.
	SetExternalPKI(signer crypto.Signer)
	SetPrivateKeyPassword(pwd string)

	LoadCA(pemText string) error
	LoadCRL(pemText string) error
	LoadCert(pemText string) error
	LoadPrivateKey(pemText string) error
	LoadDH(pemText string) error

	ValidateCert(pemText string) string
	ValidateCertList(pemText string) string
	ValidateCRL(pemText string) string
	ValidatePrivateKey(pemText string) string
	ValidateDH(pemText string) string

	// SetFrameHint sizes session buffers to the framing layer's hint.
	SetFrameHint(hint int)
	// SetRand supplies a shared randomness source.
	SetRand(r io.Reader)
	SetMinVersion(v Version)
	SetEnableRenegotiation(enabled bool)
	SetForceAESCBC(forced bool)
	SetRemoteCertUsage(usage CertUsage)

	// NewFactory freezes the accumulated configuration. Errors wrap
	// ErrContext (or ErrExternalPKI for signer problems).
	NewFactory() (Factory, error)
}

// Factory is the immutable middle tier. It is read-only after
// construction and safe to share across sessions created concurrently.
type Factory interface {
	// Session creates a session with no remote-identity requirement
	// beyond the trust store.
	Session() (Session, error)

	// SessionForHost additionally requires the peer's identity to
	// match hostname.
	SessionForHost(hostname string) (Session, error)

	Role() Role
}

// Session is one connection's handshake and record state. All data
// operations are non-blocking; each read direction has a readiness
// predicate so an external event loop can poll.
//
// A Session is owned by one goroutine at a time per direction; it never
// outlives the semantics of the Factory configuration that produced it.
type Session interface {
	// StartHandshake begins the handshake. For initiating roles this
	// makes the first handshake bytes available on the ciphertext-out
	// side.
	StartHandshake() error

	// WriteCleartextUnbuffered accepts application bytes for
	// encryption. It fails with ErrCleartextFull when the session
	// cannot buffer the whole write; nothing is consumed in that case.
	WriteCleartextUnbuffered(p []byte) (int, error)

	// ReadCleartext copies decrypted application bytes into p,
	// returning 0 when none are ready.
	ReadCleartext(p []byte) (int, error)
	ReadCleartextReady() bool

	// WriteCiphertext accepts bytes arriving from the network. Input
	// exceeding the session's buffering capacity fails with
	// ErrCiphertextOverflow and is fatal to the session.
	WriteCiphertext(p []byte) error

	// ReadCiphertext returns the next chunk of bytes to put on the
	// network, or nil when none are ready.
	ReadCiphertext() ([]byte, error)
	ReadCiphertextReady() bool

	// HandshakeDetails returns a human-readable summary of the
	// completed handshake, or "" before completion.
	HandshakeDetails() string

	// PeerIdentity returns the authenticated peer record once
	// available, else nil.
	PeerIdentity() *PeerIdentity

	Close() error
}
