package noisetls

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"

	"github.com/opd-ai/vpncore/tlsx"
)

const (
	privateKeyPEMType = "NOISE PRIVATE KEY"
	publicKeyPEMType  = "NOISE PUBLIC KEY"

	keySize = 32
)

// Config is the mutable builder for the Noise backend.
type Config struct {
	role   tlsx.Role
	priv   []byte
	pub    []byte // loaded via LoadCert, cross-checked at NewFactory
	peer   []byte
	signer crypto.Signer

	frameHint int
	rand      io.Reader
}

// NewConfig returns an empty client-role builder.
func NewConfig() *Config {
	return &Config{role: tlsx.RoleClient}
}

// SetRole selects initiator (client) or responder (server).
func (c *Config) SetRole(role tlsx.Role) { c.role = role }

// Role returns the configured role.
func (c *Config) Role() tlsx.Role { return c.role }

// SetExternalPKI is accepted for interface compatibility; the Noise
// backend cannot use an external signer and NewFactory will fail.
func (c *Config) SetExternalPKI(signer crypto.Signer) { c.signer = signer }

// SetPrivateKeyPassword is a no-op; Noise key PEM blocks are not
// password protected.
func (c *Config) SetPrivateKeyPassword(string) {}

// SetFrameHint sizes session buffers.
func (c *Config) SetFrameHint(hint int) { c.frameHint = hint }

// SetRand supplies the randomness source for ephemeral keys.
func (c *Config) SetRand(r io.Reader) { c.rand = r }

// SetMinVersion is a no-op; the Noise pattern fixes the protocol.
func (c *Config) SetMinVersion(tlsx.Version) {}

// SetEnableRenegotiation is a no-op; Noise sessions do not renegotiate.
func (c *Config) SetEnableRenegotiation(bool) {}

// SetForceAESCBC is a no-op; the cipher suite is fixed to ChaChaPoly.
func (c *Config) SetForceAESCBC(bool) {}

// SetRemoteCertUsage is a no-op; peers are identified by static key.
func (c *Config) SetRemoteCertUsage(tlsx.CertUsage) {}

// LoadCA pins the peer's static public key (the backend's trust anchor).
func (c *Config) LoadCA(pemText string) error {
	key, err := parseKeyPEM(pemText, publicKeyPEMType)
	if err != nil {
		return fmt.Errorf("%w: load peer static: %v", tlsx.ErrOptions, err)
	}
	c.peer = key
	return nil
}

// LoadCRL is not supported by the Noise backend.
func (c *Config) LoadCRL(string) error {
	return fmt.Errorf("%w: CRL not supported by noise backend", tlsx.ErrOptions)
}

// LoadCert publishes the local static public key. Optional; it is
// cross-checked against the private key at NewFactory.
func (c *Config) LoadCert(pemText string) error {
	key, err := parseKeyPEM(pemText, publicKeyPEMType)
	if err != nil {
		return fmt.Errorf("%w: load static public: %v", tlsx.ErrOptions, err)
	}
	c.pub = key
	return nil
}

// LoadPrivateKey loads the local static private key.
func (c *Config) LoadPrivateKey(pemText string) error {
	key, err := parseKeyPEM(pemText, privateKeyPEMType)
	if err != nil {
		return fmt.Errorf("%w: load static private: %v", tlsx.ErrOptions, err)
	}
	c.priv = key
	return nil
}

// LoadDH is not supported by the Noise backend.
func (c *Config) LoadDH(string) error {
	return fmt.Errorf("%w: DH parameters not supported by noise backend", tlsx.ErrOptions)
}

// ValidateCert checks a public-key PEM block without mutating the
// config.
func (c *Config) ValidateCert(pemText string) string {
	_, err := parseKeyPEM(pemText, publicKeyPEMType)
	return diagnostic(err)
}

// ValidateCertList behaves like ValidateCert; key lists are a single
// block for this backend.
func (c *Config) ValidateCertList(pemText string) string {
	return c.ValidateCert(pemText)
}

// ValidateCRL always reports unsupported.
func (c *Config) ValidateCRL(string) string {
	return "CRL not supported by noise backend"
}

// ValidatePrivateKey checks a private-key PEM block.
func (c *Config) ValidatePrivateKey(pemText string) string {
	_, err := parseKeyPEM(pemText, privateKeyPEMType)
	return diagnostic(err)
}

// ValidateDH always reports unsupported.
func (c *Config) ValidateDH(string) string {
	return "DH parameters not supported by noise backend"
}

func diagnostic(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// NewFactory freezes the configuration into an immutable factory.
func (c *Config) NewFactory() (tlsx.Factory, error) {
	if c.signer != nil {
		return nil, fmt.Errorf("%w: external PKI not supported by noise backend", tlsx.ErrExternalPKI)
	}
	if c.priv == nil {
		return nil, fmt.Errorf("%w: no static private key loaded", tlsx.ErrContext)
	}

	pub, err := curve25519.X25519(c.priv, curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("%w: derive static public: %v", tlsx.ErrContext, err)
	}
	if c.pub != nil && !bytes.Equal(c.pub, pub) {
		return nil, fmt.Errorf("%w: static public key does not match private key", tlsx.ErrContext)
	}
	if c.role == tlsx.RoleClient && c.peer == nil {
		return nil, fmt.Errorf("%w: client role requires the peer static key", tlsx.ErrContext)
	}

	rng := c.rand
	if rng == nil {
		rng = rand.Reader
	}
	frameHint := c.frameHint
	if frameHint <= 0 {
		frameHint = defaultFrameHint
	}

	return &Factory{
		role:      c.role,
		priv:      append([]byte(nil), c.priv...),
		pub:       pub,
		peer:      append([]byte(nil), c.peer...),
		rand:      rng,
		frameHint: frameHint,
	}, nil
}

// GenerateKey creates a fresh static keypair as PEM text.
func GenerateKey(r io.Reader) (privPEM, pubPEM string, err error) {
	if r == nil {
		r = rand.Reader
	}
	priv := make([]byte, keySize)
	if _, err := io.ReadFull(r, priv); err != nil {
		return "", "", fmt.Errorf("generate static key: %w", err)
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return "", "", fmt.Errorf("generate static key: %w", err)
	}
	privPEM = string(pem.EncodeToMemory(&pem.Block{Type: privateKeyPEMType, Bytes: priv}))
	pubPEM = string(pem.EncodeToMemory(&pem.Block{Type: publicKeyPEMType, Bytes: pub}))
	return privPEM, pubPEM, nil
}

func parseKeyPEM(pemText, wantType string) ([]byte, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	if block.Type != wantType {
		return nil, fmt.Errorf("unexpected PEM block %q, want %q", block.Type, wantType)
	}
	if len(block.Bytes) != keySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", keySize, len(block.Bytes))
	}
	return append([]byte(nil), block.Bytes...), nil
}
