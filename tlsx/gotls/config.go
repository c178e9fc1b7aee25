package gotls

import (
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"io"
	"math/big"

	"github.com/opd-ai/vpncore/tlsx"
)

// Config is the mutable builder for the crypto/tls backend. The zero
// value is a client-role config with defaults; use NewConfig.
type Config struct {
	role        tlsx.Role
	roots       *x509.CertPool
	crls        []*x509.RevocationList
	chainDER    [][]byte
	leaf        *x509.Certificate
	key         crypto.PrivateKey
	signer      crypto.Signer
	keyPassword string

	frameHint     int
	rand          io.Reader
	minVersion    tlsx.Version
	renegotiation bool
	forceAESCBC   bool
	remoteUsage   tlsx.CertUsage
	dhPrimeBits   int
}

// NewConfig returns an empty client-role builder.
func NewConfig() *Config {
	return &Config{role: tlsx.RoleClient}
}

// SetRole selects client or server behavior for factories built from
// this config.
func (c *Config) SetRole(role tlsx.Role) { c.role = role }

// Role returns the configured role.
func (c *Config) Role() tlsx.Role { return c.role }

// SetExternalPKI routes signing through an external signer. A
// certificate chain must still be loaded with LoadCert.
func (c *Config) SetExternalPKI(signer crypto.Signer) { c.signer = signer }

// SetPrivateKeyPassword stores the password used to decrypt legacy
// encrypted PEM private keys.
func (c *Config) SetPrivateKeyPassword(pwd string) { c.keyPassword = pwd }

// SetFrameHint sizes session buffers.
func (c *Config) SetFrameHint(hint int) { c.frameHint = hint }

// SetRand supplies the randomness source for handshakes.
func (c *Config) SetRand(r io.Reader) { c.rand = r }

// SetMinVersion sets the minimum protocol version policy.
func (c *Config) SetMinVersion(v tlsx.Version) { c.minVersion = v }

// SetEnableRenegotiation permits server-initiated renegotiation on
// client sessions.
func (c *Config) SetEnableRenegotiation(enabled bool) { c.renegotiation = enabled }

// SetForceAESCBC restricts sessions to AES-CBC cipher suites, which also
// caps the protocol at TLS 1.2.
func (c *Config) SetForceAESCBC(forced bool) { c.forceAESCBC = forced }

// SetRemoteCertUsage requires the peer certificate to carry the given
// usage marking.
func (c *Config) SetRemoteCertUsage(usage tlsx.CertUsage) { c.remoteUsage = usage }

// LoadCA adds trust anchors from a PEM bundle.
func (c *Config) LoadCA(pemText string) error {
	certs, _, err := parseCerts(pemText, 0)
	if err != nil {
		return fmt.Errorf("%w: load CA: %v", tlsx.ErrOptions, err)
	}
	if c.roots == nil {
		c.roots = x509.NewCertPool()
	}
	for _, cert := range certs {
		c.roots.AddCert(cert)
	}
	return nil
}

// LoadCRL adds a certificate revocation list enforced during peer
// verification.
func (c *Config) LoadCRL(pemText string) error {
	crl, err := parseCRL(pemText)
	if err != nil {
		return fmt.Errorf("%w: load CRL: %v", tlsx.ErrOptions, err)
	}
	c.crls = append(c.crls, crl)
	return nil
}

// LoadCert loads the local certificate chain, leaf first. Extra
// certificates may be concatenated in the same blob.
func (c *Config) LoadCert(pemText string) error {
	certs, der, err := parseCerts(pemText, 0)
	if err != nil {
		return fmt.Errorf("%w: load cert: %v", tlsx.ErrOptions, err)
	}
	c.leaf = certs[0]
	c.chainDER = der
	return nil
}

// LoadPrivateKey loads the local private key.
func (c *Config) LoadPrivateKey(pemText string) error {
	key, err := parseKey(pemText, c.keyPassword)
	if err != nil {
		return fmt.Errorf("%w: load private key: %v", tlsx.ErrOptions, err)
	}
	c.key = key
	return nil
}

// LoadDH accepts PEM Diffie-Hellman parameters for configuration
// compatibility. The backend negotiates its own key exchange, so only
// the parse result is retained.
func (c *Config) LoadDH(pemText string) error {
	bits, err := parseDH(pemText)
	if err != nil {
		return fmt.Errorf("%w: load DH: %v", tlsx.ErrOptions, err)
	}
	c.dhPrimeBits = bits
	return nil
}

// ValidateCert checks a single PEM certificate without mutating the
// config, returning "" when it parses cleanly.
func (c *Config) ValidateCert(pemText string) string {
	_, _, err := parseCerts(pemText, 1)
	return diagnostic(err)
}

// ValidateCertList checks a PEM certificate bundle.
func (c *Config) ValidateCertList(pemText string) string {
	_, _, err := parseCerts(pemText, 0)
	return diagnostic(err)
}

// ValidateCRL checks a PEM revocation list.
func (c *Config) ValidateCRL(pemText string) string {
	_, err := parseCRL(pemText)
	return diagnostic(err)
}

// ValidatePrivateKey checks a PEM private key.
func (c *Config) ValidatePrivateKey(pemText string) string {
	_, err := parseKey(pemText, c.keyPassword)
	return diagnostic(err)
}

// ValidateDH checks PEM Diffie-Hellman parameters.
func (c *Config) ValidateDH(pemText string) string {
	_, err := parseDH(pemText)
	return diagnostic(err)
}

func diagnostic(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// parseCerts decodes CERTIFICATE blocks. want limits the accepted count
// when non-zero.
func parseCerts(pemText string, want int) ([]*x509.Certificate, [][]byte, error) {
	var (
		certs []*x509.Certificate
		der   [][]byte
	)
	rest := []byte(pemText)
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			return nil, nil, fmt.Errorf("unexpected PEM block %q", block.Type)
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, nil, fmt.Errorf("bad certificate: %v", err)
		}
		certs = append(certs, cert)
		der = append(der, block.Bytes)
	}
	if len(certs) == 0 {
		return nil, nil, fmt.Errorf("no certificate found")
	}
	if want > 0 && len(certs) != want {
		return nil, nil, fmt.Errorf("expected %d certificate, found %d", want, len(certs))
	}
	return certs, der, nil
}

func parseCRL(pemText string) (*x509.RevocationList, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil || block.Type != "X509 CRL" {
		return nil, fmt.Errorf("no CRL found")
	}
	crl, err := x509.ParseRevocationList(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("bad CRL: %v", err)
	}
	return crl, nil
}

func parseKey(pemText, password string) (crypto.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, fmt.Errorf("no private key found")
	}
	keyDER := block.Bytes
	if x509.IsEncryptedPEMBlock(block) { //nolint:staticcheck // legacy material support
		der, err := x509.DecryptPEMBlock(block, []byte(password)) //nolint:staticcheck
		if err != nil {
			return nil, fmt.Errorf("decrypt private key: %v", err)
		}
		keyDER = der
	}
	if key, err := x509.ParsePKCS8PrivateKey(keyDER); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(keyDER); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(keyDER); err == nil {
		return key, nil
	}
	return nil, fmt.Errorf("unsupported private key format")
}

// dhParams is the PKCS#3 DHParameter structure.
type dhParams struct {
	P *big.Int
	G *big.Int
}

func parseDH(pemText string) (int, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil || block.Type != "DH PARAMETERS" {
		return 0, fmt.Errorf("no DH parameters found")
	}
	var params dhParams
	if rest, err := asn1.Unmarshal(block.Bytes, &params); err != nil || len(rest) != 0 {
		return 0, fmt.Errorf("bad DH parameters")
	}
	if params.P == nil || params.P.BitLen() < 512 {
		return 0, fmt.Errorf("DH prime too small")
	}
	return params.P.BitLen(), nil
}

// NewFactory freezes the configuration into an immutable factory.
func (c *Config) NewFactory() (tlsx.Factory, error) {
	base := &tls.Config{
		Rand: c.rand,
	}

	switch c.minVersion {
	case tlsx.VersionTLS12:
		base.MinVersion = tls.VersionTLS12
	case tlsx.VersionTLS13:
		base.MinVersion = tls.VersionTLS13
	}

	if c.forceAESCBC {
		base.CipherSuites = aesCBCSuites
		base.MaxVersion = tls.VersionTLS12
	}

	// Renegotiation is a client-side knob; crypto/tls servers never
	// initiate it.
	if c.renegotiation && c.role == tlsx.RoleClient {
		base.Renegotiation = tls.RenegotiateFreelyAsClient
	}

	if len(c.chainDER) > 0 {
		key := c.key
		if c.signer != nil {
			key = c.signer
		}
		if key == nil {
			return nil, fmt.Errorf("%w: certificate loaded without private key or external PKI signer", tlsx.ErrContext)
		}
		base.Certificates = []tls.Certificate{{
			Certificate: c.chainDER,
			PrivateKey:  key,
			Leaf:        c.leaf,
		}}
	} else if c.signer != nil {
		return nil, fmt.Errorf("%w: external PKI signer set without certificate", tlsx.ErrExternalPKI)
	}

	switch c.role {
	case tlsx.RoleClient:
		if c.roots == nil {
			return nil, fmt.Errorf("%w: client role requires a CA trust store", tlsx.ErrContext)
		}
		// Chain verification happens in the factory's own callback so
		// sessions without a hostname can skip name checks.
		base.InsecureSkipVerify = true
	case tlsx.RoleServer:
		if len(base.Certificates) == 0 {
			return nil, fmt.Errorf("%w: server role requires a certificate", tlsx.ErrContext)
		}
		if c.roots != nil {
			base.ClientAuth = tls.RequireAndVerifyClientCert
			base.ClientCAs = c.roots
		}
	}

	frameHint := c.frameHint
	if frameHint <= 0 {
		frameHint = defaultFrameHint
	}

	return &Factory{
		role:        c.role,
		base:        base,
		roots:       c.roots,
		crls:        append([]*x509.RevocationList(nil), c.crls...),
		remoteUsage: c.remoteUsage,
		frameHint:   frameHint,
	}, nil
}

// aesCBCSuites is the restriction applied by SetForceAESCBC.
var aesCBCSuites = []uint16{
	tls.TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA,
	tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA,
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_CBC_SHA,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA,
	tls.TLS_RSA_WITH_AES_256_CBC_SHA,
	tls.TLS_RSA_WITH_AES_128_CBC_SHA,
}
