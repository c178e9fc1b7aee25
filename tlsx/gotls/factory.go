package gotls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"github.com/opd-ai/vpncore/tlsx"
)

const defaultFrameHint = 2048

// Factory is the immutable snapshot built by Config.NewFactory. It is
// read-only after construction and safe to share across concurrently
// created sessions.
type Factory struct {
	role        tlsx.Role
	base        *tls.Config
	roots       *x509.CertPool
	crls        []*x509.RevocationList
	remoteUsage tlsx.CertUsage
	frameHint   int
}

// Role returns the role the factory was built for.
func (f *Factory) Role() tlsx.Role { return f.role }

// Session creates a session that verifies the peer against the trust
// store without any hostname requirement.
func (f *Factory) Session() (tlsx.Session, error) {
	return f.newSession("")
}

// SessionForHost creates a session that additionally requires the peer
// certificate subject to match hostname.
func (f *Factory) SessionForHost(hostname string) (tlsx.Session, error) {
	if hostname == "" {
		return nil, fmt.Errorf("%w: empty hostname", tlsx.ErrContext)
	}
	return f.newSession(hostname)
}

func (f *Factory) newSession(hostname string) (tlsx.Session, error) {
	cfg := f.base.Clone()
	cfg.VerifyPeerCertificate = f.peerVerifier(hostname)
	if f.role == tlsx.RoleClient {
		cfg.ServerName = hostname
	}
	return newSession(f.role, cfg, f.frameHint), nil
}

// peerVerifier builds the per-session certificate check: chain
// verification against the trust store (client side), optional hostname
// matching, usage policy, and CRL enforcement.
func (f *Factory) peerVerifier(hostname string) func([][]byte, [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, verifiedChains [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			if f.role == tlsx.RoleServer && f.roots == nil {
				return nil
			}
			return fmt.Errorf("peer presented no certificate")
		}

		certs := make([]*x509.Certificate, 0, len(rawCerts))
		for _, raw := range rawCerts {
			cert, err := x509.ParseCertificate(raw)
			if err != nil {
				return fmt.Errorf("bad peer certificate: %v", err)
			}
			certs = append(certs, cert)
		}
		leaf := certs[0]

		// Server-side chains were already verified against ClientCAs by
		// the listener config; the client side verifies here.
		if f.role == tlsx.RoleClient {
			opts := x509.VerifyOptions{
				Roots:         f.roots,
				Intermediates: x509.NewCertPool(),
				DNSName:       hostname,
				KeyUsages:     f.usagePolicy(),
			}
			for _, cert := range certs[1:] {
				opts.Intermediates.AddCert(cert)
			}
			if _, err := leaf.Verify(opts); err != nil {
				return fmt.Errorf("peer certificate verify: %w", err)
			}
		}

		for _, crl := range f.crls {
			for _, revoked := range crl.RevokedCertificateEntries {
				if revoked.SerialNumber.Cmp(leaf.SerialNumber) == 0 {
					return fmt.Errorf("peer certificate %s is revoked", leaf.SerialNumber)
				}
			}
		}
		return nil
	}
}

func (f *Factory) usagePolicy() []x509.ExtKeyUsage {
	switch f.remoteUsage {
	case tlsx.CertUsageServer:
		return []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}
	case tlsx.CertUsageClient:
		return []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}
	default:
		return []x509.ExtKeyUsage{x509.ExtKeyUsageAny}
	}
}
