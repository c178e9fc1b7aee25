package noisetls

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/flynn/noise"

	"github.com/opd-ai/vpncore/tlsx"
)

const defaultFrameHint = 2048

// protocolName is the fixed handshake pattern and cipher suite.
const protocolName = "Noise_IK_25519_ChaChaPoly_BLAKE2s"

// Factory is the immutable snapshot built by Config.NewFactory. It is
// safe to share across concurrently created sessions.
type Factory struct {
	role      tlsx.Role
	priv      []byte
	pub       []byte
	peer      []byte
	rand      io.Reader
	frameHint int
}

// Role returns the role the factory was built for.
func (f *Factory) Role() tlsx.Role { return f.role }

// Session creates a session accepting any peer the pinned static key
// admits. A responder with no pinned key accepts any initiator.
func (f *Factory) Session() (tlsx.Session, error) {
	return f.newSession("")
}

// SessionForHost additionally requires the peer's static-key SHA-256
// fingerprint (lowercase hex) to equal hostname.
func (f *Factory) SessionForHost(hostname string) (tlsx.Session, error) {
	if hostname == "" {
		return nil, fmt.Errorf("%w: empty hostname", tlsx.ErrContext)
	}
	return f.newSession(hostname)
}

func (f *Factory) newSession(expect string) (tlsx.Session, error) {
	suite := noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashBLAKE2s)
	cfg := noise.Config{
		CipherSuite: suite,
		Random:      f.rand,
		Pattern:     noise.HandshakeIK,
		Initiator:   f.role == tlsx.RoleClient,
		StaticKeypair: noise.DHKey{
			Private: append([]byte(nil), f.priv...),
			Public:  append([]byte(nil), f.pub...),
		},
	}
	if cfg.Initiator {
		cfg.PeerStatic = append([]byte(nil), f.peer...)
	}

	hs, err := noise.NewHandshakeState(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: handshake state: %v", tlsx.ErrContext, err)
	}
	return newSession(f.role, hs, expect, f.frameHint), nil
}

// fingerprint renders a static public key the way PeerIdentity reports
// it.
func fingerprint(static []byte) string {
	sum := sha256.Sum256(static)
	return hex.EncodeToString(sum[:])
}
