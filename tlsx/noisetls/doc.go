// Package noisetls is the Noise-IK backend of the tlsx abstraction.
//
// It replaces X.509 machinery with static Curve25519 keys: LoadCA pins
// the peer's static public key, LoadPrivateKey loads ours, and peers are
// identified by the SHA-256 fingerprint of their static key. The
// handshake is Noise_IK_25519_ChaChaPoly_BLAKE2s; after it completes,
// each WriteCiphertext input is one Noise transport message.
//
// Key material travels as PEM blocks of type "NOISE PRIVATE KEY" and
// "NOISE PUBLIC KEY" holding the raw 32-byte keys.
package noisetls
