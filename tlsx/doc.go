// Package tlsx defines the replaceable secure-session abstraction used
// for control-channel negotiation.
//
// The abstraction is split three ways: a mutable Config builder
// accumulates key material and policy; NewFactory freezes it into an
// immutable, share-safe Factory; and each connection gets its own
// Session performing the handshake and cleartext/ciphertext translation
// through a non-blocking poll surface.
//
// Backends implementing these interfaces are interchangeable without
// touching callers; see gotls (crypto/tls) and noisetls (Noise-IK).
package tlsx
