// Package gotls is the crypto/tls backend of the tlsx abstraction.
//
// The Config builder parses PEM certificate, key, and CRL material into
// standard library types; NewFactory freezes it into a shared
// *tls.Config snapshot. Sessions run a tls.Conn over an in-memory
// connection whose far side is the ciphertext buffer pair, so the
// blocking record machinery of crypto/tls is driven entirely by internal
// goroutines and the Session surface stays non-blocking.
package gotls
