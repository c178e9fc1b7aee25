// Package transport implements the client-side stream transport for the
// tunnel engine.
//
// A TransportClient resolves and connects to the configured remote, then
// hands the established byte stream to a Link, which frames it into
// discrete length-delimited packets with bounded send queueing and buffer
// reuse. Events flow back to the owner through the Parent interface.
//
// Example:
//
//	cfg := transport.NewClientConfig("vpn.example.com", "1194")
//	client := cfg.NewClient(parent)
//	client.Start()
//	...
//	client.Stop()
//
// Multiple transport kinds implement the same TransportClient interface;
// this package provides the TCP variant.
package transport
