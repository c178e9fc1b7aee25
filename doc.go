// Package vpncore provides the client-side transport and secure-session
// core of a VPN tunnel engine.
//
// The transport package establishes and frames the byte stream to the
// server; the tlsx package (with its gotls and noisetls backends)
// performs control-channel negotiation over it. Neither owns the other:
// the ControlChannel in this package is the layer that wires a
// TransportClient to a tlsx.Session.
//
// Example:
//
//	cc := transport.NewClientConfig("vpn.example.com", "1194")
//	session, err := factory.SessionForHost("vpn.example.com")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	channel := vpncore.NewControlChannel(cc, session)
//	channel.OnPlaintext(func(p []byte) {
//	    // negotiated control payloads
//	})
//	channel.OnError(func(err error) {
//	    log.Println(err)
//	})
//	channel.Start()
//	defer channel.Stop()
package vpncore
