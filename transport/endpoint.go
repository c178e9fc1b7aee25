package transport

import (
	"net"
	"strconv"
)

// Endpoint is a resolved remote address. It is created once, after a
// successful resolution, and never mutated afterward.
type Endpoint struct {
	proto string
	ip    net.IP
	port  int
}

// NewEndpoint builds an endpoint for the given transport kind.
func NewEndpoint(proto string, ip net.IP, port int) *Endpoint {
	return &Endpoint{proto: proto, ip: ip, port: port}
}

// IP returns the resolved address.
func (e *Endpoint) IP() net.IP { return e.ip }

// Port returns the remote port.
func (e *Endpoint) Port() int { return e.port }

// HostPort returns the address in dialable "host:port" form.
func (e *Endpoint) HostPort() string {
	return net.JoinHostPort(e.ip.String(), strconv.Itoa(e.port))
}

// Render returns the diagnostic form "<kind> <ip>:<port>".
func (e *Endpoint) Render() string {
	return e.proto + " " + e.HostPort()
}
