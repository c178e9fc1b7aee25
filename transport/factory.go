package transport

import (
	"github.com/opd-ai/vpncore/stats"
)

// ClientConfig is the TransportClientFactory for the TCP variant. It
// binds clients to a remote and to shared tuning parameters. One config
// may build any number of clients; the Stats counters are shared across
// all of them.
type ClientConfig struct {
	ServerHost string
	ServerPort string

	// SendQueueMaxSize bounds each link's outbound queue.
	SendQueueMaxSize int
	// FreeListMaxSize bounds each link's buffer pool.
	FreeListMaxSize int
	// FrameSizeHint sizes link read buffers.
	FrameSizeHint int

	Stats *stats.Stats
}

// NewClientConfig returns a factory for the given remote with default
// tuning.
func NewClientConfig(host, port string) *ClientConfig {
	return &ClientConfig{
		ServerHost:       host,
		ServerPort:       port,
		SendQueueMaxSize: DefaultSendQueueMaxSize,
		FreeListMaxSize:  DefaultFreeListMaxSize,
		FrameSizeHint:    DefaultFrameSizeHint,
		Stats:            stats.New(),
	}
}

// NewClient constructs a TCP client reporting to parent. The client is
// idle until Start.
func (cc *ClientConfig) NewClient(parent Parent) TransportClient {
	return newTCPClient(cc, parent)
}
