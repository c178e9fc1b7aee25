package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/vpncore/stats"
)

const (
	// DefaultSendQueueMaxSize bounds the outbound packet queue.
	DefaultSendQueueMaxSize = 64
	// DefaultFreeListMaxSize bounds the buffer reuse pool.
	DefaultFreeListMaxSize = 8
	// DefaultFrameSizeHint sizes freshly allocated read buffers.
	DefaultFrameSizeHint = 2048

	// maxFrameSize is the largest payload expressible in the 16-bit
	// length prefix.
	maxFrameSize = 0xFFFF

	headerSize = 2
)

// LinkRole records which side initiated the connection. It only affects
// diagnostics; framing is symmetric.
type LinkRole int

const (
	// Initiator is the connecting side.
	Initiator LinkRole = iota
	// Acceptor is the listening side.
	Acceptor
)

// String returns the role name for log fields.
func (r LinkRole) String() string {
	if r == Acceptor {
		return "acceptor"
	}
	return "initiator"
}

// LinkConfig carries the tuning parameters for a Link. Zero fields take
// the package defaults.
type LinkConfig struct {
	Role             LinkRole
	SendQueueMaxSize int
	FreeListMaxSize  int
	FrameSizeHint    int
	Stats            *stats.Stats
}

// Link frames a connected byte stream into discrete packets. Outbound
// packets pass through a bounded FIFO queue and are written in
// submission order; inbound bytes are decoded as 16-bit big-endian
// length-prefixed frames and delivered to the owner in stream order.
// Completed write buffers are recycled through a bounded free list.
//
// A Link does not retry: the first read or write failure is reported
// once through LinkOwner.StreamError and the link is done.
type Link struct {
	conn  net.Conn
	owner LinkOwner
	cfg   LinkConfig

	sendq chan *Buffer
	free  *FreeList
	done  chan struct{}

	halted   atomic.Bool
	started  atomic.Bool
	stopOnce sync.Once
	errOnce  sync.Once
}

// NewLink wraps an established connection. The link takes ownership of
// conn and closes it on Stop.
func NewLink(conn net.Conn, owner LinkOwner, cfg LinkConfig) *Link {
	if cfg.SendQueueMaxSize <= 0 {
		cfg.SendQueueMaxSize = DefaultSendQueueMaxSize
	}
	if cfg.FreeListMaxSize <= 0 {
		cfg.FreeListMaxSize = DefaultFreeListMaxSize
	}
	if cfg.FrameSizeHint <= 0 {
		cfg.FrameSizeHint = DefaultFrameSizeHint
	}
	return &Link{
		conn:  conn,
		owner: owner,
		cfg:   cfg,
		sendq: make(chan *Buffer, cfg.SendQueueMaxSize),
		free:  NewFreeList(cfg.FreeListMaxSize, cfg.FrameSizeHint),
		done:  make(chan struct{}),
	}
}

// Start begins the read and write loops. Starting twice is a no-op.
func (l *Link) Start() {
	if l.halted.Load() || !l.started.CompareAndSwap(false, true) {
		return
	}
	go l.readLoop()
	go l.writeLoop()
}

// Send enqueues one outbound packet, taking ownership of buf. It reports
// false without blocking if the link is stopped, the frame is too large
// for the length prefix, or the queue is at capacity.
func (l *Link) Send(buf *Buffer) bool {
	if buf == nil || l.halted.Load() || buf.Len() > maxFrameSize {
		return false
	}
	select {
	case l.sendq <- buf:
		return true
	default:
		return false
	}
}

// Stop cancels in-flight I/O and closes the connection. It is idempotent
// and safe to call on a link that was never started.
func (l *Link) Stop() {
	l.stopOnce.Do(func() {
		l.halted.Store(true)
		close(l.done)
		l.conn.Close()
	})
}

func (l *Link) writeLoop() {
	var hdr [headerSize]byte
	for {
		select {
		case <-l.done:
			return
		case buf := <-l.sendq:
			binary.BigEndian.PutUint16(hdr[:], uint16(buf.Len()))
			if _, err := l.conn.Write(hdr[:]); err != nil {
				l.fail(stats.NetworkSendError, fmt.Errorf("stream write: %w", err))
				return
			}
			if buf.Len() > 0 {
				if _, err := l.conn.Write(buf.Bytes()); err != nil {
					l.fail(stats.NetworkSendError, fmt.Errorf("stream write: %w", err))
					return
				}
			}
			l.free.Put(buf)
		}
	}
}

func (l *Link) readLoop() {
	hdr := make([]byte, headerSize)
	for {
		if _, err := io.ReadFull(l.conn, hdr); err != nil {
			l.fail(stats.NetworkRecvError, fmt.Errorf("stream read: %w", err))
			return
		}
		size := int(binary.BigEndian.Uint16(hdr))

		buf := l.free.Get()
		if _, err := io.ReadFull(l.conn, buf.writable(size)); err != nil {
			l.fail(stats.NetworkRecvError, fmt.Errorf("stream read: %w", err))
			return
		}
		buf.setLen(size)

		if l.halted.Load() {
			return
		}
		l.owner.Frame(buf)
	}
}

// fail reports the first stream failure to the owner. Failures after
// Stop are expected teardown noise and are suppressed.
func (l *Link) fail(cat stats.ErrorCategory, err error) {
	if l.halted.Load() {
		return
	}
	l.errOnce.Do(func() {
		if l.cfg.Stats != nil {
			l.cfg.Stats.Error(cat)
		}
		logrus.WithFields(logrus.Fields{
			"role":     l.cfg.Role.String(),
			"category": cat.String(),
			"error":    err.Error(),
		}).Debug("link stream failure")
		l.owner.StreamError(err)
	})
}
