package feed

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/banshee-data/lostnav/internal/timeutil"
)

// MaxDatagram is the largest payload a UDP feed message can use. Maps that
// do not fit are loaded from file instead.
const MaxDatagram = 65507

// UDPListenerConfig contains configuration options for the UDP listener.
type UDPListenerConfig struct {
	Address     string
	RcvBuf      int
	LogInterval time.Duration
	Handler     PayloadHandler
	Clock       timeutil.Clock // drives the statistics log; nil means the real clock
}

// UDPListener receives one feed message per datagram.
type UDPListener struct {
	address     string
	rcvBuf      int
	logInterval time.Duration
	handler     PayloadHandler
	clock       timeutil.Clock

	conn  atomic.Pointer[net.UDPConn]
	ready chan struct{}

	packets, bytes, errs atomic.Uint64
}

// NewUDPListener creates a new UDP listener with the provided configuration.
func NewUDPListener(config UDPListenerConfig) *UDPListener {
	logInterval := config.LogInterval
	if logInterval == 0 {
		logInterval = time.Minute
	}
	clock := config.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &UDPListener{
		address:     config.Address,
		rcvBuf:      config.RcvBuf,
		logInterval: logInterval,
		handler:     config.Handler,
		clock:       clock,
		ready:       make(chan struct{}),
	}
}

// Start listens until ctx is cancelled.
func (l *UDPListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	defer conn.Close()
	l.conn.Store(conn)
	close(l.ready)

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			opsf("warning: failed to set UDP receive buffer size to %d: %v", l.rcvBuf, err)
		}
	}
	opsf("UDP listener started on %s", conn.LocalAddr())

	go l.logStats(ctx)

	buffer := make([]byte, MaxDatagram)
	for {
		if ctx.Err() != nil {
			opsf("UDP listener stopping due to context cancellation")
			return ctx.Err()
		}
		// Short deadlines keep the loop responsive to cancellation.
		_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

		n, from, err := conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			opsf("UDP read error: %v", err)
			continue
		}

		l.packets.Add(1)
		l.bytes.Add(uint64(n))
		if err := l.handler.HandlePayload(ctx, buffer[:n]); err != nil {
			l.errs.Add(1)
			diagf("payload from %v rejected: %v", from, err)
		}
	}
}

// Addr blocks until the listener is bound and returns its local address.
func (l *UDPListener) Addr(ctx context.Context) (net.Addr, error) {
	select {
	case <-l.ready:
		return l.conn.Load().LocalAddr(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Counts returns datagrams, bytes and rejected payloads received so far.
func (l *UDPListener) Counts() (packets, bytes, rejected uint64) {
	return l.packets.Load(), l.bytes.Load(), l.errs.Load()
}

func (l *UDPListener) logStats(ctx context.Context) {
	ticker := l.clock.NewTicker(l.logInterval)
	defer ticker.Stop()
	var lastPackets uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			p, b, e := l.Counts()
			if p != lastPackets {
				opsf("UDP feed: %d datagrams (%d new), %d bytes, %d rejected", p, p-lastPackets, b, e)
				lastPackets = p
			}
		}
	}
}
