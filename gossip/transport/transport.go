// Package transport moves raw gossip datagrams between nodes. It is
// fire-and-forget: there are no retries and no acknowledgements, reliability
// comes from the next round's digest exchange.
package transport

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

const (
	// maxDatagramSize is the absolute UDP payload limit. The engine keeps
	// frames well below this through the MTU budget.
	maxDatagramSize = 65507

	receiveBufferSize = 1 * 1024 * 1024
)

var (
	ErrClosed          = errors.New("transport closed")
	ErrMaxSizeExceeded = errors.New("max datagram size exceeded")
)

// Packet is a single received datagram along with its source address.
type Packet struct {
	From netip.AddrPort
	Data []byte
}

// Transport is the datagram plane of the gossip engine. The UDP
// implementation is the production one, tests plug in an in-memory
// implementation instead.
type Transport interface {
	WriteTo(data []byte, addr netip.AddrPort) error
	ReadFrom() (Packet, error)
	LocalAddr() netip.AddrPort
	Close() error
}

type UDPTransport struct {
	logger log.Logger
	conn   *net.UDPConn
	pool   *sync.Pool
	in     chan Packet
	done   chan struct{}
	closed int32
}

var _ Transport = (*UDPTransport)(nil)

// Create binds a UDP socket to the given address and starts the receive
// loop in the background.
func Create(bindAddr netip.AddrPort, logger log.Logger) (*UDPTransport, error) {
	conn, err := net.ListenUDP("udp", net.UDPAddrFromAddrPort(bindAddr))
	if err != nil {
		return nil, fmt.Errorf("failed to listen udp port on %s: %w", bindAddr, err)
	}

	// A larger system buffer reduces packet drops when the consumer is
	// briefly busy applying a delta.
	if err := conn.SetReadBuffer(receiveBufferSize); err != nil {
		level.Warn(logger).Log("msg", "failed to alter udp read buffer size", "err", err)
	}

	t := &UDPTransport{
		logger: logger,
		conn:   conn,
		in:     make(chan Packet),
		done:   make(chan struct{}),
		pool: &sync.Pool{
			New: func() any {
				return make([]byte, maxDatagramSize)
			},
		},
	}

	go t.consume()

	return t, nil
}

func (t *UDPTransport) consume() {
	defer close(t.done)
	defer close(t.in)

	for {
		buf := t.pool.Get().([]byte)

		n, addr, err := t.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			t.pool.Put(buf) // nolint:staticcheck

			if atomic.LoadInt32(&t.closed) == 1 {
				return
			}

			level.Error(t.logger).Log("msg", "failed to read from udp", "err", err)

			continue
		}

		if n == 0 {
			level.Debug(t.logger).Log("msg", "received empty udp packet", "from", addr)
			t.pool.Put(buf) // nolint:staticcheck

			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		t.pool.Put(buf) // nolint:staticcheck

		t.in <- Packet{From: addr, Data: data}
	}
}

// ReadFrom blocks until the next datagram arrives. Returns ErrClosed once
// the transport is shut down and the channel is drained.
func (t *UDPTransport) ReadFrom() (Packet, error) {
	pkt, ok := <-t.in
	if !ok {
		return Packet{}, ErrClosed
	}

	return pkt, nil
}

// WriteTo sends a datagram, best-effort.
func (t *UDPTransport) WriteTo(data []byte, addr netip.AddrPort) error {
	if len(data) > maxDatagramSize {
		return ErrMaxSizeExceeded
	}

	if _, err := t.conn.WriteToUDPAddrPort(data, addr); err != nil {
		if atomic.LoadInt32(&t.closed) == 1 {
			return ErrClosed
		}

		return fmt.Errorf("failed to write to udp socket: %w", err)
	}

	return nil
}

func (t *UDPTransport) LocalAddr() netip.AddrPort {
	return t.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

// Close shuts the socket down and waits for the receive loop to exit.
func (t *UDPTransport) Close() error {
	if !atomic.CompareAndSwapInt32(&t.closed, 0, 1) {
		return ErrClosed
	}

	if err := t.conn.Close(); err != nil {
		return err
	}

	<-t.done

	return nil
}
