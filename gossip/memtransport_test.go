package gossip

import (
	"net/netip"
	"sync"

	"github.com/jorisvilardell/zuklink/gossip/transport"
)

// memHub wires in-memory transports together by address, so engine tests
// run without sockets and without flakiness from real packet loss.
type memHub struct {
	mut   sync.Mutex
	boxes map[netip.AddrPort]chan transport.Packet
}

func newMemHub() *memHub {
	return &memHub{
		boxes: make(map[netip.AddrPort]chan transport.Packet),
	}
}

func (h *memHub) attach(addr string) *memTransport {
	addrPort := netip.MustParseAddrPort(addr)

	h.mut.Lock()
	defer h.mut.Unlock()

	box := make(chan transport.Packet, 128)
	h.boxes[addrPort] = box

	return &memTransport{
		hub:  h,
		addr: addrPort,
		in:   box,
		done: make(chan struct{}),
	}
}

func (h *memHub) deliver(from, to netip.AddrPort, data []byte) {
	h.mut.Lock()
	defer h.mut.Unlock()

	box, ok := h.boxes[to]
	if !ok {
		return // unreachable addresses drop packets, like real UDP
	}

	payload := make([]byte, len(data))
	copy(payload, data)

	select {
	case box <- transport.Packet{From: from, Data: payload}:
	default:
	}
}

func (h *memHub) detach(addr netip.AddrPort) {
	h.mut.Lock()
	defer h.mut.Unlock()

	delete(h.boxes, addr)
}

type memTransport struct {
	hub  *memHub
	addr netip.AddrPort
	in   chan transport.Packet

	mut    sync.Mutex
	done   chan struct{}
	closed bool
}

var _ transport.Transport = (*memTransport)(nil)

func (t *memTransport) WriteTo(data []byte, addr netip.AddrPort) error {
	t.hub.deliver(t.addr, addr, data)
	return nil
}

func (t *memTransport) ReadFrom() (transport.Packet, error) {
	select {
	case pkt := <-t.in:
		return pkt, nil
	case <-t.done:
		return transport.Packet{}, transport.ErrClosed
	}
}

func (t *memTransport) LocalAddr() netip.AddrPort {
	return t.addr
}

func (t *memTransport) Close() error {
	t.mut.Lock()
	defer t.mut.Unlock()

	if t.closed {
		return transport.ErrClosed
	}

	t.closed = true
	t.hub.detach(t.addr)
	close(t.done)

	return nil
}
