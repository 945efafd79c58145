// Package engine implements the stateless-per-call DHCP request handler:
// it turns a decoded inbound Frame into zero or one outbound Frame plus
// zero or one side-effect, consulting an allocator.State for the
// interface it serves. Grounded in the teacher's dhcp/server.Server
// request handling, generalised into a pure decision function per spec
// §4.3 and separated from socket I/O (owned by dhcp/dispatcher).
package engine

import (
	"sync"

	"dhcpd/dhcp/allocator"
	"dhcpd/dhcp/frame"
)

// Outbound is a Frame ready to encode, plus the address it should be sent
// to.
type Outbound struct {
	TargetIP frame.IPv4
	Frame    *frame.Frame
}

// SideEffect is an advisory action the caller should perform after sending
// (or dropping) the reply. At most one of ARP or Persist is set.
type SideEffect struct {
	ARP     *ARPAdvice
	Persist *PersistAdvice
}

// ARPAdvice asks the host to publish hw->ip on iface.
type ARPAdvice struct {
	Iface string
	IP    frame.IPv4
	HW    frame.HardwareAddr
}

// PersistAdvice asks the host to durably store the interface's current
// lease snapshot.
type PersistAdvice struct {
	Iface  string
	Leases []allocator.Lease
}

// offerTable is the per-interface table of in-flight DISCOVER offers,
// keyed by hardware address. Entries are soft state: losing one just
// means the client re-DISCOVERs.
type offerTable struct {
	mu      sync.Mutex
	offered map[frame.HardwareAddr]*frame.Frame
}

func newOfferTable() *offerTable {
	return &offerTable{offered: make(map[frame.HardwareAddr]*frame.Frame)}
}

func (t *offerTable) put(hw frame.HardwareAddr, f *frame.Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.offered[hw] = f
}

func (t *offerTable) take(hw frame.HardwareAddr) (*frame.Frame, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.offered[hw]
	delete(t.offered, hw)
	return f, ok
}

// Engine is the per-interface request handler. It holds a reference to the
// interface's Allocator and owns its OfferTable exclusively; nothing else
// touches the OfferTable. The engine itself performs no I/O and never
// blocks.
type Engine struct {
	Iface     string
	Allocator *allocator.State
	offers    *offerTable
}

// New builds an Engine for the given interface and allocator.
func New(iface string, alloc *allocator.State) *Engine {
	return &Engine{Iface: iface, Allocator: alloc, offers: newOfferTable()}
}

// Handle consumes one decoded inbound Frame and returns the reply (if any)
// and a side-effect to perform (if any).
func (e *Engine) Handle(req *frame.Frame) (*Outbound, *SideEffect) {
	switch req.MessageType() {
	case frame.MsgDiscover:
		return e.handleDiscover(req)
	case frame.MsgRequest:
		return e.handleRequest(req)
	case frame.MsgRelease:
		e.Allocator.Release(req.CIAddr)
		return nil, nil
	case frame.MsgDecline:
		// Treated as RELEASE; see spec §9 open question on quarantining.
		e.Allocator.Release(req.CIAddr)
		return nil, nil
	default:
		return nil, nil
	}
}

func (e *Engine) handleDiscover(req *frame.Frame) (*Outbound, *SideEffect) {
	if req.Op != frame.OpRequest {
		return nil, nil
	}

	ip := e.Allocator.Available(req.CHAddr, 0)
	if ip == 0 {
		return nil, nil
	}

	offer := req.Clone()
	offer.Op = frame.OpReply
	offer.YIAddr = ip
	e.provideParameters(req, offer)
	offer.Options[frame.OptMessageType] = frame.U8Value(frame.MsgOffer)

	e.offers.put(req.CHAddr, offer)

	return &Outbound{TargetIP: ip, Frame: offer},
		&SideEffect{ARP: &ARPAdvice{Iface: e.Iface, IP: ip, HW: req.CHAddr}}
}

func (e *Engine) handleRequest(req *frame.Frame) (*Outbound, *SideEffect) {
	offer, hasOffer := e.offers.take(req.CHAddr)
	if !hasOffer {
		existing := e.Allocator.LeaseByHW(req.CHAddr)
		if !existing.Valid() {
			return e.nak(req), nil
		}
		offer = req.Clone()
		offer.Op = frame.OpReply
		offer.YIAddr = existing.IP
		e.provideParameters(req, offer)
		offer.Options[frame.OptMessageType] = frame.U8Value(frame.MsgOffer)
	}

	requested := req.RequestedIP()
	available := e.Allocator.Available(req.CHAddr, requested)
	if offer.YIAddr != requested || available != requested {
		return e.nak(req), nil
	}

	if !e.Allocator.Reserve(req.CHAddr, requested) {
		return e.nak(req), nil
	}

	offer.Options[frame.OptMessageType] = frame.U8Value(frame.MsgAck)
	return &Outbound{TargetIP: requested, Frame: offer},
		&SideEffect{Persist: &PersistAdvice{Iface: e.Iface, Leases: e.Allocator.Snapshot()}}
}

func (e *Engine) nak(req *frame.Frame) *Outbound {
	nak := req.Clone()
	e.markAsNak(nak, req)
	cfg := e.Allocator.Config()
	return &Outbound{TargetIP: cfg.Broadcast(), Frame: nak}
}

// markAsNak clears all options on reply, sets MessageType=NAK and
// ServerIdentifier, and zeros yiaddr/ciaddr, per spec §4.3.
func (e *Engine) markAsNak(reply *frame.Frame, req *frame.Frame) {
	cfg := e.Allocator.Config()
	reply.Op = frame.OpReply
	reply.YIAddr = 0
	reply.CIAddr = 0
	reply.Options = make(map[frame.OptionKey]frame.OptionValue)
	reply.Options[frame.OptMessageType] = frame.U8Value(frame.MsgNak)
	reply.Options[frame.OptServerIdentifier] = frame.IPListValue(cfg.ServerID)
}

// provideParameters fills offer's options with the parameters some clients
// silently require, regardless of what they asked for, then adds any of
// RenewalTime/RebindingTime the client's parameter-request list names.
func (e *Engine) provideParameters(req *frame.Frame, offer *frame.Frame) {
	cfg := e.Allocator.Config()

	offer.Options[frame.OptServerIdentifier] = frame.IPListValue(cfg.ServerID)
	offer.Options[frame.OptIPLeaseTime] = frame.U32Value(cfg.LeaseSeconds)
	offer.Options[frame.OptSubnetMask] = frame.IPListValue(cfg.Mask())
	offer.Options[frame.OptRouter] = frame.IPListValue(cfg.Router)
	offer.Options[frame.OptDNS] = frame.IPListValue(cfg.DNSServers...)
	offer.Options[frame.OptBroadcast] = frame.IPListValue(cfg.Broadcast())

	for _, key := range req.ParameterRequestList() {
		switch key {
		case frame.OptRenewalTime:
			offer.Options[frame.OptRenewalTime] = frame.U32Value(cfg.RenewalSeconds)
		case frame.OptRebindingTime:
			offer.Options[frame.OptRebindingTime] = frame.U32Value(cfg.RebindSeconds)
		}
	}
}
