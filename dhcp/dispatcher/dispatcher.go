// Package dispatcher demultiplexes inbound datagrams by arrival interface
// to the correct Allocator/Engine pair and serialises outbound frames back
// to the socket layer. Grounded in the teacher's dhcp/server.Server run
// loop (processPackets/startReadConn goroutines, sync.WaitGroup-joined
// shutdown), generalised from one shared socket to one actor per
// interface, per the redesign note in spec §9.
package dispatcher

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"dhcpd/dhcp/allocator"
	"dhcpd/dhcp/codec"
	"dhcpd/dhcp/config"
	"dhcpd/dhcp/engine"
	"dhcpd/dhcp/frame"
	"dhcpd/dhcp/logging"
	"dhcpd/dhcp/metrics"
	"dhcpd/dhcp/persist"
	"dhcpd/dhcp/transport"
)

const readDeadline = 1 * time.Second

// ARPSink is the core -> collaborator interface for publishing an
// advisory hw<->ip binding (spec §6).
type ARPSink interface {
	Publish(iface string, ip frame.IPv4, hw frame.HardwareAddr)
}

// CoreContext is the explicit, non-global bundle of collaborator sinks
// (logging, ARP advice, metrics) shared by every receiver goroutine; the
// per-interface allocator and engine live in each ifaceActor. It replaces
// the "global singletons for config/log" pattern flagged in spec §9.
type CoreContext struct {
	Log     logging.Sink
	ARP     ARPSink
	Metrics *metrics.Metrics
}

type ifaceActor struct {
	name      string
	conn      transport.Conn
	allocator *allocator.State
	engine    *engine.Engine
	leaseFile string
	persistCh chan []allocator.Lease
}

// Dispatcher owns one ifaceActor per bound interface.
type Dispatcher struct {
	ctx    *CoreContext
	actors []*ifaceActor
	wg     sync.WaitGroup
}

// New builds a Dispatcher from a loaded Config, binding one socket per
// interface and loading each interface's lease file.
func New(cctx *CoreContext, cfg *config.Config) (*Dispatcher, error) {
	d := &Dispatcher{ctx: cctx}
	for _, ib := range cfg.Interfaces {
		conn, err := transport.Bind(ib.Name)
		if err != nil {
			return nil, fmt.Errorf("dispatcher: bind %s: %w", ib.Name, err)
		}

		leases, err := persist.Load(ib.LeaseFile)
		if err != nil {
			cctx.Log.Warning("failed to load lease file, starting empty", "iface", ib.Name, "error", err)
			leases = nil
		}

		alloc := allocator.New(ib.Config)
		alloc.Configure(ib.Config, leases)

		a := &ifaceActor{
			name:      ib.Name,
			conn:      conn,
			allocator: alloc,
			engine:    engine.New(ib.Name, alloc),
			leaseFile: ib.LeaseFile,
			persistCh: make(chan []allocator.Lease, 8),
		}
		d.actors = append(d.actors, a)
	}
	return d, nil
}

// Run starts every interface's receiver and persistence goroutines and
// blocks until ctx is cancelled, then drains and performs a final flush.
func (d *Dispatcher) Run(ctx context.Context) {
	for _, a := range d.actors {
		d.wg.Add(2)
		go d.receive(ctx, a)
		go d.persistLoop(ctx, a)
	}
	<-ctx.Done()
	d.wg.Wait()

	for _, a := range d.actors {
		a.conn.Close()
		final := a.allocator.Snapshot()
		if err := persist.Store(a.leaseFile, final); err != nil {
			d.ctx.Log.Warning("final lease flush failed", "iface", a.name, "error", err)
		}
	}
}

func (d *Dispatcher) receive(ctx context.Context, a *ifaceActor) {
	defer d.wg.Done()

	buf := make([]byte, 1500)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_ = a.conn.SetReadDeadline(time.Now().Add(readDeadline))
		n, addr, err := a.conn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-ctx.Done():
				return
			default:
				d.ctx.Log.Warning("read error", "iface", a.name, "error", err)
				continue
			}
		}

		req, err := codec.Decode(buf[:n])
		if err != nil {
			d.ctx.Metrics.DecodeErrors.WithLabelValues(a.name).Inc()
			d.ctx.Log.Warning("dropping malformed datagram", "iface", a.name, "from", addr, "error", err)
			continue
		}
		if req.MessageType() == 0 {
			continue // no option 53: not a DHCP frame we act on
		}

		out, effect := a.engine.Handle(req)
		if out != nil {
			d.send(a, out)
		} else if req.MessageType() == frame.MsgDiscover {
			d.ctx.Metrics.PoolExhausted.WithLabelValues(a.name).Inc()
		}
		d.applySideEffect(a, effect)
	}
}

func (d *Dispatcher) send(a *ifaceActor, out *engine.Outbound) {
	wire, err := codec.Encode(out.Frame)
	if err != nil {
		d.ctx.Log.Critical("failed to encode reply", "iface", a.name, "error", err)
		return
	}

	dest := &net.UDPAddr{IP: out.TargetIP.NetIP(), Port: transport.ClientPort}
	if _, err := a.conn.WriteTo(wire, dest); err != nil {
		d.ctx.Log.Warning("failed to send reply", "iface", a.name, "to", dest, "error", err)
		return
	}

	switch out.Frame.MessageType() {
	case frame.MsgOffer:
		d.ctx.Metrics.OffersTotal.WithLabelValues(a.name).Inc()
	case frame.MsgAck:
		d.ctx.Metrics.AcksTotal.WithLabelValues(a.name).Inc()
	case frame.MsgNak:
		d.ctx.Metrics.NaksTotal.WithLabelValues(a.name).Inc()
	}
}

func (d *Dispatcher) applySideEffect(a *ifaceActor, effect *engine.SideEffect) {
	if effect == nil {
		return
	}
	if effect.ARP != nil {
		d.ctx.ARP.Publish(effect.ARP.Iface, effect.ARP.IP, effect.ARP.HW)
	}
	if effect.Persist != nil {
		d.ctx.Metrics.LeasesActive.WithLabelValues(a.name).Set(float64(len(effect.Persist.Leases)))
		select {
		case a.persistCh <- effect.Persist.Leases:
		default:
			d.ctx.Log.Warning("persist queue full, dropping intermediate snapshot", "iface", a.name)
		}
	}
}

// persistLoop is the sole writer of a.leaseFile: a fire-and-forget
// consumer that takes lease-persist advice off the engine's hot path, per
// the redesign note in spec §9, while keeping writes ordered (one
// consumer goroutine per interface).
func (d *Dispatcher) persistLoop(ctx context.Context, a *ifaceActor) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case leases := <-a.persistCh:
			if err := persist.Store(a.leaseFile, leases); err != nil {
				d.ctx.Log.Warning("failed to persist leases", "iface", a.name, "error", err)
			}
		}
	}
}
