// Package arpadvice implements the default ARP-publish collaborator: a
// gratuitous ARP broadcast announcing a freshly offered hw<->ip binding,
// grounded in peterrosell-provision/midlayer/ha.go's use of the same call
// after assigning an address to an interface.
package arpadvice

import (
	"github.com/j-keck/arping"

	"dhcpd/dhcp/frame"
	"dhcpd/dhcp/logging"
)

// Publisher implements the core's publish_arp collaborator (spec §6).
type Publisher struct {
	log logging.Sink
}

// New builds a Publisher that logs failures to log rather than
// propagating them — per spec §6, ARP failures are "logged and ignored".
func New(log logging.Sink) *Publisher {
	return &Publisher{log: log}
}

// Publish announces hw -> ip on iface via a gratuitous ARP broadcast.
func (p *Publisher) Publish(iface string, ip frame.IPv4, hw frame.HardwareAddr) {
	if err := arping.GratuitousArpOverIfaceByName(ip.NetIP(), iface); err != nil {
		p.log.Warning("failed to publish ARP advisory", "iface", iface, "ip", ip, "hw", hw, "error", err)
	}
}
