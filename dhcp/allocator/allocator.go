// Package allocator implements the per-interface lease pool: availability
// queries, reservations, releases, and lazy expiry, grounded in the
// teacher's dhcp/pool.IPPool generalised with the bijective hw<->ip index
// and static-reservation handling the spec requires.
package allocator

import (
	"errors"
	"sync"
	"time"

	"dhcpd/dhcp/frame"
)

// ErrUnallowed names the condition under which Reserve refuses a binding:
// the requested IP is not assignable on this network, or is already held
// by a different hardware address. Reserve reports it as a false result
// and does not return this value.
var ErrUnallowed = errors.New("ip address not allowed")

// Lease is the persistent hw<->ip binding record. A Lease with
// StartTime.IsZero() is the invalid sentinel.
type Lease struct {
	StartTime time.Time
	HW        frame.HardwareAddr
	IP        frame.IPv4
}

// Valid reports whether l is a real lease rather than the zero sentinel.
func (l Lease) Valid() bool { return !l.StartTime.IsZero() }

// NetworkConfig is the immutable, per-interface pool configuration.
type NetworkConfig struct {
	NetworkSpace   frame.IPv4
	PrefixLength   int // 1..30
	Router         frame.IPv4
	ServerID       frame.IPv4
	DHCPFirst      frame.IPv4
	DHCPLast       frame.IPv4
	DNSServers     []frame.IPv4
	LeaseSeconds   uint32
	RenewalSeconds uint32 // T1
	RebindSeconds  uint32 // T2

	// StaticReservations maps a hardware address to its permanently
	// assigned IP. Must be injective and within the network; the config
	// loader enforces this at load time (see dhcp/config).
	StaticReservations map[frame.HardwareAddr]frame.IPv4
}

// Mask returns the /PrefixLength subnet mask.
func (c NetworkConfig) Mask() frame.IPv4 {
	return SubnetMask(c.PrefixLength)
}

// SubnetMask computes the mask for a prefix length in [1,30]. Prefix
// lengths outside that range are an invariant violated by the caller (the
// config loader rejects them before a NetworkConfig is ever built); this
// function does not re-validate, per spec §9's resolved open question.
func SubnetMask(prefixLength int) frame.IPv4 {
	return frame.IPv4(^uint32(0) << (32 - uint(prefixLength)))
}

// Broadcast returns the network's directed broadcast address.
func (c NetworkConfig) Broadcast() frame.IPv4 {
	return c.NetworkSpace | ^c.Mask()
}

// IsAllowed reports whether ip lies within the network, excluding the
// network and broadcast addresses.
func (c NetworkConfig) IsAllowed(ip frame.IPv4) bool {
	mask := c.Mask()
	if ip&mask != c.NetworkSpace&mask {
		return false
	}
	return ip != c.NetworkSpace && ip != c.Broadcast()
}

// State is the mutable, internally synchronised per-interface lease table.
type State struct {
	mu         sync.Mutex
	config     NetworkConfig
	leasesByHW map[frame.HardwareAddr]Lease
	leasesByIP map[frame.IPv4]Lease
	now        func() time.Time
}

// New builds an empty State for cfg. now defaults to time.Now; tests may
// override it via NewWithClock to exercise expiry deterministically.
func New(cfg NetworkConfig) *State {
	return NewWithClock(cfg, time.Now)
}

// NewWithClock builds a State with an injected clock.
func NewWithClock(cfg NetworkConfig, now func() time.Time) *State {
	return &State{
		config:     cfg,
		leasesByHW: make(map[frame.HardwareAddr]Lease),
		leasesByIP: make(map[frame.IPv4]Lease),
		now:        now,
	}
}

// Configure replaces the pool's configuration and seeds its lease table
// from initialLeases. Leases that are invalid or fall outside the
// configured network are dropped silently; Configure logs nothing, and
// no warning is emitted for a dropped lease.
func (s *State) Configure(cfg NetworkConfig, initialLeases []Lease) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.config = cfg
	s.leasesByHW = make(map[frame.HardwareAddr]Lease)
	s.leasesByIP = make(map[frame.IPv4]Lease)
	for _, l := range initialLeases {
		if !l.Valid() || !cfg.IsAllowed(l.IP) {
			continue
		}
		s.leasesByHW[l.HW] = l
		s.leasesByIP[l.IP] = l
	}
}

func (s *State) expired(l Lease) bool {
	return s.now().Sub(l.StartTime) > time.Duration(s.config.LeaseSeconds)*time.Second
}

// removeLocked drops l from both indices. Caller holds s.mu.
func (s *State) removeLocked(l Lease) {
	if cur, ok := s.leasesByHW[l.HW]; ok && cur.IP == l.IP {
		delete(s.leasesByHW, l.HW)
	}
	if cur, ok := s.leasesByIP[l.IP]; ok && cur.HW == l.HW {
		delete(s.leasesByIP, l.IP)
	}
}

// Available returns an address a DISCOVER can be offered for hw, or 0 if
// the pool is exhausted. See spec §4.2 for the ordered algorithm.
func (s *State) Available(hw frame.HardwareAddr, preferred frame.IPv4) frame.IPv4 {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Step 1: vet the caller's preferred address.
	if preferred != 0 && !s.config.IsAllowed(preferred) {
		preferred = 0
	}
	if preferred != 0 {
		if l, ok := s.leasesByIP[preferred]; ok && l.Valid() && s.expired(l) {
			s.removeLocked(l)
		}
	}

	// Step 2: the client's own current lease always wins, ignoring preferred.
	if l, ok := s.leasesByHW[hw]; ok && l.Valid() {
		if !s.expired(l) {
			return l.IP
		}
		s.removeLocked(l)
	}

	// A static reservation for this hw overrides steps 3-4: it is always
	// preferred if free.
	if reserved, ok := s.config.StaticReservations[hw]; ok {
		if l, exists := s.leasesByIP[reserved]; !exists {
			return reserved
		} else if s.expired(l) {
			s.removeLocked(l)
			return reserved
		}
	}

	// Step 3: the (vetted) preferred address, if still free.
	if preferred != 0 {
		if _, ok := s.leasesByIP[preferred]; !ok {
			return preferred
		}
	}

	// Step 4: linear scan of the pool.
	first := uint32(s.config.DHCPFirst)
	last := uint32(s.config.DHCPLast)
	for raw := first; raw <= last; raw++ {
		ip := frame.IPv4(raw)
		l, ok := s.leasesByIP[ip]
		if !ok {
			return ip
		}
		if s.expired(l) {
			s.removeLocked(l)
			return ip
		}
	}

	return 0
}

// Reserve commits a lease binding ip to hw. It returns false, leaving state
// unchanged, if ip is not allowed on this network or is validly held by a
// different hardware address.
func (s *State) Reserve(hw frame.HardwareAddr, ip frame.IPv4) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.config.IsAllowed(ip) {
		return false
	}
	if existing, ok := s.leasesByIP[ip]; ok && existing.Valid() && existing.HW != hw && !s.expired(existing) {
		return false
	}

	if existing, ok := s.leasesByHW[hw]; ok && existing.IP != ip {
		s.removeLocked(existing)
	}
	if existing, ok := s.leasesByIP[ip]; ok {
		s.removeLocked(existing)
	}

	l := Lease{StartTime: s.now(), HW: hw, IP: ip}
	s.leasesByHW[hw] = l
	s.leasesByIP[ip] = l
	return true
}

// Release removes any lease keyed by ip, idempotently.
func (s *State) Release(ip frame.IPv4) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.leasesByIP[ip]; ok {
		s.removeLocked(l)
	}
}

// LeaseByHW returns the lease for hw, or the invalid sentinel if absent.
func (s *State) LeaseByHW(hw frame.HardwareAddr) Lease {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leasesByHW[hw]
}

// LeaseByIP returns the lease for ip, or the invalid sentinel if absent.
func (s *State) LeaseByIP(ip frame.IPv4) Lease {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leasesByIP[ip]
}

// Snapshot returns every currently valid lease, for persistence.
func (s *State) Snapshot() []Lease {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Lease, 0, len(s.leasesByIP))
	for _, l := range s.leasesByIP {
		out = append(out, l)
	}
	return out
}

// Config returns the state's current (immutable) NetworkConfig.
func (s *State) Config() NetworkConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}
