package allocator

import (
	"net"
	"testing"
	"time"

	"dhcpd/dhcp/frame"
)

func testConfig() NetworkConfig {
	return NetworkConfig{
		NetworkSpace:        frame.IPv4FromNetIP(net.ParseIP("192.168.1.0")),
		PrefixLength:        24,
		Router:              frame.IPv4FromNetIP(net.ParseIP("192.168.1.1")),
		ServerID:            frame.IPv4FromNetIP(net.ParseIP("192.168.1.1")),
		DHCPFirst:           frame.IPv4FromNetIP(net.ParseIP("192.168.1.100")),
		DHCPLast:            frame.IPv4FromNetIP(net.ParseIP("192.168.1.102")),
		DNSServers:          []frame.IPv4{frame.IPv4FromNetIP(net.ParseIP("8.8.8.8"))},
		LeaseSeconds:        3600,
		RenewalSeconds:      1800,
		RebindSeconds:       3150,
		StaticReservations:  map[frame.HardwareAddr]frame.IPv4{},
	}
}

func hw(b byte) frame.HardwareAddr {
	return frame.HardwareAddrFromBytes([]byte{0, 0, 0, 0, 0, b})
}

func ip(s string) frame.IPv4 {
	return frame.IPv4FromNetIP(net.ParseIP(s))
}

func TestSubnetMaskAndBroadcast(t *testing.T) {
	cfg := testConfig()
	if cfg.Mask() != ip("255.255.255.0") {
		t.Fatalf("Mask() = %v, want 255.255.255.0", cfg.Mask())
	}
	if cfg.Broadcast() != ip("192.168.1.255") {
		t.Fatalf("Broadcast() = %v, want 192.168.1.255", cfg.Broadcast())
	}
}

func TestIsAllowedExcludesNetworkAndBroadcast(t *testing.T) {
	cfg := testConfig()
	if cfg.IsAllowed(cfg.NetworkSpace) {
		t.Fatal("IsAllowed(network address) = true")
	}
	if cfg.IsAllowed(cfg.Broadcast()) {
		t.Fatal("IsAllowed(broadcast address) = true")
	}
	if !cfg.IsAllowed(ip("192.168.1.100")) {
		t.Fatal("IsAllowed(192.168.1.100) = false")
	}
	if cfg.IsAllowed(ip("10.0.0.1")) {
		t.Fatal("IsAllowed(10.0.0.1) = true, out of network")
	}
}

func TestAvailableAllocatesWithinBounds(t *testing.T) {
	s := New(testConfig())
	got := s.Available(hw(1), 0)
	if got < s.config.DHCPFirst || got > s.config.DHCPLast {
		t.Fatalf("Available() = %v, out of pool bounds", got)
	}
}

func TestAvailableNoDoubleBooking(t *testing.T) {
	cfg := testConfig()
	cfg.DHCPLast = ip("192.168.1.101") // pool of exactly two addresses
	s := New(cfg)

	first := s.Available(hw(1), 0)
	if !s.Reserve(hw(1), first) {
		t.Fatal("Reserve() failed for a freshly available address")
	}

	second := s.Available(hw(2), 0)
	if second == first {
		t.Fatalf("Available() handed out %v twice", first)
	}
	if !s.Reserve(hw(2), second) {
		t.Fatal("Reserve() failed for second client")
	}

	third := s.Available(hw(3), 0)
	if third != 0 {
		t.Fatalf("Available() = %v, want 0 (pool exhausted, only 2 addresses)", third)
	}
}

func TestAvailableReturnsExistingLeaseForSameHW(t *testing.T) {
	s := New(testConfig())
	first := s.Available(hw(1), 0)
	s.Reserve(hw(1), first)

	again := s.Available(hw(1), ip("192.168.1.102"))
	if again != first {
		t.Fatalf("Available() for known client = %v, want existing lease %v", again, first)
	}
}

func TestAvailableHonoursPreferredWhenFree(t *testing.T) {
	s := New(testConfig())
	preferred := ip("192.168.1.101")
	got := s.Available(hw(9), preferred)
	if got != preferred {
		t.Fatalf("Available() = %v, want preferred %v", got, preferred)
	}
}

func TestAvailableIgnoresPreferredOutOfNetwork(t *testing.T) {
	s := New(testConfig())
	got := s.Available(hw(9), ip("10.0.0.5"))
	if got < s.config.DHCPFirst || got > s.config.DHCPLast {
		t.Fatalf("Available() with out-of-network preferred = %v, want pool address", got)
	}
}

func TestAvailablePrefersStaticReservation(t *testing.T) {
	cfg := testConfig()
	reserved := ip("192.168.1.100")
	cfg.StaticReservations[hw(5)] = reserved
	s := New(cfg)

	got := s.Available(hw(5), ip("192.168.1.101"))
	if got != reserved {
		t.Fatalf("Available() for reserved hw = %v, want %v", got, reserved)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	s := New(testConfig())
	first := s.Available(hw(1), 0)
	s.Reserve(hw(1), first)

	s.Release(first)
	s.Release(first) // must not panic or error on a second release

	if l := s.LeaseByIP(first); l.Valid() {
		t.Fatal("LeaseByIP() still valid after Release()")
	}
}

func TestExpiryReclaimsAddress(t *testing.T) {
	cfg := testConfig()
	cfg.DHCPFirst = ip("192.168.1.100")
	cfg.DHCPLast = ip("192.168.1.100")
	cfg.LeaseSeconds = 10

	now := time.Unix(1_700_000_000, 0)
	s := NewWithClock(cfg, func() time.Time { return now })

	got := s.Available(hw(1), 0)
	if !s.Reserve(hw(1), got) {
		t.Fatal("Reserve() failed")
	}

	now = now.Add(5 * time.Second)
	if again := s.Available(hw(2), 0); again != 0 {
		t.Fatalf("Available() = %v before expiry, want 0 (pool exhausted)", again)
	}

	now = now.Add(20 * time.Second)
	reclaimed := s.Available(hw(2), 0)
	if reclaimed != got {
		t.Fatalf("Available() after expiry = %v, want reclaimed %v", reclaimed, got)
	}
}

func TestReserveRejectsUnallowedIP(t *testing.T) {
	s := New(testConfig())
	if s.Reserve(hw(1), ip("10.0.0.5")) {
		t.Fatal("Reserve() succeeded for an out-of-network address")
	}
}

func TestConfigureDropsInvalidLeases(t *testing.T) {
	s := New(testConfig())
	s.Configure(testConfig(), []Lease{
		{StartTime: time.Now(), HW: hw(1), IP: ip("192.168.1.100")},
		{StartTime: time.Now(), HW: hw(2), IP: ip("10.0.0.1")}, // out of network, dropped
		{HW: hw(3), IP: ip("192.168.1.101")},                   // zero StartTime, dropped
	})

	if l := s.LeaseByHW(hw(1)); !l.Valid() {
		t.Fatal("valid seeded lease was dropped")
	}
	if l := s.LeaseByHW(hw(2)); l.Valid() {
		t.Fatal("out-of-network seeded lease was kept")
	}
	if l := s.LeaseByHW(hw(3)); l.Valid() {
		t.Fatal("zero-StartTime seeded lease was kept")
	}
}
