// Package config loads the configuration surface enumerated in spec §6
// (network, routers, serverid, dhcp_first, dhcp_last, dns_servers,
// lease_time, renewal_time, rebinding_time, lease_file, reserve, per
// interface; global pidfile, logfile, loglevel, interface, include),
// grounded in DimensionDataResearch-mcp2-dhcp-server/server/service.go's
// viper usage.
package config

import (
	"fmt"
	"net"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"dhcpd/dhcp/allocator"
	"dhcpd/dhcp/frame"
)

// Global holds the process-wide settings from spec §6 that aren't scoped
// to a single interface.
type Global struct {
	PidFile  string
	LogFile  string
	LogLevel string
}

// InterfaceBinding is one interface's slice of the configuration surface,
// validated and ready to build an allocator.State.
type InterfaceBinding struct {
	Name      string
	Config    allocator.NetworkConfig
	LeaseFile string
}

// Config is the fully loaded, validated configuration.
type Config struct {
	Global     Global
	Interfaces []InterfaceBinding
}

// Load reads path (a YAML file) via viper, merging in any files named by
// top-level "include" entries, then validates every interface block into
// an InterfaceBinding. viper's AutomaticEnv is enabled with the prefix
// DHCPD and no key replacer, so a top-level key such as pidfile can be
// overridden by DHCPD_PIDFILE; per-interface keys have no
// DHCPD_<INTERFACE>_<KEY> environment mapping.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("dhcpd")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	for _, inc := range v.GetStringSlice("include") {
		v.SetConfigFile(inc)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("config: include %s: %w", inc, err)
		}
	}

	cfg := &Config{
		Global: Global{
			PidFile:  v.GetString("pidfile"),
			LogFile:  v.GetString("logfile"),
			LogLevel: v.GetString("loglevel"),
		},
	}

	ifaceMap := v.GetStringMap("interfaces")
	for name := range ifaceMap {
		sub := v.Sub("interfaces." + name)
		binding, err := parseInterface(name, sub)
		if err != nil {
			return nil, fmt.Errorf("config: interface %s: %w", name, err)
		}
		cfg.Interfaces = append(cfg.Interfaces, binding)
	}

	if len(cfg.Interfaces) == 0 {
		return nil, fmt.Errorf("config: no interfaces configured")
	}

	return cfg, nil
}

func parseInterface(name string, v *viper.Viper) (InterfaceBinding, error) {
	network := v.GetString("network")
	_, ipnet, err := net.ParseCIDR(network)
	if err != nil {
		return InterfaceBinding{}, fmt.Errorf("network %q: %w", network, err)
	}
	ones, _ := ipnet.Mask.Size()
	if ones < 1 || ones > 30 {
		return InterfaceBinding{}, fmt.Errorf("network %q: prefix length %d out of [1,30]", network, ones)
	}

	first := frame.IPv4FromNetIP(net.ParseIP(v.GetString("dhcp_first")))
	last := frame.IPv4FromNetIP(net.ParseIP(v.GetString("dhcp_last")))
	if first == 0 || last == 0 || first > last {
		return InterfaceBinding{}, fmt.Errorf("dhcp_first/dhcp_last invalid or out of order")
	}

	leaseSeconds := uint32(v.GetInt("lease_time"))
	renewalSeconds := uint32(v.GetInt("renewal_time"))
	rebindSeconds := uint32(v.GetInt("rebinding_time"))
	if !(0 < renewalSeconds && renewalSeconds < rebindSeconds && rebindSeconds < leaseSeconds) {
		return InterfaceBinding{}, fmt.Errorf("require 0 < renewal_time(%d) < rebinding_time(%d) < lease_time(%d)",
			renewalSeconds, rebindSeconds, leaseSeconds)
	}

	var dns []frame.IPv4
	for _, s := range v.GetStringSlice("dns_servers") {
		dns = append(dns, frame.IPv4FromNetIP(net.ParseIP(s)))
	}

	netCfg := allocator.NetworkConfig{
		NetworkSpace:       frame.IPv4FromNetIP(ipnet.IP),
		PrefixLength:       ones,
		Router:             frame.IPv4FromNetIP(net.ParseIP(v.GetString("routers"))),
		ServerID:           frame.IPv4FromNetIP(net.ParseIP(v.GetString("serverid"))),
		DHCPFirst:          first,
		DHCPLast:           last,
		DNSServers:         dns,
		LeaseSeconds:       leaseSeconds,
		RenewalSeconds:     renewalSeconds,
		RebindSeconds:      rebindSeconds,
		StaticReservations: make(map[frame.HardwareAddr]frame.IPv4),
	}

	if !netCfg.IsAllowed(netCfg.DHCPFirst) || !netCfg.IsAllowed(netCfg.DHCPLast) {
		return InterfaceBinding{}, fmt.Errorf("dhcp_first/dhcp_last fall outside network %s", network)
	}

	seen := make(map[frame.IPv4]frame.HardwareAddr)
	for macStr, ipVal := range v.GetStringMapString("reserve") {
		mac, err := net.ParseMAC(macStr)
		if err != nil {
			return InterfaceBinding{}, fmt.Errorf("reserve: invalid mac %q: %w", macStr, err)
		}
		ip := frame.IPv4FromNetIP(net.ParseIP(ipVal))
		if !netCfg.IsAllowed(ip) {
			return InterfaceBinding{}, fmt.Errorf("reserve: ip %s for %s outside network", ipVal, macStr)
		}
		if owner, dup := seen[ip]; dup {
			return InterfaceBinding{}, fmt.Errorf("reserve: ip %s reserved for both %s and %s", ipVal, owner, mac)
		}
		hw := frame.HardwareAddrFromBytes(mac)
		seen[ip] = hw
		netCfg.StaticReservations[hw] = ip
	}

	return InterfaceBinding{
		Name:      name,
		Config:    netCfg,
		LeaseFile: v.GetString("lease_file"),
	}, nil
}

// Watch sends on changed whenever path is modified on disk, grounded in
// peterrosell-provision/server/watcher.go's fsnotify idiom (there used to
// watch the running binary for hot-swap; here repurposed to watch the
// config file and signal a reload). Reload itself — rebuilding bindings
// and calling allocator.State.Configure — is the caller's responsibility;
// in-flight allocations are never disturbed by a pending reload.
func Watch(path string, changed chan<- struct{}) (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: new watcher: %w", err)
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					select {
					case changed <- struct{}{}:
					default:
					}
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return w, nil
}
