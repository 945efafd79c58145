//go:build linux

package transport

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

// Bind opens a UDP/67 socket bound to the named interface, with
// SO_BROADCAST enabled and IP_TOS set to low-delay, per spec §6. The
// teacher's version used raw magic numbers (0x11, 0x3, ...) for the
// socket family/type/protocol and hand-rolled htons; this uses
// golang.org/x/sys/unix's named constants instead, and
// golang.org/x/net/ipv4 to set TOS, which plain syscall does not expose
// without manual option crafting.
func Bind(iface string) (Conn, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	if err != nil {
		return nil, fmt.Errorf("transport: socket: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_BROADCAST, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: SO_BROADCAST: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: SO_REUSEADDR: %w", err)
	}
	if err := unix.BindToDevice(fd, iface); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: SO_BINDTODEVICE %s: %w", iface, err)
	}

	addr := unix.SockaddrInet4{Port: ServerPort}
	if err := unix.Bind(fd, &addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: bind :%d: %w", ServerPort, err)
	}

	f := os.NewFile(uintptr(fd), fmt.Sprintf("dhcp-%s", iface))
	packetConn, err := net.FilePacketConn(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("transport: FilePacketConn: %w", err)
	}

	pc := ipv4.NewPacketConn(packetConn)
	// Low-delay per RFC 1349 TOS semantics, as spec §6 requires.
	if err := pc.SetTOS(0x10); err != nil {
		packetConn.Close()
		return nil, fmt.Errorf("transport: SetTOS: %w", err)
	}

	return packetConn, nil
}
