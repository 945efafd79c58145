// Package transport builds the per-interface UDP/67 socket the dispatcher
// reads and writes BOOTP datagrams on. Grounded in the teacher's
// dhcp/transport package (raw syscall socket + BindToDevice on Linux,
// plain net.ListenUDP elsewhere), modernised to use golang.org/x/sys/unix's
// named constants in place of the teacher's raw magic numbers and
// golang.org/x/net/ipv4 to set IP_TOS, both per spec §6.
package transport

import "net"

// Conn is the socket interface the dispatcher holds. It is satisfied by
// both the Linux-specific bound socket and the portable net.ListenUDP
// fallback.
type Conn interface {
	net.PacketConn
}

const (
	ServerPort = 67
	ClientPort = 68
)
