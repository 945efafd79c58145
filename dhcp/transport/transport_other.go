//go:build !linux

package transport

import (
	"fmt"
	"net"
)

// Bind opens a plain UDP/67 socket. Interface binding and TOS are
// best-effort outside Linux, matching the teacher's existing platform
// split (conn_darwin.go falls back to net.ListenUDP for the same reason).
func Bind(iface string) (Conn, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: ServerPort})
	if err != nil {
		return nil, fmt.Errorf("transport: listen :%d: %w", ServerPort, err)
	}
	return conn, nil
}
