//go:build linux

package prober

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// socketControl prepares the DHCP client socket: broadcast allowed, port
// shared with a running DHCP client, and pinned to iface.
func socketControl(iface string) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		var sockErr error
		err := c.Control(func(fd uintptr) {
			if sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); sockErr != nil {
				return
			}
			if sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1); sockErr != nil {
				return
			}
			sockErr = unix.BindToDevice(int(fd), iface)
		})
		if err != nil {
			return err
		}
		return sockErr
	}
}
