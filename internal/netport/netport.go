// Package netport finds free TCP ports on the host.
//
// A port returned by Ephemeral is not reserved: another process may bind it
// before the caller does. Callers live with that race.
package netport

import (
	"errors"
	"fmt"
	"net"
	"syscall"
)

// Allocator hands out host ports.
type Allocator interface {
	Ephemeral() (int, error)
	InUse(port int) (bool, error)
}

// System allocates ports from the local network stack.
type System struct{}

var _ Allocator = System{}

func (System) Ephemeral() (int, error) { return Ephemeral() }

func (System) InUse(port int) (bool, error) { return InUse(port) }

// Ephemeral binds port 0 on the wildcard address and returns the port the
// kernel picked, after releasing it.
func Ephemeral() (int, error) {
	l, err := net.Listen("tcp", ":0")
	if err != nil {
		return 0, fmt.Errorf("failed to bind ephemeral port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// InUse reports whether port is already bound. Bind errors other than
// EADDRINUSE are returned.
func InUse(port int) (bool, error) {
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return true, nil
		}
		return false, fmt.Errorf("failed to check port %d: %w", port, err)
	}
	l.Close()
	return false, nil
}
