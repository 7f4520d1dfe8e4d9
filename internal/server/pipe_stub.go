//go:build !windows

package server

import (
	"fmt"
	"net"
)

// listenPipe is only available on Windows.
func listenPipe(pipeName string) (net.Listener, error) {
	return nil, fmt.Errorf("named pipe listener: not available on this platform")
}
