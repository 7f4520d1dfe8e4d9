//go:build !windows

package cli

import (
	"fmt"
	"net"
	"time"
)

// dialNamedPipe is only available on Windows.
func dialNamedPipe(pipeName string, timeout time.Duration) (net.Conn, error) {
	return nil, fmt.Errorf("named pipe dial: not available on this platform")
}
