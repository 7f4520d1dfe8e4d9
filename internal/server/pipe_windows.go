//go:build windows

package server

import (
	"net"

	winio "github.com/Microsoft/go-winio"
)

// pipeSecuritySDDL grants access to Local System, Built-in Administrators,
// and the creator owner.
const pipeSecuritySDDL = "D:(A;;GA;;;SY)(A;;GA;;;BA)(A;;GA;;;CO)"

func listenPipe(pipeName string) (net.Listener, error) {
	cfg := &winio.PipeConfig{
		SecurityDescriptor: pipeSecuritySDDL,
		InputBufferSize:    65536,
		OutputBufferSize:   65536,
	}
	return winio.ListenPipe(pipeName, cfg)
}
