//go:build !windows

package appcontainer

import "fmt"

// EnumeratePipePrefixes is only available on Windows.
func EnumeratePipePrefixes() ([]string, error) {
	return nil, fmt.Errorf("EnumeratePipePrefixes: not available on this platform")
}
