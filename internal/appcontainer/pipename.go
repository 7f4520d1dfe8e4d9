package appcontainer

import (
	"fmt"
	"strconv"
	"strings"
)

// JoinPipe appends a pipe name to a discovered prefix, yielding a full
// named-pipe path a client can dial.
func JoinPipe(prefix, name string) string {
	if strings.HasSuffix(prefix, `\`) {
		return prefix + name
	}
	return prefix + `\` + name
}

// Prefix is a pipe prefix split back into its parts.
type Prefix struct {
	SessionID  uint32
	ObjectPath string
}

// ParsePrefix splits a prefix produced by Enumerate into its session and
// object-path parts.
func ParsePrefix(s string) (Prefix, error) {
	rest, ok := strings.CutPrefix(s, PipePrefixRoot)
	if !ok {
		return Prefix{}, fmt.Errorf("not an AppContainer pipe prefix: %q", s)
	}
	sess, path, ok := strings.Cut(rest, `\`)
	if !ok || path == "" {
		return Prefix{}, fmt.Errorf("malformed pipe prefix: %q", s)
	}
	id, err := strconv.ParseUint(sess, 10, 32)
	if err != nil {
		return Prefix{}, fmt.Errorf("malformed session id in %q: %w", s, err)
	}
	return Prefix{SessionID: uint32(id), ObjectPath: path}, nil
}
