// Package appcontainer discovers the named-pipe namespaces of AppContainer
// processes on the local machine.
//
// Every AppContainer publishes its named kernel objects under a per-session,
// per-container prefix. A peer that wants to connect to a pipe served from
// inside a container needs that prefix; this package finds them by walking the
// live process table and inspecting each process's primary token.
package appcontainer

import (
	"fmt"
	"strconv"
	"unicode/utf16"
)

// PipePrefixRoot is the namespace every AppContainer pipe prefix starts with.
const PipePrefixRoot = `\\.\pipe\Sessions\`

// MaxObjectPath bounds the AppContainer named-object path in UTF-16 code
// units, including the terminator.
const MaxObjectPath = 1024

// Handle is an opaque OS handle. Each handle is owned by exactly one frame
// and released on every exit path.
type Handle uintptr

// Sys abstracts the OS calls the scanner makes, so tests can substitute an
// implementation that accounts every open and close.
type Sys interface {
	// CreateSnapshot takes a point-in-time snapshot of the process table.
	CreateSnapshot() (Handle, error)

	// FirstProcess positions the snapshot on its first entry and returns
	// that entry's process ID.
	FirstProcess(snap Handle) (uint32, error)

	// NextProcess advances the snapshot. ok is false once the snapshot is
	// exhausted; read failures are indistinguishable from exhaustion.
	NextProcess(snap Handle) (pid uint32, ok bool)

	// OpenProcess opens pid with query-information rights.
	OpenProcess(pid uint32) (Handle, error)

	// OpenProcessToken opens the process's primary token with query rights.
	OpenProcessToken(process Handle) (Handle, error)

	// IsAppContainer reports whether the token is AppContainer-classified.
	IsAppContainer(token Handle) (bool, error)

	// SessionID reads the token's logon session identifier.
	SessionID(token Handle) (uint32, error)

	// ObjectPath reads the token's AppContainer named-object path into buf
	// and returns its length in code units, excluding the terminator. A
	// path that does not fit in buf is an error.
	ObjectPath(token Handle, buf []uint16) (int, error)

	// CloseHandle releases a handle returned by any of the calls above.
	CloseHandle(h Handle)
}

// Enumerate walks a process snapshot from sys and returns one pipe prefix per
// AppContainer process, in snapshot order. Duplicates are kept: two processes
// in the same container contribute two identical entries.
//
// Only snapshot creation and the first entry read are fatal. A process that
// cannot be opened or introspected contributes nothing; the scan is a
// best-effort discovery, not an authoritative inventory.
func Enumerate(sys Sys) ([]string, error) {
	snap, err := sys.CreateSnapshot()
	if err != nil {
		return nil, fmt.Errorf("CreateToolhelp32Snapshot: %w", err)
	}
	defer sys.CloseHandle(snap)

	pid, err := sys.FirstProcess(snap)
	if err != nil {
		return nil, fmt.Errorf("Process32First: %w", err)
	}

	prefixes := []string{}
	for {
		if token, ok := appContainerToken(sys, pid); ok {
			if prefix, ok := composePrefix(sys, token); ok {
				prefixes = append(prefixes, prefix)
			}
			sys.CloseHandle(token)
		}

		next, ok := sys.NextProcess(snap)
		if !ok {
			break
		}
		pid = next
	}

	return prefixes, nil
}

// GetAppContainerProcessTokens is the historical name of
// EnumeratePipePrefixes, kept for host runtimes that invoke the operation by
// name.
func GetAppContainerProcessTokens() ([]string, error) {
	return EnumeratePipePrefixes()
}

// appContainerToken classifies pid. On the true return the token is open with
// query rights and the caller must close it; on the false return no handle is
// left open. Inaccessible processes and classification failures both report
// false: processes come and go, and many are unreadable by an unprivileged
// caller.
func appContainerToken(sys Sys, pid uint32) (Handle, bool) {
	process, err := sys.OpenProcess(pid)
	if err != nil {
		return 0, false
	}

	token, err := sys.OpenProcessToken(process)
	if err != nil {
		sys.CloseHandle(process)
		return 0, false
	}

	isAC, err := sys.IsAppContainer(token)
	if err != nil || !isAC {
		sys.CloseHandle(token)
		sys.CloseHandle(process)
		return 0, false
	}

	// The token alone suffices downstream.
	sys.CloseHandle(process)
	return token, true
}

// composePrefix builds the pipe prefix for an AppContainer token. It does not
// close the token. Failures yield no result: an entry is emitted whole or not
// at all, never as a session-only partial.
func composePrefix(sys Sys, token Handle) (string, bool) {
	session, err := sys.SessionID(token)
	if err != nil {
		return "", false
	}

	var buf [MaxObjectPath]uint16
	n, err := sys.ObjectPath(token, buf[:])
	if err != nil || n == 0 {
		return "", false
	}

	// The object path is used verbatim; no trimming or canonicalization.
	return PipePrefixRoot + strconv.FormatUint(uint64(session), 10) + `\` +
		string(utf16.Decode(buf[:n])), true
}
