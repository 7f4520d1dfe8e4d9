//go:build windows

package appcontainer

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modKernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procGetAppContainerNamedObjectPath = modKernel32.NewProc("GetAppContainerNamedObjectPath")
)

// winSys implements Sys against the real OS. The Toolhelp cursor is
// per-snapshot, so the current entry lives here between First/Next calls.
type winSys struct {
	entry windows.ProcessEntry32
}

// EnumeratePipePrefixes scans the local process table and returns the pipe
// prefix of every AppContainer process.
func EnumeratePipePrefixes() ([]string, error) {
	return Enumerate(&winSys{})
}

func (s *winSys) CreateSnapshot() (Handle, error) {
	h, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return 0, err
	}
	return Handle(h), nil
}

func (s *winSys) FirstProcess(snap Handle) (uint32, error) {
	s.entry = windows.ProcessEntry32{Size: uint32(unsafe.Sizeof(s.entry))}
	if err := windows.Process32First(windows.Handle(snap), &s.entry); err != nil {
		return 0, err
	}
	return s.entry.ProcessID, nil
}

func (s *winSys) NextProcess(snap Handle) (uint32, bool) {
	if err := windows.Process32Next(windows.Handle(snap), &s.entry); err != nil {
		// ERROR_NO_MORE_FILES on exhaustion; anything else also ends the walk.
		return 0, false
	}
	return s.entry.ProcessID, true
}

func (s *winSys) OpenProcess(pid uint32) (Handle, error) {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_INFORMATION, false, pid)
	if err != nil {
		return 0, err
	}
	return Handle(h), nil
}

func (s *winSys) OpenProcessToken(process Handle) (Handle, error) {
	var token windows.Token
	if err := windows.OpenProcessToken(windows.Handle(process), windows.TOKEN_QUERY, &token); err != nil {
		return 0, err
	}
	return Handle(token), nil
}

func (s *winSys) IsAppContainer(token Handle) (bool, error) {
	var isAC uint32
	var retLen uint32
	err := windows.GetTokenInformation(windows.Token(token), windows.TokenIsAppContainer,
		(*byte)(unsafe.Pointer(&isAC)), uint32(unsafe.Sizeof(isAC)), &retLen)
	if err != nil {
		return false, err
	}
	return isAC != 0, nil
}

func (s *winSys) SessionID(token Handle) (uint32, error) {
	var session uint32
	var retLen uint32
	err := windows.GetTokenInformation(windows.Token(token), windows.TokenSessionId,
		(*byte)(unsafe.Pointer(&session)), uint32(unsafe.Sizeof(session)), &retLen)
	if err != nil {
		return 0, err
	}
	return session, nil
}

func (s *winSys) ObjectPath(token Handle, buf []uint16) (int, error) {
	// GetAppContainerNamedObjectPath(Token, AppContainerSid, ObjectPathLength,
	// ObjectPath, ReturnLength). Fails with ERROR_INSUFFICIENT_BUFFER when the
	// path would not fit; that is surfaced to the caller, which skips the entry.
	var retLen uint32
	r1, _, err := procGetAppContainerNamedObjectPath.Call(
		uintptr(token),
		0,
		uintptr(len(buf)),
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(unsafe.Pointer(&retLen)),
	)
	if r1 == 0 {
		return 0, err
	}

	// ReturnLength counts code units including the terminator, but scan for
	// the NUL rather than trust it.
	n := int(retLen)
	if n > len(buf) {
		n = len(buf)
	}
	for i := range n {
		if buf[i] == 0 {
			return i, nil
		}
	}
	return n, nil
}

func (s *winSys) CloseHandle(h Handle) {
	_ = windows.CloseHandle(windows.Handle(h))
}
