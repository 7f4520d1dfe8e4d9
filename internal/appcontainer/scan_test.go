package appcontainer

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf16"
)

// fakeProc describes one process visible through the fake snapshot.
type fakeProc struct {
	pid         uint32
	openErr     bool // OpenProcess denied
	tokenErr    bool // OpenProcessToken denied
	classifyErr bool // IsAppContainer query fails
	isAC        bool
	sessionErr  bool
	session     uint32
	pathErr     bool
	path        string
}

type handleRef struct {
	kind string // snapshot | process | token
	idx  int
}

// fakeSys implements Sys over a fixed process list and accounts every open
// and close so tests can assert that nothing leaks.
type fakeSys struct {
	procs []fakeProc

	snapshotErr bool
	firstErr    bool
	breakAfter  int // entries yielded before NextProcess reports exhaustion; 0 = never

	nextHandle Handle
	live       map[Handle]handleRef
	opens      int
	closes     int
	cursor     int
}

func newFakeSys(procs ...fakeProc) *fakeSys {
	return &fakeSys{procs: procs, live: map[Handle]handleRef{}}
}

func (f *fakeSys) alloc(r handleRef) Handle {
	f.nextHandle++
	f.opens++
	f.live[f.nextHandle] = r
	return f.nextHandle
}

func (f *fakeSys) ref(h Handle, kind string) handleRef {
	r, ok := f.live[h]
	if !ok {
		panic(fmt.Sprintf("use of dead handle %d", h))
	}
	if r.kind != kind {
		panic(fmt.Sprintf("handle %d is a %s, want %s", h, r.kind, kind))
	}
	return r
}

func (f *fakeSys) procByPID(pid uint32) (int, fakeProc) {
	for i, p := range f.procs {
		if p.pid == pid {
			return i, p
		}
	}
	panic(fmt.Sprintf("unknown pid %d", pid))
}

func (f *fakeSys) CreateSnapshot() (Handle, error) {
	if f.snapshotErr {
		return 0, errors.New("Access is denied.")
	}
	return f.alloc(handleRef{kind: "snapshot"}), nil
}

func (f *fakeSys) FirstProcess(snap Handle) (uint32, error) {
	f.ref(snap, "snapshot")
	if f.firstErr || len(f.procs) == 0 {
		return 0, errors.New("The parameter is incorrect.")
	}
	f.cursor = 0
	return f.procs[0].pid, nil
}

func (f *fakeSys) NextProcess(snap Handle) (uint32, bool) {
	f.ref(snap, "snapshot")
	f.cursor++
	if f.breakAfter > 0 && f.cursor >= f.breakAfter {
		return 0, false
	}
	if f.cursor >= len(f.procs) {
		return 0, false
	}
	return f.procs[f.cursor].pid, true
}

func (f *fakeSys) OpenProcess(pid uint32) (Handle, error) {
	idx, p := f.procByPID(pid)
	if p.openErr {
		return 0, errors.New("Access is denied.")
	}
	return f.alloc(handleRef{kind: "process", idx: idx}), nil
}

func (f *fakeSys) OpenProcessToken(process Handle) (Handle, error) {
	r := f.ref(process, "process")
	if f.procs[r.idx].tokenErr {
		return 0, errors.New("Access is denied.")
	}
	return f.alloc(handleRef{kind: "token", idx: r.idx}), nil
}

func (f *fakeSys) IsAppContainer(token Handle) (bool, error) {
	r := f.ref(token, "token")
	p := f.procs[r.idx]
	if p.classifyErr {
		return false, errors.New("The handle is invalid.")
	}
	return p.isAC, nil
}

func (f *fakeSys) SessionID(token Handle) (uint32, error) {
	r := f.ref(token, "token")
	p := f.procs[r.idx]
	if p.sessionErr {
		return 0, errors.New("The handle is invalid.")
	}
	return p.session, nil
}

func (f *fakeSys) ObjectPath(token Handle, buf []uint16) (int, error) {
	r := f.ref(token, "token")
	p := f.procs[r.idx]
	if p.pathErr {
		return 0, errors.New("An internal error occurred.")
	}
	u := utf16.Encode([]rune(p.path))
	if len(u)+1 > len(buf) {
		return 0, errors.New("The data area passed to a system call is too small.")
	}
	copy(buf, u)
	buf[len(u)] = 0
	return len(u), nil
}

func (f *fakeSys) CloseHandle(h Handle) {
	if _, ok := f.live[h]; !ok {
		panic(fmt.Sprintf("double close of handle %d", h))
	}
	delete(f.live, h)
	f.closes++
}

func (f *fakeSys) assertNoLeaks(t *testing.T) {
	t.Helper()
	for h, r := range f.live {
		t.Errorf("leaked %s handle %d", r.kind, h)
	}
	if f.opens != f.closes {
		t.Errorf("opens=%d closes=%d", f.opens, f.closes)
	}
}

func container(pid, session uint32, path string) fakeProc {
	return fakeProc{pid: pid, isAC: true, session: session, path: path}
}

func plain(pid uint32) fakeProc {
	return fakeProc{pid: pid, session: 1}
}

func TestEnumerateNoAppContainers(t *testing.T) {
	sys := newFakeSys(plain(4))
	got, err := Enumerate(sys)
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if got == nil {
		t.Fatal("expected empty slice, got nil")
	}
	if len(got) != 0 {
		t.Fatalf("expected no prefixes, got %v", got)
	}
	sys.assertNoLeaks(t)
}

func TestEnumerateSingleAppContainer(t *testing.T) {
	sys := newFakeSys(
		plain(4),
		container(100, 1, `AC\{guid-A}`),
	)
	got, err := Enumerate(sys)
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	want := []string{`\\.\pipe\Sessions\1\AC\{guid-A}`}
	if len(got) != 1 || got[0] != want[0] {
		t.Fatalf("got %v, want %v", got, want)
	}
	sys.assertNoLeaks(t)
}

func TestEnumerateMixedProcesses(t *testing.T) {
	sys := newFakeSys(
		plain(4),
		container(100, 2, "P2"),
		container(200, 2, "P3"),
	)
	got, err := Enumerate(sys)
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	assertMultiset(t, got, []string{
		`\\.\pipe\Sessions\2\P2`,
		`\\.\pipe\Sessions\2\P3`,
	})
	sys.assertNoLeaks(t)
}

func TestEnumerateKeepsDuplicates(t *testing.T) {
	sys := newFakeSys(
		container(100, 3, "Shared"),
		container(200, 3, "Shared"),
	)
	got, err := Enumerate(sys)
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(got) != 2 || got[0] != got[1] {
		t.Fatalf("expected two identical entries, got %v", got)
	}
	sys.assertNoLeaks(t)
}

func TestEnumerateSkipsDeniedProcesses(t *testing.T) {
	procs := []fakeProc{
		container(100, 1, "A"),
		container(200, 1, "B"),
		container(300, 1, "C"),
		container(400, 1, "D"),
	}
	// Access denied on every other process.
	for i := range procs {
		if i%2 == 1 {
			procs[i].openErr = true
		}
	}
	sys := newFakeSys(procs...)
	got, err := Enumerate(sys)
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	assertMultiset(t, got, []string{
		`\\.\pipe\Sessions\1\A`,
		`\\.\pipe\Sessions\1\C`,
	})
	sys.assertNoLeaks(t)
}

func TestEnumerateSnapshotCreateFailed(t *testing.T) {
	sys := newFakeSys(container(100, 1, "A"))
	sys.snapshotErr = true
	_, err := Enumerate(sys)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "CreateToolhelp32Snapshot") {
		t.Errorf("error should name the failing call: %v", err)
	}
	if !strings.Contains(err.Error(), "Access is denied.") {
		t.Errorf("error should carry the OS message: %v", err)
	}
	sys.assertNoLeaks(t)
}

func TestEnumerateFirstReadFailed(t *testing.T) {
	sys := newFakeSys(container(100, 1, "A"))
	sys.firstErr = true
	_, err := Enumerate(sys)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "Process32First") {
		t.Errorf("error should name the failing call: %v", err)
	}
	// The snapshot handle must be released on the error path too.
	sys.assertNoLeaks(t)
}

func TestEnumerateMidWalkFailureEndsIteration(t *testing.T) {
	sys := newFakeSys(
		container(100, 1, "A"),
		container(200, 1, "B"),
		container(300, 1, "C"),
	)
	sys.breakAfter = 2
	got, err := Enumerate(sys)
	if err != nil {
		t.Fatalf("mid-walk failure must not surface: %v", err)
	}
	assertMultiset(t, got, []string{
		`\\.\pipe\Sessions\1\A`,
		`\\.\pipe\Sessions\1\B`,
	})
	sys.assertNoLeaks(t)
}

func TestEnumerateSkipsIntrospectionFailures(t *testing.T) {
	sys := newFakeSys(
		fakeProc{pid: 100, tokenErr: true},
		fakeProc{pid: 200, classifyErr: true},
		fakeProc{pid: 300, isAC: true, sessionErr: true, path: "X"},
		fakeProc{pid: 400, isAC: true, session: 1, pathErr: true},
		container(500, 1, "OK"),
	)
	got, err := Enumerate(sys)
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	assertMultiset(t, got, []string{`\\.\pipe\Sessions\1\OK`})
	sys.assertNoLeaks(t)
}

func TestEnumerateObjectPathAtCapacity(t *testing.T) {
	// 1023 code units plus terminator exactly fill the buffer.
	atLimit := strings.Repeat("x", MaxObjectPath-1)
	sys := newFakeSys(container(100, 1, atLimit))
	got, err := Enumerate(sys)
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(got) != 1 || !strings.HasSuffix(got[0], atLimit) {
		t.Fatalf("path at capacity should be composed, got %d results", len(got))
	}
	sys.assertNoLeaks(t)
}

func TestEnumerateObjectPathOverCapacity(t *testing.T) {
	sys := newFakeSys(
		container(100, 1, strings.Repeat("x", MaxObjectPath)),
		container(200, 1, "Fits"),
	)
	got, err := Enumerate(sys)
	if err != nil {
		t.Fatalf("oversized path must not fail the scan: %v", err)
	}
	assertMultiset(t, got, []string{`\\.\pipe\Sessions\1\Fits`})
	sys.assertNoLeaks(t)
}

func TestEnumerateEmptyObjectPathSkipped(t *testing.T) {
	sys := newFakeSys(container(100, 1, ""))
	got, err := Enumerate(sys)
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("empty object path must not be emitted, got %v", got)
	}
	sys.assertNoLeaks(t)
}

func TestEnumeratePrefixShape(t *testing.T) {
	sys := newFakeSys(
		container(100, 0, "Zero"),
		container(200, 4294967295, "MaxSession"),
		container(300, 7, `AC\Nested\Deep`),
	)
	got, err := Enumerate(sys)
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	for _, s := range got {
		if !strings.HasPrefix(s, PipePrefixRoot) {
			t.Errorf("missing root prefix: %q", s)
		}
		p, err := ParsePrefix(s)
		if err != nil {
			t.Errorf("ParsePrefix(%q): %v", s, err)
			continue
		}
		if p.ObjectPath == "" {
			t.Errorf("empty object path in %q", s)
		}
	}
	sys.assertNoLeaks(t)
}

func TestEnumerateIdempotent(t *testing.T) {
	procs := []fakeProc{
		plain(4),
		container(100, 2, "P2"),
		container(200, 2, "P3"),
	}
	first, err := Enumerate(newFakeSys(procs...))
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := Enumerate(newFakeSys(procs...))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	assertMultiset(t, second, first)
}

func TestEnumerateNonBMPObjectPath(t *testing.T) {
	// Surrogate pairs must survive the UTF-16 round trip.
	path := "AC\\\U0001F600pkg"
	sys := newFakeSys(container(100, 1, path))
	got, err := Enumerate(sys)
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(got) != 1 || !strings.HasSuffix(got[0], path) {
		t.Fatalf("got %v", got)
	}
	sys.assertNoLeaks(t)
}

func assertMultiset(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d entries %v, want %d %v", len(got), got, len(want), want)
	}
	counts := map[string]int{}
	for _, s := range got {
		counts[s]++
	}
	for _, s := range want {
		counts[s]--
	}
	for s, n := range counts {
		if n != 0 {
			t.Errorf("multiset mismatch at %q (delta %d): got %v want %v", s, n, got, want)
		}
	}
}
