package sysdig

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/fanyeren/sysdig/capture"
	"github.com/fanyeren/sysdig/errs"
	"github.com/fanyeren/sysdig/threadtable"
	"github.com/fanyeren/sysdig/types"
)

// fakeSource feeds a canned sequence of capture.PullResult values,
// blocking on a channel so Close() can be exercised against a Next()
// call genuinely in flight (spec §8 "live close interrupts next").
type fakeSource struct {
	mu      sync.Mutex
	queue   []capture.PullResult
	idx     int
	closed  bool
	closeCh chan struct{}
}

func newFakeSource(results ...capture.PullResult) *fakeSource {
	return &fakeSource{queue: results, closeCh: make(chan struct{})}
}

func (f *fakeSource) Next() capture.PullResult {
	f.mu.Lock()
	if f.idx < len(f.queue) {
		r := f.queue[f.idx]
		f.idx++
		f.mu.Unlock()
		return r
	}
	f.mu.Unlock()
	<-f.closeCh
	return capture.PullResult{Outcome: capture.OutcomeError, Err: errs.Wrap(errs.CaptureInterrupted, "closed")}
}

func (f *fakeSource) Stats() capture.Stats { return capture.Stats{} }
func (f *fakeSource) Pause()               {}
func (f *fakeSource) Resume()              {}
func (f *fakeSource) Close() error {
	f.mu.Lock()
	if !f.closed {
		f.closed = true
		close(f.closeCh)
	}
	f.mu.Unlock()
	return nil
}
func (f *fakeSource) IsLive() bool { return true }

func newTestInspector(src capture.Source) *Inspector {
	insp := NewInspector(nil)
	insp.state = StateRunning
	insp.live = true
	insp.parser.Live = true
	insp.src = src
	insp.threads.Slots.Freeze()
	return insp
}

func rawEvent(num uint64, typ types.EventType, dir types.Direction, tid uint32, retval int64, params ...types.Param) capture.PullResult {
	return capture.PullResult{Outcome: capture.OutcomeEvent, Event: types.RawEvent{
		EventNum: num, Ts: int64(num) * 1000, Type: typ, Dir: dir, Tid: tid, RetVal: retval, Params: params,
	}}
}

func TestNextOpenWriteClose(t *testing.T) {
	src := newFakeSource(
		rawEvent(1, types.EvtOpen, types.DirEnter, 100, 0, types.Param{Name: "path", Kind: types.ParamPath, Str: "/tmp/x"}),
		rawEvent(2, types.EvtOpen, types.DirExit, 100, 5, types.Param{Name: "path", Kind: types.ParamPath, Str: "/tmp/x"}),
		rawEvent(3, types.EvtWrite, types.DirExit, 100, 12, types.Param{Name: "fd", Kind: types.ParamFD, U64: 5}),
		rawEvent(4, types.EvtClose, types.DirEnter, 100, 0, types.Param{Name: "fd", Kind: types.ParamFD, U64: 5}),
		rawEvent(5, types.EvtClose, types.DirExit, 100, 0, types.Param{Name: "fd", Kind: types.ParamFD, U64: 5}),
	)
	insp := newTestInspector(src)

	ev, err := insp.Next()
	if err != nil || ev.Type != types.EvtOpen || ev.Dir != types.DirEnter {
		t.Fatalf("enter open: ev=%+v err=%v", ev, err)
	}

	ev, err = insp.Next()
	if err != nil {
		t.Fatalf("exit open: %v", err)
	}
	if ev.FD == nil || ev.FD.Path != "/tmp/x" {
		t.Fatalf("expected resolved FD with path, got %+v", ev.FD)
	}

	ev, err = insp.Next()
	if err != nil || ev.FD == nil || ev.FD.Path != "/tmp/x" {
		t.Fatalf("write should resolve the same fd: ev=%+v err=%v", ev, err)
	}

	if _, err = insp.Next(); err != nil { // close enter
		t.Fatalf("close enter: %v", err)
	}
	ev, err = insp.Next()
	if err != nil {
		t.Fatalf("close exit: %v", err)
	}
	if ev.FD == nil {
		t.Fatalf("close should return the descriptor being removed")
	}

	th, err := insp.GetThread(100, false, true)
	if err != nil {
		t.Fatalf("GetThread: %v", err)
	}
	if th.FDs.Get(5) != nil {
		t.Fatalf("fd 5 should be gone after close")
	}

	if insp.GetNumEvents() != 5 {
		t.Fatalf("expected 5 events counted, got %d", insp.GetNumEvents())
	}
}

func TestNextForkExecExit(t *testing.T) {
	src := newFakeSource(
		rawEvent(1, types.EvtClone, types.DirEnter, 100, 0),
		rawEvent(2, types.EvtClone, types.DirExit, 100, 200),
		rawEvent(3, types.EvtExecve, types.DirEnter, 200, 0),
		rawEvent(4, types.EvtExecve, types.DirExit, 200, 0,
			types.Param{Name: "path", Kind: types.ParamPath, Str: "/bin/ls"}),
		rawEvent(5, types.EvtExit, types.DirExit, 200, 0),
	)
	insp := newTestInspector(src)

	for i := 0; i < 2; i++ {
		if _, err := insp.Next(); err != nil {
			t.Fatalf("clone step %d: %v", i, err)
		}
	}
	child, err := insp.GetThread(200, false, true)
	if err != nil {
		t.Fatalf("child not created by clone: %v", err)
	}
	if child.ParentID != 100 {
		t.Fatalf("expected parent 100, got %d", child.ParentID)
	}

	for i := 0; i < 2; i++ {
		if _, err := insp.Next(); err != nil {
			t.Fatalf("execve step %d: %v", i, err)
		}
	}
	if child.ExeName != "/bin/ls" {
		t.Fatalf("expected execve to replace exe name, got %q", child.ExeName)
	}

	ev, err := insp.Next()
	if err != nil {
		t.Fatalf("exit: %v", err)
	}
	if !ev.Thread.PendingExit {
		t.Fatalf("exit should mark PendingExit rather than remove immediately")
	}
	if _, err := insp.GetThread(200, false, true); err != nil {
		t.Fatalf("thread should still be resolvable in the same iteration: %v", err)
	}
}

func TestNextFilterGatesDumpNotReturn(t *testing.T) {
	src := newFakeSource(
		rawEvent(1, types.EvtOpen, types.DirExit, 1, 3, types.Param{Name: "path", Kind: types.ParamPath, Str: "/a"}),
		rawEvent(2, types.EvtRead, types.DirExit, 1, 1, types.Param{Name: "fd", Kind: types.ParamFD, U64: 3}),
	)
	insp := newTestInspector(src)
	if err := insp.SetFilter("evt.type=open"); err != nil {
		t.Fatalf("SetFilter: %v", err)
	}

	ev, err := insp.Next()
	if err != nil || ev.Type != types.EvtOpen {
		t.Fatalf("open should still be returned: ev=%+v err=%v", ev, err)
	}
	ev, err = insp.Next()
	if err != nil || ev.Type != types.EvtRead {
		t.Fatalf("read should still be returned despite failing the filter: ev=%+v err=%v", ev, err)
	}
}

func TestSetFilterCompileError(t *testing.T) {
	insp := NewInspector(nil)
	err := insp.SetFilter("evt.type = ")
	if err == nil {
		t.Fatal("expected a compile error")
	}
	var cerr *errs.CompileError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *errs.CompileError, got %T: %v", err, err)
	}
	if cerr.Pos <= len("evt.type =") {
		t.Fatalf("expected the error position to point past '=', got %d", cerr.Pos)
	}
}

func TestNextTimeoutAndEOF(t *testing.T) {
	src := newFakeSource(
		capture.PullResult{Outcome: capture.OutcomeTimeout},
		capture.PullResult{Outcome: capture.OutcomeEOF},
	)
	insp := newTestInspector(src)

	if _, err := insp.Next(); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if _, err := insp.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestGetThreadQueryOSSynthesizesFromOSQuery(t *testing.T) {
	src := newFakeSource()
	insp := newTestInspector(src)
	insp.parser.OSQuery = func(tid uint32) (*threadtable.Thread, bool) {
		if tid != 999 {
			return nil, false
		}
		return &threadtable.Thread{Tid: tid, Pid: tid, ExeName: "synthesized"}, true
	}

	if _, err := insp.GetThread(999, false, true); !errors.Is(err, errs.LookupFailed) {
		t.Fatalf("expected LookupFailed without queryOS, got %v", err)
	}

	th, err := insp.GetThread(999, true, true)
	if err != nil {
		t.Fatalf("GetThread with queryOS: %v", err)
	}
	if th.ExeName != "synthesized" {
		t.Fatalf("expected thread synthesized via OSQuery, got %+v", th)
	}

	if again, err := insp.GetThread(999, false, true); err != nil || again.ExeName != "synthesized" {
		t.Fatalf("expected the synthesized thread to be cached: %+v, %v", again, err)
	}
}

func TestResolveThreadQueryOSIfNotFound(t *testing.T) {
	src := newFakeSource(
		rawEvent(1, types.EvtOpen, types.DirExit, 777, 5, types.Param{Name: "path", Kind: types.ParamPath, Str: "/tmp/y"}),
	)
	insp := newTestInspector(src)
	insp.parser.OSQuery = func(tid uint32) (*threadtable.Thread, bool) {
		return &threadtable.Thread{Tid: tid, Pid: tid, ExeName: "from-proc"}, true
	}
	insp.SetQueryOSIfNotFound(true)

	ev, err := insp.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if ev.Thread == nil || ev.Thread.ExeName != "from-proc" {
		t.Fatalf("expected the unresolved tid to be synthesized via OSQuery, got %+v", ev.Thread)
	}
}

func TestCloseInterruptsBlockedNext(t *testing.T) {
	src := newFakeSource() // queue empty: Next() blocks on closeCh
	insp := newTestInspector(src)

	done := make(chan error, 1)
	go func() {
		_, err := insp.Next()
		done <- err
	}()

	if err := insp.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, errs.CaptureInterrupted) {
			t.Fatalf("expected CaptureInterrupted, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Next() did not return after Close()")
	}
}
