package parser

import (
	"testing"

	"github.com/fanyeren/sysdig/container"
	"github.com/fanyeren/sysdig/threadtable"
	"github.com/fanyeren/sysdig/types"
)

func newTestEngine() *Engine {
	threads := threadtable.New(0, 0)
	containers := container.New(0)
	return New(threads, containers, nil)
}

func u64Param(name string, v uint64) types.Param {
	return types.Param{Name: name, Kind: types.ParamUint64, U64: v}
}

func strParam(name, v string) types.Param {
	return types.Param{Name: name, Kind: types.ParamString, Str: v}
}

func TestCloneParentFirst(t *testing.T) {
	e := newTestEngine()
	parent := &threadtable.Thread{Tid: 100, Pid: 100, ExeName: "bash"}
	e.Threads.Add(parent)

	e.Dispatch(types.RawEvent{Type: types.EvtClone, Dir: types.DirEnter, Tid: 100}, 1)
	res := e.Dispatch(types.RawEvent{Type: types.EvtClone, Dir: types.DirExit, Tid: 100, RetVal: 200}, 2)
	if res.Thread.Tid != 100 {
		t.Fatalf("expected dispatch to resolve the caller thread, got tid %d", res.Thread.Tid)
	}

	child := e.Threads.Find(200, true)
	if child == nil {
		t.Fatal("expected child thread 200 to be created")
	}
	if child.ParentID != 100 || child.ExeName != "bash" {
		t.Fatalf("child did not inherit parent state: %+v", child)
	}
}

func TestCloneChildObservedFirst(t *testing.T) {
	e := newTestEngine()
	// Child-side clone exit arrives before the parent-side event.
	e.Dispatch(types.RawEvent{Type: types.EvtClone, Dir: types.DirExit, Tid: 200, RetVal: 0}, 1)

	child := e.Threads.Find(200, true)
	if child == nil || !child.Incomplete {
		t.Fatalf("expected an incomplete placeholder for tid 200, got %+v", child)
	}

	parent := &threadtable.Thread{Tid: 100, Pid: 100, ExeName: "init"}
	e.Threads.Add(parent)
	e.Dispatch(types.RawEvent{Type: types.EvtClone, Dir: types.DirExit, Tid: 100, RetVal: 200}, 2)

	child = e.Threads.Find(200, true)
	if child.Incomplete {
		t.Fatal("expected backfilled child to no longer be incomplete")
	}
	if child.ParentID != 100 || child.ExeName != "init" {
		t.Fatalf("expected backfill from parent, got %+v", child)
	}
}

func TestCloneCopiesFDTableWithoutCloneFiles(t *testing.T) {
	e := newTestEngine()
	parent := &threadtable.Thread{Tid: 100, Pid: 100, ExeName: "bash"}
	e.Threads.Add(parent)
	e.Dispatch(types.RawEvent{Type: types.EvtOpen, Dir: types.DirEnter, Tid: 100,
		Params: []types.Param{strParam("path", "/tmp/x")}}, 1)
	e.Dispatch(types.RawEvent{Type: types.EvtOpen, Dir: types.DirExit, Tid: 100, RetVal: 5}, 2)

	e.Dispatch(types.RawEvent{Type: types.EvtClone, Dir: types.DirEnter, Tid: 100,
		Params: []types.Param{u64Param("flags", 0)}}, 3)
	e.Dispatch(types.RawEvent{Type: types.EvtClone, Dir: types.DirExit, Tid: 100, RetVal: 200}, 4)

	child := e.Threads.Find(200, true)
	if child == nil {
		t.Fatal("expected child thread 200 to be created")
	}
	if child.FDs == parent.FDs {
		t.Fatal("expected child to get a copy of the FD table, not the same table")
	}
	got := child.FDs.Get(5)
	if got == nil || got.Path != "/tmp/x" {
		t.Fatalf("expected child to inherit a copy of fd 5, got %+v", got)
	}

	parent.FDs.Remove(5)
	if child.FDs.Get(5) == nil {
		t.Fatal("closing fd 5 in the parent should not affect the child's copy")
	}
}

func TestCloneSharesFDTableWithCloneFiles(t *testing.T) {
	e := newTestEngine()
	parent := &threadtable.Thread{Tid: 100, Pid: 100, ExeName: "bash"}
	e.Threads.Add(parent)
	e.Dispatch(types.RawEvent{Type: types.EvtOpen, Dir: types.DirEnter, Tid: 100,
		Params: []types.Param{strParam("path", "/tmp/x")}}, 1)
	e.Dispatch(types.RawEvent{Type: types.EvtOpen, Dir: types.DirExit, Tid: 100, RetVal: 5}, 2)

	e.Dispatch(types.RawEvent{Type: types.EvtClone, Dir: types.DirEnter, Tid: 100,
		Params: []types.Param{u64Param("flags", CloneFiles)}}, 3)
	e.Dispatch(types.RawEvent{Type: types.EvtClone, Dir: types.DirExit, Tid: 100, RetVal: 200}, 4)

	child := e.Threads.Find(200, true)
	if child == nil || child.FDs != parent.FDs {
		t.Fatalf("expected CLONE_FILES child to alias the parent's FD table, got %+v", child)
	}
}

func TestOpenAddsFD(t *testing.T) {
	e := newTestEngine()
	e.Threads.Add(&threadtable.Thread{Tid: 1, Pid: 1})

	e.Dispatch(types.RawEvent{Type: types.EvtOpenat, Dir: types.DirEnter, Tid: 1,
		Params: []types.Param{strParam("path", "/etc/hosts")}}, 1)
	res := e.Dispatch(types.RawEvent{Type: types.EvtOpenat, Dir: types.DirExit, Tid: 1, RetVal: 5}, 2)

	if res.FD == nil || res.FD.Path != "/etc/hosts" {
		t.Fatalf("expected an fd descriptor for /etc/hosts, got %+v", res.FD)
	}
	if got := res.Thread.FDs.Get(5); got == nil || got.Path != "/etc/hosts" {
		t.Fatalf("fd 5 not installed in fd table: %+v", got)
	}
}

func TestCloseRemovesFD(t *testing.T) {
	e := newTestEngine()
	th := &threadtable.Thread{Tid: 1, Pid: 1}
	e.Threads.Add(th)

	e.Dispatch(types.RawEvent{Type: types.EvtOpen, Dir: types.DirEnter, Tid: 1,
		Params: []types.Param{strParam("path", "/tmp/x")}}, 1)
	e.Dispatch(types.RawEvent{Type: types.EvtOpen, Dir: types.DirExit, Tid: 1, RetVal: 5}, 2)

	e.Dispatch(types.RawEvent{Type: types.EvtClose, Dir: types.DirEnter, Tid: 1,
		Params: []types.Param{u64Param("fd", 5)}}, 3)
	e.Dispatch(types.RawEvent{Type: types.EvtClose, Dir: types.DirExit, Tid: 1,
		Params: []types.Param{u64Param("fd", 5)}, RetVal: 0}, 4)

	if got := th.FDs.Get(5); got != nil {
		t.Fatalf("expected fd 5 to be removed after close, got %+v", got)
	}
}

func TestConnectFiresDecoders(t *testing.T) {
	e := newTestEngine()
	th := &threadtable.Thread{Tid: 1, Pid: 1}
	e.Threads.Add(th)

	e.Dispatch(types.RawEvent{Type: types.EvtSocket, Dir: types.DirEnter, Tid: 1,
		Params: []types.Param{u64Param("domain", 2)}}, 1)
	e.Dispatch(types.RawEvent{Type: types.EvtSocket, Dir: types.DirExit, Tid: 1, RetVal: 7}, 2)

	var fired int
	e.Decoders.Register(CategoryConnect, func(ev DecoderEvent) { fired++ })

	tuple := types.Tuple{SrcPort: 1111, DstPort: 80, Proto: 6}
	e.Dispatch(types.RawEvent{Type: types.EvtConnect, Dir: types.DirEnter, Tid: 1,
		Params: []types.Param{u64Param("fd", 7), {Name: "tuple", Kind: types.ParamTuple, Tuple: tuple}}}, 3)
	res := e.Dispatch(types.RawEvent{Type: types.EvtConnect, Dir: types.DirExit, Tid: 1,
		Params: []types.Param{u64Param("fd", 7)}, RetVal: 0}, 4)

	if fired != 1 {
		t.Fatalf("expected CategoryConnect to fire once, got %d", fired)
	}
	if res.FD == nil || res.FD.Tuple.DstPort != 80 {
		t.Fatalf("expected resolved fd to carry the observed tuple, got %+v", res.FD)
	}
}

func TestExitMarksPendingRemoval(t *testing.T) {
	e := newTestEngine()
	e.Threads.Add(&threadtable.Thread{Tid: 1, Pid: 1})

	e.Dispatch(types.RawEvent{Type: types.EvtExit, Dir: types.DirExit, Tid: 1}, 1)

	th := e.Threads.Find(1, true)
	if th == nil || !th.PendingExit {
		t.Fatalf("expected thread 1 to be marked PendingExit, got %+v", th)
	}
	e.Threads.ProcessDeferredRemovals()
	if e.Threads.Find(1, true) != nil {
		t.Fatal("expected thread 1 to be removed after ProcessDeferredRemovals")
	}
}
