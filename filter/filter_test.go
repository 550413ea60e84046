package filter

import (
	"errors"
	"testing"

	"github.com/fanyeren/sysdig/errs"
	"github.com/fanyeren/sysdig/threadtable"
	"github.com/fanyeren/sysdig/types"
)

func TestCompileAndEvaluateSimple(t *testing.T) {
	pred, err := Compile(`evt.type = open`)
	if err != nil {
		t.Fatalf("unexpected compile error: %v", err)
	}
	ctx := &Context{Raw: types.RawEvent{Type: types.EvtOpen}}
	if !pred.Evaluate(ctx) {
		t.Fatal("expected evt.type = open to match an open event")
	}
	ctx.Raw.Type = types.EvtClose
	if pred.Evaluate(ctx) {
		t.Fatal("expected evt.type = open not to match a close event")
	}
}

func TestCompileAndOrNot(t *testing.T) {
	pred, err := Compile(`evt.type = open and not proc.name = "sh"`)
	if err != nil {
		t.Fatalf("unexpected compile error: %v", err)
	}
	th := &threadtable.Thread{ExeName: "bash"}
	ctx := &Context{Raw: types.RawEvent{Type: types.EvtOpen}, Thread: th}
	if !pred.Evaluate(ctx) {
		t.Fatal("expected bash to pass the filter")
	}
	th.ExeName = "sh"
	if pred.Evaluate(ctx) {
		t.Fatal("expected sh to be excluded by the filter")
	}
}

func TestCompileIn(t *testing.T) {
	pred, err := Compile(`evt.type in (open, close)`)
	if err != nil {
		t.Fatalf("unexpected compile error: %v", err)
	}
	ctx := &Context{Raw: types.RawEvent{Type: types.EvtClose}}
	if !pred.Evaluate(ctx) {
		t.Fatal("expected close to be in (open, close)")
	}
	ctx.Raw.Type = types.EvtRead
	if pred.Evaluate(ctx) {
		t.Fatal("expected read not to be in (open, close)")
	}
}

func TestWorksOnThreadTableOnly(t *testing.T) {
	pred, err := Compile(`proc.name = "bash" and user.uid = 0`)
	if err != nil {
		t.Fatalf("unexpected compile error: %v", err)
	}
	if !pred.WorksOnThreadTableOnly() {
		t.Fatal("expected a proc/user-only predicate to be thread-table-only")
	}

	pred2, err := Compile(`evt.type = open and proc.name = "bash"`)
	if err != nil {
		t.Fatalf("unexpected compile error: %v", err)
	}
	if pred2.WorksOnThreadTableOnly() {
		t.Fatal("expected an evt.type predicate not to be thread-table-only")
	}
}

func TestCompileErrorHasPosition(t *testing.T) {
	_, err := Compile(`evt.type = `)
	if err == nil {
		t.Fatal("expected a compile error for a dangling comparison")
	}
	if !errors.Is(err, errs.FilterCompile) {
		t.Fatalf("expected errors.Is(err, errs.FilterCompile), got %v", err)
	}
	var cerr *errs.CompileError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected a *errs.CompileError, got %T", err)
	}
	if cerr.Pos <= len("evt.type =") {
		t.Fatalf("expected the error position to point past '=', got %d", cerr.Pos)
	}
}

func TestContainsOperator(t *testing.T) {
	pred, err := Compile(`fd.name contains "/etc/"`)
	if err != nil {
		t.Fatalf("unexpected compile error: %v", err)
	}
	ctx := &Context{FD: nil}
	if pred.Evaluate(ctx) {
		t.Fatal("expected a nil FD to fail a fd.name comparison")
	}
}
