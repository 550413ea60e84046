package filter

import (
	"strconv"

	"github.com/fanyeren/sysdig/fdtable"
	"github.com/fanyeren/sysdig/threadtable"
	"github.com/fanyeren/sysdig/types"
)

// Context is the minimal per-event view a predicate evaluates against
// (spec §4.7 "evaluate(event)"). Thread and FD may be nil for an
// incomplete/minimal event (spec §4.6 "Tie-breaks"); predicates tagged
// WorksOnThreadTableOnly never dereference FD or the raw event fields.
type Context struct {
	Raw    types.RawEvent
	Thread *threadtable.Thread
	FD     *fdtable.Descriptor
}

// fieldValue is the resolved shape of one field lookup: either a
// string or a signed integer, plus whether the field was present at
// all (absent fields make any comparison false, per spec's "evaluate"
// being total over incomplete events).
type fieldValue struct {
	present bool
	str     string
	num     int64
	isNum   bool
}

type fieldSpec struct {
	threadOnly bool
	get        func(ctx *Context) fieldValue
}

// fieldTable maps dotted field names to their resolver (spec §8.4
// "Fields resolve against a fixed table"). container.id, proc.*, and
// user.* resolve off the thread record alone; evt.* and fd.* need the
// raw event/FD and are therefore not thread-table-only.
var fieldTable = map[string]fieldSpec{
	"evt.type": {get: func(ctx *Context) fieldValue {
		return fieldValue{present: true, str: ctx.Raw.Type.String()}
	}},
	"evt.dir": {get: func(ctx *Context) fieldValue {
		return fieldValue{present: true, str: ctx.Raw.Dir.String()}
	}},
	"fd.type": {get: func(ctx *Context) fieldValue {
		if ctx.FD == nil {
			return fieldValue{}
		}
		return fieldValue{present: true, str: ctx.FD.Type.String()}
	}},
	"fd.name": {get: func(ctx *Context) fieldValue {
		if ctx.FD == nil {
			return fieldValue{}
		}
		return fieldValue{present: true, str: ctx.FD.Path}
	}},
	"proc.name": {threadOnly: true, get: func(ctx *Context) fieldValue {
		if ctx.Thread == nil {
			return fieldValue{}
		}
		return fieldValue{present: true, str: ctx.Thread.ExeName}
	}},
	"proc.pid": {threadOnly: true, get: func(ctx *Context) fieldValue {
		if ctx.Thread == nil {
			return fieldValue{}
		}
		return fieldValue{present: true, num: int64(ctx.Thread.Pid), isNum: true}
	}},
	"proc.cmdline": {threadOnly: true, get: func(ctx *Context) fieldValue {
		if ctx.Thread == nil {
			return fieldValue{}
		}
		s := ""
		for i, a := range ctx.Thread.CmdLine {
			if i > 0 {
				s += " "
			}
			s += a
		}
		return fieldValue{present: true, str: s}
	}},
	"user.uid": {threadOnly: true, get: func(ctx *Context) fieldValue {
		if ctx.Thread == nil {
			return fieldValue{}
		}
		return fieldValue{present: true, num: int64(ctx.Thread.UID), isNum: true}
	}},
	"container.id": {threadOnly: true, get: func(ctx *Context) fieldValue {
		if ctx.Thread == nil {
			return fieldValue{}
		}
		return fieldValue{present: true, str: ctx.Thread.ContainerID}
	}},
}

func resolveField(f *Field) (fieldSpec, bool) {
	name := ""
	for i, p := range f.Parts {
		if i > 0 {
			name += "."
		}
		name += p
	}
	spec, ok := fieldTable[name]
	return spec, ok
}

// valueString renders a Value for string-typed comparisons regardless
// of which alternative the grammar matched (bareword idents compare
// equal to the strings they spell, per spec's worked example `evt.type
// = open` with no quoting required).
func valueString(v *Value) string {
	switch {
	case v.Str != nil:
		return *v.Str
	case v.Ident != nil:
		return *v.Ident
	case v.Int != nil:
		return strconv.FormatInt(*v.Int, 10)
	}
	return ""
}

func valueInt(v *Value) (int64, bool) {
	if v.Int != nil {
		return *v.Int, true
	}
	return 0, false
}
