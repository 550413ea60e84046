package parser

import (
	"github.com/fanyeren/sysdig/fdtable"
	"github.com/fanyeren/sysdig/threadtable"
	"github.com/fanyeren/sysdig/types"
)

// CloneFiles is the CLONE_FILES bit of the clone enter-phase "flags"
// parameter (sinsp.h's clone handling distinguishes this to decide
// whether the child shares the FD table namespace or gets its own
// copy, per spec.md §4.6 "inherits parent attributes unless flags
// indicate otherwise").
const CloneFiles uint64 = 0x400

// registerProcessHandlers wires clone/execve/exit/exit_group. Grounded
// on the teacher's platform/process.go EnrichProcessEvent (exec-time
// exe/cmdline/cwd population) and process/tracking.go
// CollectProcMetadata, generalized from "format this event for
// display" into "mutate the thread table to match it" (spec §4.6 "Key
// transitions").
func registerProcessHandlers(e *Engine) {
	e.register(types.EvtClone, &handler{Enter: enterClone, Exit: exitClone})
	e.register(types.EvtExecve, &handler{Enter: enterExecve, Exit: exitExecve})
	e.register(types.EvtExit, &handler{Exit: exitThread})
	e.register(types.EvtExitGroup, &handler{Exit: exitThread})
}

func enterClone(e *Engine, th *threadtable.Thread, raw types.RawEvent) {
	th.StashEnterArgs(uint16(types.EvtClone), raw)
}

// exitClone implements spec §4.6 "clone": the parent-side exit inserts
// a child record that inherits the parent's attributes. The kernel
// reports clone twice: once in the calling (parent) thread's context
// with RetVal set to the new tid, and once in the new thread's own
// context with RetVal == 0. Which arrives first is not guaranteed. When
// the child's own exit arrives first, the child is kept as the
// Incomplete placeholder Engine.resolveThread created and is backfilled
// once the parent-side exit arrives; no parent record is synthesized.
func exitClone(e *Engine, th *threadtable.Thread, raw types.RawEvent) *fdtable.Descriptor {
	enter, _ := th.TakeEnterArgs(uint16(types.EvtClone))
	if raw.RetVal < 0 {
		return nil // clone failed, no new thread to track
	}

	if raw.RetVal > 0 {
		// Parent-side observation: th is the caller, RetVal is the
		// child's new tid.
		childTid := uint32(raw.RetVal)
		child := e.Threads.Find(childTid, true)
		if child == nil {
			child = &threadtable.Thread{
				Tid:          childTid,
				Pid:          childTid,
				ParentID:     th.Pid,
				ExeName:      th.ExeName,
				CmdLine:      append([]string{}, th.CmdLine...),
				Cwd:          th.Cwd,
				UID:          th.UID,
				GID:          th.GID,
				ContainerID:  th.ContainerID,
				CreatedAt:    raw.Ts,
				LastAccessed: raw.Ts,
			}
			if flags, ok := credArg(raw, enter, "flags"); ok && flags&CloneFiles != 0 {
				child.FDs = th.FDs
			} else if th.FDs != nil {
				child.FDs = th.FDs.Clone()
			}
			e.Threads.Add(child)
			return nil
		}
		// The child's own clone-exit was observed first and synthesized
		// an incomplete placeholder; backfill it now that the parent is
		// known.
		child.ParentID = th.Pid
		if child.Incomplete {
			child.ExeName = th.ExeName
			child.CmdLine = append([]string{}, th.CmdLine...)
			child.Cwd = th.Cwd
			child.UID = th.UID
			child.GID = th.GID
			child.ContainerID = th.ContainerID
			child.Incomplete = false
		}
		return nil
	}

	// Child-side observation (RetVal == 0): th is the new thread,
	// already resolved/created by Engine.resolveThread. If the
	// parent-side event hasn't arrived yet, th stays Incomplete until
	// it does.
	return nil
}

func enterExecve(e *Engine, th *threadtable.Thread, raw types.RawEvent) {
	th.StashEnterArgs(uint16(types.EvtExecve), raw)
}

// exitExecve implements spec §4.6 "execve (replace exe/args/cwd/env,
// close cloexec FDs)". Cloexec bookkeeping is not modeled on the
// Descriptor (spec's FD descriptor carries no flags field), so this
// only replaces the image identity; a decoder wanting cloexec
// semantics can subscribe to CategoryOpen and track flags itself.
func exitExecve(e *Engine, th *threadtable.Thread, raw types.RawEvent) *fdtable.Descriptor {
	th.TakeEnterArgs(uint16(types.EvtExecve))
	if raw.RetVal < 0 {
		return nil
	}
	if p, ok := types.ParamByName(raw.Params, "path"); ok {
		th.ExeName = p.Str
	}
	if p, ok := types.ParamByName(raw.Params, "args"); ok {
		th.CmdLine = splitArgs(p.Str)
	}
	if p, ok := types.ParamByName(raw.Params, "cwd"); ok {
		th.Cwd = p.Str
	}
	th.Incomplete = false
	return nil
}

func splitArgs(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

// exitThread implements spec §4.6 "exit/exit_group": the record is
// marked PendingExit rather than removed immediately, so the event
// carrying the exit observation keeps a valid thread reference; actual
// removal happens at the start of the next Inspector.Next call (spec
// §4.9 step 2).
func exitThread(e *Engine, th *threadtable.Thread, raw types.RawEvent) *fdtable.Descriptor {
	th.PendingExit = true
	return nil
}
