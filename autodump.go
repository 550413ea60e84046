package sysdig

import (
	"github.com/fanyeren/sysdig/capture"
	"github.com/fanyeren/sysdig/dump"
	"github.com/fanyeren/sysdig/errs"
	"github.com/fanyeren/sysdig/hostinfo"
)

// currentHeaderLocked assembles the trace-file header block from the
// registries this inspector has already populated, for a dumper whose
// output must independently round-trip through OpenFile (spec §8
// round-trip law). Callers must hold i.mu.
func (i *Inspector) currentHeaderLocked() capture.FileHeader {
	ifaces := append(i.hostinfo.GetIPv4List(), i.hostinfo.GetIPv6List()...)

	users := i.hostinfo.Users()
	userRows := make([]hostinfo.User, 0, len(users))
	for _, u := range users {
		userRows = append(userRows, u)
	}

	groups := i.hostinfo.Groups()
	groupRows := make([]hostinfo.Group, 0, len(groups))
	for _, g := range groups {
		groupRows = append(groupRows, g)
	}

	return capture.FileHeader{
		MachineInfo: i.machineInfo,
		Interfaces:  ifaces,
		Users:       userRows,
		Groups:      groupRows,
	}
}

// SetupCycleWriter installs a rotating dumper (spec §6
// "setup_cycle_writer(base_name, rollover_mb, duration_s, file_limit,
// cycle, compress)", spec §4.8). Replaces any previously active dumper.
func (i *Inspector) SetupCycleWriter(base string, rolloverMB, durationS, fileLimit int, cycle, compress bool) error {
	i.mu.Lock()
	if i.dumper != nil {
		i.mu.Unlock()
		if err := i.dumper.Close(); err != nil {
			return err
		}
		i.mu.Lock()
	}
	header := i.currentHeaderLocked()
	cw := dump.Configure(base, rolloverMB, durationS, fileLimit, cycle, compress, header)
	i.mu.Unlock()

	if err := cw.Open(); err != nil {
		return err
	}

	i.mu.Lock()
	i.dumper = cw
	i.mu.Unlock()
	return nil
}

// AutodumpStart installs a single-file, non-rotating dumper (spec §6
// "autodump_start(path[, compress])"). It reuses the same cycle writer
// the rotating dumpers use with rollover/duration/file_limit disabled
// and cycle off, so the written file is a capture.FileSource-readable
// trace file like any other dump output; the sequence suffix the cycle
// writer appends to every filename (e.g. "path0") is the one visible
// difference from a bare single-shot writer.
func (i *Inspector) AutodumpStart(path string, compress bool) error {
	return i.SetupCycleWriter(path, 0, 0, 0, false, compress)
}

// AutodumpNextFile forces an immediate rotation independent of the
// configured rollover policy (spec §6 "autodump_next_file()", spec §9
// original_source supplement: sinsp.h's autodump_next_file starts a
// fresh file per logical unit of work regardless of rollover_mb/
// duration_s).
func (i *Inspector) AutodumpNextFile() error {
	i.mu.Lock()
	cw := i.dumper
	i.mu.Unlock()
	if cw == nil {
		return errs.Wrap(errs.DumpIO, "autodump_next_file called with no active dumper")
	}
	return cw.RollNow()
}

// AutodumpStop closes and detaches the active dumper (spec §6
// "autodump_stop()"). A no-op if no dumper is active.
func (i *Inspector) AutodumpStop() error {
	i.mu.Lock()
	cw := i.dumper
	i.dumper = nil
	i.mu.Unlock()
	if cw == nil {
		return nil
	}
	return cw.Close()
}
