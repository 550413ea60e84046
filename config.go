package sysdig

import (
	"fmt"

	"github.com/fanyeren/sysdig/errs"
	"github.com/fanyeren/sysdig/filter"
	"github.com/fanyeren/sysdig/parser"
	"github.com/fanyeren/sysdig/threadtable"
	"github.com/fanyeren/sysdig/types"
)

// SetFilter compiles expr and installs it as the active predicate
// (spec §6 "set_filter(expr)"). A compile failure leaves the previous
// predicate (if any) active.
func (i *Inspector) SetFilter(expr string) error {
	pred, err := filter.Compile(expr)
	if err != nil {
		i.mu.Lock()
		i.lastErr = err
		i.mu.Unlock()
		return err
	}
	i.mu.Lock()
	i.filterPred = pred
	i.filterExpr = expr
	i.mu.Unlock()
	return nil
}

// GetFilter returns the most recently compiled filter expression, or
// "" if none is set.
func (i *Inspector) GetFilter() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.filterExpr
}

// SetSnaplen sets the maximum captured payload per data-carrying
// parameter (spec §6 "set_snaplen(bytes) (live only)"). Rejected with
// ConfigLocked once the inspector is driving a file capture (spec §8
// "set_snaplen on a file capture returns ConfigLocked").
func (i *Inspector) SetSnaplen(bytes int) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != StateUninit && !i.live {
		return errs.Wrap(errs.ConfigLocked, "set_snaplen is live-capture only")
	}
	i.snaplen = bytes
	return nil
}

// SetImportUsers toggles whether open_live bulk-imports /etc/passwd
// and /etc/group (spec §6 "set_import_users(bool) (before open)").
func (i *Inspector) SetImportUsers(enabled bool) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != StateUninit {
		return errs.Wrap(errs.ConfigLocked, "set_import_users must precede open")
	}
	i.importUsers = enabled
	return nil
}

// SetDebugMode toggles verbose diagnostics. Safe at any time.
func (i *Inspector) SetDebugMode(enabled bool) {
	i.mu.Lock()
	i.debugMode = enabled
	i.mu.Unlock()
}

// SetFatfileDumpMode toggles whether filtered-out, state-mutating
// events are still handed to an active dumper (spec §4.6 "Fatfile
// mode").
func (i *Inspector) SetFatfileDumpMode(enabled bool) {
	i.mu.Lock()
	i.fatfileMode = enabled
	i.mu.Unlock()
}

// SetMaxEvtOutputLen caps the rendered length of a single event's
// buffer-shaped parameters for display purposes.
func (i *Inspector) SetMaxEvtOutputLen(n int) {
	i.mu.Lock()
	i.maxEvtOutputLen = n
	i.mu.Unlock()
}

// SetBufferFormat selects how buffer-shaped parameters render (spec §6
// "set_buffer_format(fmt)").
func (i *Inspector) SetBufferFormat(f BufferFormat) error {
	if f > FormatHexAscii {
		return fmt.Errorf("sysdig: unknown buffer format %d", f)
	}
	i.mu.Lock()
	i.bufferFormat = f
	i.mu.Unlock()
	return nil
}

// SetMaxThreadTableSize adjusts the thread table's capacity cap (spec
// §5 expansion: sinsp.h's m_max_thread_table_size). Pre-open only.
func (i *Inspector) SetMaxThreadTableSize(n int) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != StateUninit {
		return errs.Wrap(errs.ConfigLocked, "set_max_thread_table_size must precede open")
	}
	i.threads.SetMaxSize(n)
	return nil
}

// SetThreadTimeout adjusts the thread inactivity eviction threshold
// (spec §5 expansion: sinsp.h's m_thread_timeout_ns). Pre-open only.
func (i *Inspector) SetThreadTimeout(d int64) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != StateUninit {
		return errs.Wrap(errs.ConfigLocked, "set_thread_timeout must precede open")
	}
	i.threads.SetThreadTimeout(d)
	return nil
}

// SetContainerTimeout adjusts the container inactivity eviction
// threshold. Pre-open only.
func (i *Inspector) SetContainerTimeout(d int64) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != StateUninit {
		return errs.Wrap(errs.ConfigLocked, "set_container_timeout must precede open")
	}
	i.containers.SetTimeout(d)
	return nil
}

// ReserveThreadMemory reserves bytes of per-thread private state
// (spec §6 "reserve_thread_memory(size) -> slot_id"). Forwards to the
// thread table's slot registry, which itself returns ConfigLocked once
// capture has started.
func (i *Inspector) ReserveThreadMemory(bytes int) (threadtable.SlotID, error) {
	return i.parser.ReserveThreadMemory(bytes)
}

// RequireProtodecoder records that a named protocol decoder must be
// available for this capture (spec §6 "require_protodecoder(name)").
// Pre-open only, mirroring the other extension-registration setters.
func (i *Inspector) RequireProtodecoder(name string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != StateUninit {
		return errs.Wrap(errs.ConfigLocked, "require_protodecoder must precede open")
	}
	i.requiredDecoders[name] = true
	return nil
}

// RegisterDecoder subscribes fn to cat, the category-scoped extension
// hook (spec §6 "Extension: ... decoder reset registration"; the
// category subscription half of that hook). Pre-open only, like the
// other extension-registration setters.
func (i *Inspector) RegisterDecoder(cat parser.Category, fn parser.DecoderFunc) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != StateUninit {
		return errs.Wrap(errs.ConfigLocked, "register_decoder must precede open")
	}
	i.parser.Decoders.Register(cat, fn)
	return nil
}

// RegisterDecoderReset subscribes fn to fire whenever a thread record
// is dropped (exit, collision, eviction, or inactivity sweep), letting
// a decoder clear state keyed off that thread's reserved memory slot
// before the slot is reused by an unrelated tid (spec §6 "decoder
// reset registration"). Pre-open only.
func (i *Inspector) RegisterDecoderReset(fn parser.ResetFunc) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != StateUninit {
		return errs.Wrap(errs.ConfigLocked, "register_decoder_reset must precede open")
	}
	i.parser.Decoders.RegisterReset(fn)
	return nil
}

// SetQueryOSIfNotFound toggles whether an unresolved tid on a live
// capture triggers a best-effort /proc synthesis from the parser's own
// tie-break (spec §4.6). GetThread does not consult this toggle: its
// queryOS argument alone decides whether it synthesizes. Safe at any
// time.
func (i *Inspector) SetQueryOSIfNotFound(enabled bool) {
	i.mu.Lock()
	i.parser.QueryOSIfNotFound = enabled
	i.mu.Unlock()
}

// SetLogger swaps the diagnostics sink (spec §9 "Global-mutable
// state": explicit value, not a package global).
func (i *Inspector) SetLogger(logger types.Logger) {
	if logger == nil {
		logger = types.NopLogger{}
	}
	i.mu.Lock()
	i.logger = logger
	i.parser.Logger = logger
	i.mu.Unlock()
}

// SetMinLogSeverity gates which severities reach the logger (spec §6
// "logger callback + minimum severity").
func (i *Inspector) SetMinLogSeverity(sev types.Severity) {
	i.mu.Lock()
	i.minSeverity = sev
	i.mu.Unlock()
}
