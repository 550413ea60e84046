// Package capture implements C1 (spec §4.1): a uniform pull API over a
// live eBPF driver and a recorded trace file. Grounded on the
// teacher's reader.go PerfReader/Record contract (Read() (Record,
// error), Close() error), generalized from perf-buffer-specific to
// source-agnostic: file sources never block, live sources honor a
// per-call timeout.
package capture

import (
	"time"

	"github.com/fanyeren/sysdig/types"
)

// Outcome tags what Next produced, mirroring spec §4.1's
// {Event | Timeout | Eof | Error} union.
type Outcome uint8

const (
	OutcomeEvent Outcome = iota
	OutcomeTimeout
	OutcomeEOF
	OutcomeError
)

// PullResult is the result of one Source.Next call.
type PullResult struct {
	Outcome Outcome
	Event   types.RawEvent
	Err     error
}

// Stats reports capture progress (spec §4.1 "stats()").
type Stats struct {
	BytesRead      uint64
	EventsCaptured uint64
	EventsDropped  uint64
	// ProgressPct is 0-100; live sources always report 0, file sources
	// report bytes_read/file_size*100.
	ProgressPct float64
}

// Source is the uniform pull API (spec §4.1).
type Source interface {
	// Next returns the next event, blocking up to the source's
	// configured timeout for live sources; file sources never block.
	Next() PullResult
	Stats() Stats
	// Pause/Resume are no-ops on file sources (spec §4.1).
	Pause()
	Resume()
	Close() error
	// IsLive distinguishes a live driver source from a file source,
	// surfaced publicly via Inspector.IsLive.
	IsLive() bool
}

// defaultTimeout is used when OpenLive is called with timeoutMs <= 0
// (spec §6 "open_live(timeout_ms=default)").
const defaultTimeout = 1000 * time.Millisecond
