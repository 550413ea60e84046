//go:build !linux

// Non-Linux build: no eBPF ring buffer driver is available. Grounded
// on the teacher's platform/bpf_darwin.go no-op stub, generalized from
// "silently do nothing" to "report SourceOpen" since a library caller
// asking for a live capture on an unsupported platform needs to be
// told, not silently given an empty stream (spec §4.1: "Driver
// unavailable / permission -> SourceOpen").
package capture

import (
	"github.com/fanyeren/sysdig/errs"
	"github.com/fanyeren/sysdig/types"
)

// Decoder mirrors live_linux.go's definition so OpenLive has the same
// signature on every platform.
type Decoder func(raw []byte) (types.RawEvent, error)

// OpenLive always fails on non-Linux builds.
func OpenLive(_ any, _ Decoder, _ int) (*LiveSource, error) {
	return nil, errs.Wrap(errs.SourceOpen, "no live capture driver on this platform")
}

// LiveSource is declared here too so the type exists on every
// platform; on non-Linux it is always nil and unusable.
type LiveSource struct{}

func (s *LiveSource) Next() PullResult { return PullResult{Outcome: OutcomeError} }
func (s *LiveSource) Stats() Stats     { return Stats{} }
func (s *LiveSource) Pause()           {}
func (s *LiveSource) Resume()          {}
func (s *LiveSource) Close() error     { return nil }
func (s *LiveSource) IsLive() bool     { return true }
