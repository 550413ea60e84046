//go:build !linux

package sysdig

import "github.com/fanyeren/sysdig/capture"

// OpenLive always fails on non-Linux builds: there is no eBPF ring
// buffer driver to attach (spec §4.1 "Driver unavailable -> SourceOpen").
func (i *Inspector) OpenLive(rb any, decode capture.Decoder, timeoutMs int) error {
	i.mu.Lock()
	if i.state != StateUninit {
		i.mu.Unlock()
		return errLocked()
	}
	i.mu.Unlock()

	src, err := capture.OpenLive(rb, decode, timeoutMs)
	if err != nil {
		i.mu.Lock()
		i.lastErr = err
		i.mu.Unlock()
		return err
	}
	return i.finishOpenLive(src)
}
