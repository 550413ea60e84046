//go:build linux

package sysdig

import "github.com/fanyeren/sysdig/capture"

// OpenLive starts a live, ring-buffer-backed capture (spec §4.9
// "open_live -> ImportingLive -> Running"). rb is whatever loaded the
// eBPF program; decode turns one raw ring-buffer record into a
// types.RawEvent (spec §1: the kernel driver itself is out of scope).
func (i *Inspector) OpenLive(rb capture.RingBufferReader, decode capture.Decoder, timeoutMs int) error {
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
