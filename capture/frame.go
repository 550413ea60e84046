package capture

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/fanyeren/sysdig/errs"
	"github.com/fanyeren/sysdig/types"
)

// Magic + version identify a trace file (spec §6 "Trace file format").
const (
	Magic        uint32 = 0x53494e53 // "SINS"
	FormatVersion uint32 = 1

	// MetaEventType is the reserved type code fatfile mode uses for
	// synthetic state-preservation frames appended to a dump (spec §6
	// "Fatfile mode appends synthetic state-preservation frames with a
	// reserved type code").
	MetaEventType types.EventType = 0xfff0
)

// frameHeader mirrors spec §6's "fixed header (length, cpu, type,
// nparams, timestamp ns)" — encode/decode grounded on the teacher's
// main.go binary.Read(bytes.NewReader(record.RawSample), ...) idiom,
// generalized from a single fixed struct to a length-prefixed frame so
// the parameter vector can vary in size per event.
type frameHeader struct {
	Length    uint32
	CPU       uint16
	Type      uint16
	Dir       uint8
	NParams   uint8
	EventNum  uint64
	Ts        int64
	Tid       uint32
	RetVal    int64
}

const frameHeaderSize = 4 + 2 + 2 + 1 + 1 + 8 + 8 + 4 + 8

// paramHeader precedes each parameter's payload.
type paramHeader struct {
	Kind uint8
	NameLen uint8
	ValLen  uint32
}

// WriteFrame encodes one raw event in the wire format shared by live
// frames, trace files, and cycle-writer dumps.
func WriteFrame(w io.Writer, ev types.RawEvent) error {
	buf := &paramBuffer{}
	for _, p := range ev.Params {
		buf.put(p)
	}

	hdr := frameHeader{
		CPU:      ev.CPU,
		Type:     uint16(ev.Type),
		NParams:  uint8(len(ev.Params)),
		EventNum: ev.EventNum,
		Ts:       ev.Ts,
		Tid:      ev.Tid,
		RetVal:   ev.RetVal,
	}
	if ev.Dir == types.DirExit {
		hdr.Dir = 1
	}
	hdr.Length = uint32(frameHeaderSize + buf.Len())

	if err := binary.Write(w, binary.LittleEndian, hdr.Length); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, hdr.CPU); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, hdr.Type); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, hdr.Dir); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, hdr.NParams); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, hdr.EventNum); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, hdr.Ts); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, hdr.Tid); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, hdr.RetVal); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// ReadFrame decodes one raw event from r. io.EOF propagates unwrapped
// so callers can distinguish end-of-stream from a decode error (spec
// §4.1 "SourceDecode").
func ReadFrame(r *bufio.Reader) (types.RawEvent, error) {
	var ev types.RawEvent
	var hdr frameHeader

	if err := binary.Read(r, binary.LittleEndian, &hdr.Length); err != nil {
		return ev, err // may be io.EOF
	}
	if hdr.Length < frameHeaderSize {
		return ev, errs.Wrap(errs.SourceDecode, "frame length %d shorter than header", hdr.Length)
	}
	for _, f := range []any{&hdr.CPU, &hdr.Type, &hdr.Dir, &hdr.NParams, &hdr.EventNum, &hdr.Ts, &hdr.Tid, &hdr.RetVal} {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return ev, errs.Wrap(errs.SourceDecode, "truncated frame header: %v", err)
		}
	}

	ev.EventNum = hdr.EventNum
	ev.Ts = hdr.Ts
	ev.CPU = hdr.CPU
	ev.Type = types.EventType(hdr.Type)
	ev.Tid = hdr.Tid
	ev.RetVal = hdr.RetVal
	if hdr.Dir == 1 {
		ev.Dir = types.DirExit
	}

	payload := int(hdr.Length) - frameHeaderSize
	params, err := readParams(r, int(hdr.NParams), payload)
	if err != nil {
		return ev, errs.Wrap(errs.SourceDecode, "truncated frame params: %v", err)
	}
	ev.Params = params
	return ev, nil
}

// paramBuffer serializes Params into the frame payload.
type paramBuffer struct {
	b []byte
}

func (pb *paramBuffer) Len() int        { return len(pb.b) }
func (pb *paramBuffer) Bytes() []byte   { return pb.b }

func (pb *paramBuffer) put(p types.Param) {
	var val []byte
	switch p.Kind {
	case types.ParamUint64, types.ParamFD, types.ParamPID:
		val = make([]byte, 8)
		binary.LittleEndian.PutUint64(val, p.U64)
	case types.ParamInt64:
		val = make([]byte, 8)
		binary.LittleEndian.PutUint64(val, uint64(p.I64))
	case types.ParamPath, types.ParamString:
		val = []byte(p.Str)
	case types.ParamBuffer, types.ParamBytes:
		val = p.Raw
	case types.ParamTuple:
		val = encodeTuple(p.Tuple)
	}
	ph := paramHeader{Kind: uint8(p.Kind), NameLen: uint8(len(p.Name)), ValLen: uint32(len(val))}
	pb.b = append(pb.b, ph.Kind, ph.NameLen)
	vl := make([]byte, 4)
	binary.LittleEndian.PutUint32(vl, ph.ValLen)
	pb.b = append(pb.b, vl...)
	pb.b = append(pb.b, []byte(p.Name)...)
	pb.b = append(pb.b, val...)
}

func readParams(r io.Reader, n int, budget int) ([]types.Param, error) {
	params := make([]types.Param, 0, n)
	remaining := budget
	for i := 0; i < n; i++ {
		if remaining < 6 {
			return nil, fmt.Errorf("param %d: short buffer", i)
		}
		hdr := make([]byte, 6)
		if _, err := io.ReadFull(r, hdr); err != nil {
			return nil, err
		}
		remaining -= 6
		kind := types.ParamKind(hdr[0])
		nameLen := int(hdr[1])
		valLen := int(binary.LittleEndian.Uint32(hdr[2:6]))

		name := make([]byte, nameLen)
		if _, err := io.ReadFull(r, name); err != nil {
			return nil, err
		}
		remaining -= nameLen

		val := make([]byte, valLen)
		if _, err := io.ReadFull(r, val); err != nil {
			return nil, err
		}
		remaining -= valLen

		p := types.Param{Name: string(name), Kind: kind}
		switch kind {
		case types.ParamUint64, types.ParamFD, types.ParamPID:
			if len(val) >= 8 {
				p.U64 = binary.LittleEndian.Uint64(val)
			}
		case types.ParamInt64:
			if len(val) >= 8 {
				p.I64 = int64(binary.LittleEndian.Uint64(val))
			}
		case types.ParamPath, types.ParamString:
			p.Str = string(val)
		case types.ParamBuffer, types.ParamBytes:
			p.Raw = val
		case types.ParamTuple:
			p.Tuple = decodeTuple(val)
		}
		params = append(params, p)
	}
	return params, nil
}

// Tuples are wire-encoded as 16-byte addresses (v4-in-v6 when the
// original was an IPv4 address) so the same layout carries both
// address families without a variant tag.
const tupleWireSize = 16 + 2 + 16 + 2 + 1

func encodeTuple(t types.Tuple) []byte {
	buf := make([]byte, tupleWireSize)
	putIP(buf[0:16], t.SrcIP)
	binary.LittleEndian.PutUint16(buf[16:18], t.SrcPort)
	putIP(buf[18:34], t.DstIP)
	binary.LittleEndian.PutUint16(buf[34:36], t.DstPort)
	buf[36] = t.Proto
	return buf
}

func putIP(dst []byte, ip net.IP) {
	if v4 := ip.To4(); v4 != nil {
		dst[10], dst[11] = 0xff, 0xff
		copy(dst[12:16], v4)
		return
	}
	if v6 := ip.To16(); v6 != nil {
		copy(dst, v6)
	}
}

func decodeTuple(b []byte) types.Tuple {
	if len(b) < tupleWireSize {
		return types.Tuple{}
	}
	return types.Tuple{
		SrcIP:   decodeIP(b[0:16]),
		SrcPort: binary.LittleEndian.Uint16(b[16:18]),
		DstIP:   decodeIP(b[18:34]),
		DstPort: binary.LittleEndian.Uint16(b[34:36]),
		Proto:   b[36],
	}
}

func decodeIP(b []byte) net.IP {
	ip := net.IP(append([]byte{}, b...))
	if v4 := ip.To4(); v4 != nil {
		return v4
	}
	return ip
}
