package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
)

// Tagstruct type markers. Every value on the wire is prefixed with one of
// these bytes, which lets the reader verify it is decoding what it expects.
const (
	tagString     = 't'
	tagStringNull = 'N'
	tagU32        = 'L'
	tagU8         = 'B'
	tagU64        = 'R'
	tagUsec       = 'U'
	tagBoolTrue   = '1'
	tagBoolFalse  = '0'
	tagArbitrary  = 'x'
	tagSampleSpec = 'a'
	tagChannelMap = 'm'
	tagCvolume    = 'v'
	tagVolume     = 'V'
	tagProplist   = 'P'
)

// SampleSpec describes a device's sample format. The client never interprets
// it, but it sits in the middle of every info reply and has to be decoded.
type SampleSpec struct {
	Format   byte
	Channels byte
	Rate     uint32
}

// tagWriter serializes a command payload as a tagstruct.
type tagWriter struct {
	buf bytes.Buffer
}

func (w *tagWriter) bytes() []byte { return w.buf.Bytes() }

func (w *tagWriter) putU32(v uint32) {
	var b [5]byte
	b[0] = tagU32
	binary.BigEndian.PutUint32(b[1:], v)
	w.buf.Write(b[:])
}

func (w *tagWriter) putString(s string) {
	w.buf.WriteByte(tagString)
	w.buf.WriteString(s)
	w.buf.WriteByte(0)
}

func (w *tagWriter) putStringNull() {
	w.buf.WriteByte(tagStringNull)
}

func (w *tagWriter) putBool(b bool) {
	if b {
		w.buf.WriteByte(tagBoolTrue)
	} else {
		w.buf.WriteByte(tagBoolFalse)
	}
}

func (w *tagWriter) putArbitrary(data []byte) {
	w.buf.WriteByte(tagArbitrary)
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(len(data)))
	w.buf.Write(b[:])
	w.buf.Write(data)
}

func (w *tagWriter) putCvolume(cv ChannelVolumes) {
	w.buf.WriteByte(tagCvolume)
	w.buf.WriteByte(byte(len(cv)))
	for _, v := range cv {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(v))
		w.buf.Write(b[:])
	}
}

// putProplist writes a string-valued property list. Values carry their
// terminating NUL on the wire, and the length appears both as a tagged u32
// and inside the arbitrary blob; that redundancy is part of the format.
func (w *tagWriter) putProplist(props map[string]string) {
	w.buf.WriteByte(tagProplist)
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		value := append([]byte(props[k]), 0)
		w.putString(k)
		w.putU32(uint32(len(value)))
		w.putArbitrary(value)
	}
	w.putStringNull()
}

// tagReader deserializes a tagstruct payload. It carries a sticky error:
// after the first mismatch every subsequent read is a no-op, so callers can
// decode a whole structure and check err() once.
type tagReader struct {
	buf  []byte
	fail error
}

func newTagReader(payload []byte) *tagReader {
	return &tagReader{buf: payload}
}

func (r *tagReader) err() error { return r.fail }

func (r *tagReader) setErr(format string, args ...any) {
	if r.fail == nil {
		r.fail = fmt.Errorf(format, args...)
	}
}

// take consumes n raw bytes, or fails if the payload is exhausted.
func (r *tagReader) take(n int) []byte {
	if r.fail != nil {
		return nil
	}
	if len(r.buf) < n {
		r.setErr("tagstruct truncated: need %d bytes, have %d", n, len(r.buf))
		return nil
	}
	b := r.buf[:n]
	r.buf = r.buf[n:]
	return b
}

// tag consumes and verifies the next type marker.
func (r *tagReader) tag(want byte) bool {
	b := r.take(1)
	if b == nil {
		return false
	}
	if b[0] != want {
		r.setErr("tagstruct: expected tag %q, got %q", want, b[0])
		return false
	}
	return true
}

func (r *tagReader) u32() uint32 {
	if !r.tag(tagU32) {
		return 0
	}
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

// string reads a string value, accepting the null-string marker as "".
func (r *tagReader) string() string {
	b := r.take(1)
	if b == nil {
		return ""
	}
	switch b[0] {
	case tagStringNull:
		return ""
	case tagString:
		i := bytes.IndexByte(r.buf, 0)
		if i < 0 {
			r.setErr("tagstruct: unterminated string")
			return ""
		}
		s := string(r.buf[:i])
		r.buf = r.buf[i+1:]
		return s
	default:
		r.setErr("tagstruct: expected string, got tag %q", b[0])
		return ""
	}
}

func (r *tagReader) bool() bool {
	b := r.take(1)
	if b == nil {
		return false
	}
	switch b[0] {
	case tagBoolTrue:
		return true
	case tagBoolFalse:
		return false
	default:
		r.setErr("tagstruct: expected boolean, got tag %q", b[0])
		return false
	}
}

func (r *tagReader) sampleSpec() SampleSpec {
	if !r.tag(tagSampleSpec) {
		return SampleSpec{}
	}
	b := r.take(6)
	if b == nil {
		return SampleSpec{}
	}
	return SampleSpec{
		Format:   b[0],
		Channels: b[1],
		Rate:     binary.BigEndian.Uint32(b[2:]),
	}
}

func (r *tagReader) channelMap() []byte {
	if !r.tag(tagChannelMap) {
		return nil
	}
	n := r.take(1)
	if n == nil {
		return nil
	}
	b := r.take(int(n[0]))
	if b == nil {
		return nil
	}
	m := make([]byte, len(b))
	copy(m, b)
	return m
}

func (r *tagReader) cvolume() ChannelVolumes {
	if !r.tag(tagCvolume) {
		return nil
	}
	n := r.take(1)
	if n == nil {
		return nil
	}
	cv := make(ChannelVolumes, int(n[0]))
	for i := range cv {
		b := r.take(4)
		if b == nil {
			return nil
		}
		cv[i] = Volume(binary.BigEndian.Uint32(b))
	}
	return cv
}
