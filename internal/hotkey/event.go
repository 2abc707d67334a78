// Package hotkey reads raw Linux evdev input records from one or more
// keyboard devices and turns the records of a single key into press and
// release edges.
//
// Several devices may report the same physical key (a keyboard often
// exposes more than one event node). Edges are not de-duplicated here; the
// consumer treats a press while already recording as a no-op.
package hotkey

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Event types and key values from linux/input-event-codes.h.
const (
	EvKey uint16 = 0x01

	ValueReleased uint32 = 0
	ValuePressed  uint32 = 1
	ValueRepeat   uint32 = 2
)

// wordSize is the size of a C long on this platform.
const wordSize = strconv.IntSize / 8

// RecordSize is the size of one struct input_event: a struct timeval (two
// native longs) followed by type, code and value.
const RecordSize = 2*wordSize + 8

// ErrShortRecord is returned by [Decode] for a buffer smaller than
// [RecordSize].
var ErrShortRecord = errors.New("hotkey: short record")

// KeyEvent is one decoded input record.
type KeyEvent struct {
	Time  time.Time
	Type  uint16
	Code  uint16
	Value uint32
}

// Decode parses one raw record in native byte order.
func Decode(b []byte) (KeyEvent, error) {
	if len(b) < RecordSize {
		return KeyEvent{}, fmt.Errorf("%w: got %d of %d bytes", ErrShortRecord, len(b), RecordSize)
	}
	var sec, usec int64
	if wordSize == 8 {
		sec = int64(binary.NativeEndian.Uint64(b[0:8]))
		usec = int64(binary.NativeEndian.Uint64(b[8:16]))
	} else {
		sec = int64(int32(binary.NativeEndian.Uint32(b[0:4])))
		usec = int64(int32(binary.NativeEndian.Uint32(b[4:8])))
	}
	off := 2 * wordSize
	return KeyEvent{
		Time:  time.Unix(sec, usec*int64(time.Microsecond)),
		Type:  binary.NativeEndian.Uint16(b[off:]),
		Code:  binary.NativeEndian.Uint16(b[off+2:]),
		Value: binary.NativeEndian.Uint32(b[off+4:]),
	}, nil
}

// Encode is the inverse of [Decode]. The timestamp is truncated to
// microseconds.
func Encode(ev KeyEvent) []byte {
	b := make([]byte, RecordSize)
	var sec, usec int64
	if !ev.Time.IsZero() {
		sec = ev.Time.Unix()
		usec = int64(ev.Time.Nanosecond()) / int64(time.Microsecond)
	}
	if wordSize == 8 {
		binary.NativeEndian.PutUint64(b[0:8], uint64(sec))
		binary.NativeEndian.PutUint64(b[8:16], uint64(usec))
	} else {
		binary.NativeEndian.PutUint32(b[0:4], uint32(sec))
		binary.NativeEndian.PutUint32(b[4:8], uint32(usec))
	}
	off := 2 * wordSize
	binary.NativeEndian.PutUint16(b[off:], ev.Type)
	binary.NativeEndian.PutUint16(b[off+2:], ev.Code)
	binary.NativeEndian.PutUint32(b[off+4:], ev.Value)
	return b
}
