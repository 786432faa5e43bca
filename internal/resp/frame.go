// Package resp implements the RESP wire format used by the server.
package resp

import (
	"bytes"
	"sort"
)

// Frame is one self-describing RESP value. The concrete types below form a
// closed set; the decoder never produces anything else and the encoder
// accepts nothing else.
type Frame interface {
	appendTo(dst []byte) []byte
}

// SimpleString is a "+..." frame. The text must not contain CR or LF.
type SimpleString string

// SimpleError is a "-..." frame carrying an error message for the client.
// Absence of data is expressed with Null frames, not with SimpleError.
type SimpleError string

// Integer is a ":..." signed 64-bit integer frame.
type Integer int64

// BulkString is a "$..." length-prefixed frame. It is binary safe and may
// contain any bytes, including CRLF.
type BulkString []byte

// NullBulkString is the "$-1" sentinel.
type NullBulkString struct{}

// Array is a "*..." frame. Element order is meaningful: command arguments
// are positional. An empty Array is distinct from NullArray.
type Array []Frame

// NullArray is the "*-1" sentinel.
type NullArray struct{}

// Null is the RESP3 "_" generic null.
type Null struct{}

// Boolean is a "#t"/"#f" frame.
type Boolean bool

// Double is a "," 64-bit float frame with a canonical textual form.
type Double float64

// Map is a "%..." frame. Keys are unique and encode in ascending key order
// so that encoding is deterministic regardless of insertion order. Keys are
// framed as simple strings and pass through unmodified; a key containing CR
// or LF produces framing the decoder cannot parse, so producers must keep
// key text line-safe.
type Map map[string]Frame

// Set is a "~..." frame. Semantically unordered but encoded positionally;
// the frame layer does not deduplicate elements.
type Set []Frame

// Equal reports whether two frames are structurally equal. Composite
// frames compare recursively, element by element.
func Equal(a, b Frame) bool {
	switch av := a.(type) {
	case SimpleString:
		bv, ok := b.(SimpleString)
		return ok && av == bv
	case SimpleError:
		bv, ok := b.(SimpleError)
		return ok && av == bv
	case Integer:
		bv, ok := b.(Integer)
		return ok && av == bv
	case BulkString:
		bv, ok := b.(BulkString)
		return ok && bytes.Equal(av, bv)
	case NullBulkString:
		_, ok := b.(NullBulkString)
		return ok
	case Array:
		bv, ok := b.(Array)
		return ok && framesEqual(av, bv)
	case NullArray:
		_, ok := b.(NullArray)
		return ok
	case Null:
		_, ok := b.(Null)
		return ok
	case Boolean:
		bv, ok := b.(Boolean)
		return ok && av == bv
	case Double:
		bv, ok := b.(Double)
		return ok && av == bv
	case Map:
		bv, ok := b.(Map)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			w, ok := bv[k]
			if !ok || !Equal(v, w) {
				return false
			}
		}
		return true
	case Set:
		bv, ok := b.(Set)
		return ok && framesEqual(av, bv)
	}
	return a == nil && b == nil
}

func framesEqual(a, b []Frame) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// sortedKeys returns the map's keys in ascending order.
func (m Map) sortedKeys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
