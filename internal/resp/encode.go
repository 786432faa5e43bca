package resp

import (
	"math"
	"strconv"
	"strings"
)

// compositeBufferCap pre-sizes the output buffer for composite frames.
// Purely a performance hint; encoding grows the buffer as needed.
const compositeBufferCap = 4096

// Encode returns the exact wire representation of a frame. It is total:
// every constructible frame has a valid encoding and there is no failure
// mode.
func Encode(f Frame) []byte {
	switch f.(type) {
	case Array, Map, Set:
		return f.appendTo(make([]byte, 0, compositeBufferCap))
	}
	return f.appendTo(nil)
}

func appendCRLF(dst []byte) []byte {
	return append(dst, '\r', '\n')
}

func (s SimpleString) appendTo(dst []byte) []byte {
	dst = append(dst, '+')
	dst = append(dst, s...)
	return appendCRLF(dst)
}

func (e SimpleError) appendTo(dst []byte) []byte {
	dst = append(dst, '-')
	dst = append(dst, e...)
	return appendCRLF(dst)
}

func (n Integer) appendTo(dst []byte) []byte {
	dst = append(dst, ':')
	dst = strconv.AppendInt(dst, int64(n), 10)
	return appendCRLF(dst)
}

func (b BulkString) appendTo(dst []byte) []byte {
	dst = append(dst, '$')
	dst = strconv.AppendInt(dst, int64(len(b)), 10)
	dst = appendCRLF(dst)
	dst = append(dst, b...)
	return appendCRLF(dst)
}

func (NullBulkString) appendTo(dst []byte) []byte {
	return append(dst, "$-1\r\n"...)
}

func (a Array) appendTo(dst []byte) []byte {
	dst = append(dst, '*')
	dst = strconv.AppendInt(dst, int64(len(a)), 10)
	dst = appendCRLF(dst)
	for _, f := range a {
		dst = f.appendTo(dst)
	}
	return dst
}

func (NullArray) appendTo(dst []byte) []byte {
	return append(dst, "*-1\r\n"...)
}

func (Null) appendTo(dst []byte) []byte {
	return append(dst, "_\r\n"...)
}

func (b Boolean) appendTo(dst []byte) []byte {
	if b {
		return append(dst, "#t\r\n"...)
	}
	return append(dst, "#f\r\n"...)
}

func (d Double) appendTo(dst []byte) []byte {
	dst = append(dst, ',')
	dst = append(dst, formatDouble(float64(d))...)
	return appendCRLF(dst)
}

// formatDouble renders the canonical textual form: "inf", "-inf" and
// "nan" for non-finite values, plain decimal notation for zero and for
// magnitudes in [1e-8, 1e8), otherwise scientific notation with an
// explicitly signed mantissa and a minimal exponent ("+1.23456e8",
// "-1.23456e-9").
func formatDouble(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	case math.IsNaN(v):
		return "nan"
	}
	abs := math.Abs(v)
	if v == 0 || (abs >= 1e-8 && abs < 1e8) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	s := strconv.FormatFloat(v, 'e', -1, 64)
	mant, expPart, _ := strings.Cut(s, "e")
	exp, _ := strconv.Atoi(expPart)
	if mant[0] != '-' {
		mant = "+" + mant
	}
	return mant + "e" + strconv.Itoa(exp)
}

func (m Map) appendTo(dst []byte) []byte {
	dst = append(dst, '%')
	dst = strconv.AppendInt(dst, int64(len(m)), 10)
	dst = appendCRLF(dst)
	for _, k := range m.sortedKeys() {
		dst = SimpleString(k).appendTo(dst)
		dst = m[k].appendTo(dst)
	}
	return dst
}

func (s Set) appendTo(dst []byte) []byte {
	dst = append(dst, '~')
	dst = strconv.AppendInt(dst, int64(len(s)), 10)
	dst = appendCRLF(dst)
	for _, f := range s {
		dst = f.appendTo(dst)
	}
	return dst
}
