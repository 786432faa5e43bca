package resp

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"
)

func decodeString(t *testing.T, s string) (Frame, error) {
	t.Helper()
	buf := bytes.NewBufferString(s)
	return Decode(buf)
}

// ============================================================
// Decode Tests - One Frame Per Variant
// ============================================================

func TestDecode_AllVariants(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Frame
	}{
		{"simple string", "+OK\r\n", SimpleString("OK")},
		{"error", "-Error message\r\n", SimpleError("Error message")},
		{"positive integer", ":123\r\n", Integer(123)},
		{"negative integer", ":-123\r\n", Integer(-123)},
		{"explicit plus integer", ":+7\r\n", Integer(7)},
		{"bulk string", "$5\r\nhello\r\n", BulkString("hello")},
		{"empty bulk string", "$0\r\n\r\n", BulkString("")},
		{"bulk string with CRLF payload", "$4\r\na\r\nb\r\n", BulkString("a\r\nb")},
		{"null bulk string", "$-1\r\n", NullBulkString{}},
		{"array", "*2\r\n$3\r\nget\r\n$5\r\nhello\r\n", Array{BulkString("get"), BulkString("hello")}},
		{"empty array", "*0\r\n", Array{}},
		{"null array", "*-1\r\n", NullArray{}},
		{"null", "_\r\n", Null{}},
		{"true", "#t\r\n", Boolean(true)},
		{"false", "#f\r\n", Boolean(false)},
		{"double", ",123.456\r\n", Double(123.456)},
		{"scientific double", ",+1.23456e8\r\n", Double(1.23456e8)},
		{"positive infinity", ",inf\r\n", Double(math.Inf(1))},
		{"negative infinity", ",-inf\r\n", Double(math.Inf(-1))},
		{"map", "%2\r\n+foo\r\n:1\r\n+bar\r\n$1\r\nx\r\n", Map{"foo": Integer(1), "bar": BulkString("x")}},
		{"empty map", "%0\r\n", Map{}},
		{"set", "~2\r\n:1\r\n:2\r\n", Set{Integer(1), Integer(2)}},
		{
			"nested composite",
			"*2\r\n*2\r\n:1\r\n#t\r\n%1\r\n+k\r\n_\r\n",
			Array{Array{Integer(1), Boolean(true)}, Map{"k": Null{}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := bytes.NewBufferString(tt.input)
			got, err := Decode(buf)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !Equal(got, tt.want) {
				t.Errorf("Decode() = %#v, want %#v", got, tt.want)
			}
			if buf.Len() != 0 {
				t.Errorf("buffer not fully consumed, %d bytes left", buf.Len())
			}
		})
	}
}

// ============================================================
// Decode Tests - Round-Trip
// ============================================================

func TestDecode_RoundTrip(t *testing.T) {
	frames := []Frame{
		SimpleString("PONG"),
		SimpleError("ERR oops"),
		Integer(-42),
		BulkString("binary\x00payload"),
		NullBulkString{},
		Array{BulkString("set"), BulkString("k"), Integer(1)},
		Array{},
		NullArray{},
		Null{},
		Boolean(true),
		Double(123.456),
		Double(-1.23456e-9),
		Double(math.Inf(1)),
		Double(math.Inf(-1)),
		Map{"foo": Double(-123456.789), "hello": BulkString("world")},
		Set{Array{Integer(1234), Boolean(true)}, BulkString("world")},
	}

	for _, f := range frames {
		encoded := Encode(f)
		buf := bytes.NewBuffer(encoded)
		got, err := Decode(buf)
		if err != nil {
			t.Fatalf("Decode(%q): unexpected error: %v", encoded, err)
		}
		if !Equal(got, f) {
			t.Errorf("round trip of %q: got %#v, want %#v", encoded, got, f)
		}
		if buf.Len() != 0 {
			t.Errorf("round trip of %q left %d bytes", encoded, buf.Len())
		}
	}
}

// NaN is checked separately because it compares unequal to itself.
func TestDecode_NaNRoundTrip(t *testing.T) {
	f, err := decodeString(t, ",nan\r\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d, ok := f.(Double)
	if !ok || !math.IsNaN(float64(d)) {
		t.Fatalf("Decode() = %#v, want NaN Double", f)
	}
	if got := string(Encode(f)); got != ",nan\r\n" {
		t.Errorf("re-encode = %q, want %q", got, ",nan\r\n")
	}
}

// ============================================================
// Decode Tests - Incomplete Handling
// ============================================================

// Every proper prefix of a valid encoding must report Incomplete
// without touching the buffer, and appending the remaining bytes must
// then decode identically to a single-shot decode.
func TestDecode_IncompleteThenComplete(t *testing.T) {
	frames := []Frame{
		SimpleString("OK"),
		Integer(123),
		BulkString("hello"),
		NullBulkString{},
		Array{BulkString("get"), BulkString("hello")},
		NullArray{},
		Boolean(false),
		Double(-123.456),
		Map{"foo": Integer(1), "hello": BulkString("world")},
		Set{Integer(1), Integer(2)},
	}

	for _, f := range frames {
		encoded := Encode(f)
		for split := 1; split < len(encoded); split++ {
			buf := bytes.NewBuffer(append([]byte(nil), encoded[:split]...))

			_, err := Decode(buf)
			if !errors.Is(err, ErrIncomplete) {
				t.Fatalf("prefix %q: got err %v, want ErrIncomplete", encoded[:split], err)
			}
			if buf.Len() != split {
				t.Fatalf("prefix %q: buffer mutated after Incomplete", encoded[:split])
			}

			// Retry with the same buffer must still report Incomplete.
			if _, err := Decode(buf); !errors.Is(err, ErrIncomplete) {
				t.Fatalf("prefix %q: retry changed outcome: %v", encoded[:split], err)
			}

			buf.Write(encoded[split:])
			got, err := Decode(buf)
			if err != nil {
				t.Fatalf("completed %q: unexpected error: %v", encoded, err)
			}
			if !Equal(got, f) {
				t.Fatalf("completed %q: got %#v, want %#v", encoded, got, f)
			}
			if buf.Len() != 0 {
				t.Fatalf("completed %q: %d bytes left", encoded, buf.Len())
			}
		}
	}
}

func TestDecode_EmptyBuffer(t *testing.T) {
	if _, err := decodeString(t, ""); !errors.Is(err, ErrIncomplete) {
		t.Errorf("got %v, want ErrIncomplete", err)
	}
}

// The decoder consumes exactly one frame and leaves trailing bytes for
// the next call.
func TestDecode_ConsumesExactlyOneFrame(t *testing.T) {
	buf := bytes.NewBufferString("+first\r\n:2\r\n")

	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !Equal(got, SimpleString("first")) {
		t.Errorf("first frame = %#v", got)
	}

	got, err = Decode(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !Equal(got, Integer(2)) {
		t.Errorf("second frame = %#v", got)
	}
	if buf.Len() != 0 {
		t.Errorf("%d bytes left", buf.Len())
	}
}

// ============================================================
// Decode Tests - Malformed Input
// ============================================================

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unknown prefix", "!oops\r\n"},
		{"integer with garbage", ":12a\r\n"},
		{"integer empty", ":\r\n"},
		{"boolean wrong letter", "#x\r\n"},
		{"boolean too long", "#tt\r\n"},
		{"double garbage", ",abc\r\n"},
		{"null with payload", "_x\r\n"},
		{"bulk length not a number", "$abc\r\n"},
		{"bulk negative length", "$-2\r\n"},
		{"bulk missing terminator", "$3\r\nabcXY"},
		{"array length not a number", "*x\r\n"},
		{"array negative length", "*-2\r\n"},
		{"map negative length", "%-1\r\n"},
		{"set negative length", "~-1\r\n"},
		{"map key not simple string", "%1\r\n:1\r\n:2\r\n"},
		{"nested malformed element", "*2\r\n:1\r\n#z\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeString(t, tt.input)
			if !errors.Is(err, ErrProtocol) {
				t.Errorf("got %v, want ErrProtocol", err)
			}
		})
	}
}

func TestDecode_LimitExceeded(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"bulk too long", "$1048576\r\n"},
		{"array too long", "*100000\r\n"},
		{"map too long", "%100000\r\n"},
		{"set too long", "~100000\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeString(t, tt.input)
			if !errors.Is(err, ErrLimitExceeded) {
				t.Errorf("got %v, want ErrLimitExceeded", err)
			}
		})
	}
}

// Array, Map and Set length headers denote element counts, not byte
// lengths.
func TestDecode_LengthIsElementCount(t *testing.T) {
	// 3 elements, far more than 3 bytes of payload.
	input := "*3\r\n$5\r\nxxxxx\r\n$5\r\nyyyyy\r\n$5\r\nzzzzz\r\n"
	got, err := decodeString(t, input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	arr, ok := got.(Array)
	if !ok {
		t.Fatalf("got %T, want Array", got)
	}
	if len(arr) != 3 {
		t.Errorf("len = %d, want 3", len(arr))
	}
}

// A nested Incomplete must not commit any bytes consumed by earlier
// elements of the same composite frame.
func TestDecode_NestedIncompleteRollsBack(t *testing.T) {
	full := "*2\r\n$3\r\nget\r\n$5\r\nhello\r\n"
	partial := "*2\r\n$3\r\nget\r\n$5\r\nhel"

	buf := bytes.NewBufferString(partial)
	if _, err := Decode(buf); !errors.Is(err, ErrIncomplete) {
		t.Fatalf("got %v, want ErrIncomplete", err)
	}
	if buf.String() != partial {
		t.Fatalf("buffer mutated: %q", buf.String())
	}

	buf.WriteString(strings.TrimPrefix(full, partial))
	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Array{BulkString("get"), BulkString("hello")}
	if !Equal(got, want) {
		t.Errorf("got %#v, want %#v", got, want)
	}
}
