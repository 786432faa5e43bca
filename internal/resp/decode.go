package resp

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

// Protocol limits guarding against hostile length headers.
const (
	// MaxArrayLen limits the element count of Array, Map and Set frames.
	MaxArrayLen = 1024

	// MaxBulkLen limits the size of a single bulk string (512KB).
	MaxBulkLen = 512 * 1024
)

var (
	// ErrIncomplete signals that the buffer does not yet hold a whole
	// frame. The buffer is left untouched; the caller should read more
	// bytes and retry.
	ErrIncomplete = errors.New("resp: incomplete frame")

	// ErrProtocol signals bytes that violate the RESP grammar. The
	// caller should treat the stream as corrupt.
	ErrProtocol = errors.New("resp: protocol error")

	// ErrLimitExceeded signals a well-formed length header beyond the
	// protocol limits above.
	ErrLimitExceeded = errors.New("resp: limit exceeded")
)

// Decode recognizes one complete frame at the front of buf and consumes
// exactly its bytes. On any error, including ErrIncomplete, the buffer is
// left unmodified, so a retry after appending more bytes decodes exactly
// what a single-shot decode of the complete bytes would.
func Decode(buf *bytes.Buffer) (Frame, error) {
	f, n, err := parseFrame(buf.Bytes())
	if err != nil {
		return nil, err
	}
	buf.Next(n)
	return f, nil
}

// parseFrame parses one frame from the front of b without consuming
// anything, returning the frame and the number of bytes it occupies.
func parseFrame(b []byte) (Frame, int, error) {
	if len(b) == 0 {
		return nil, 0, ErrIncomplete
	}

	switch b[0] {
	case '+':
		payload, n, err := parseLine(b)
		if err != nil {
			return nil, 0, err
		}
		return SimpleString(payload), n, nil
	case '-':
		payload, n, err := parseLine(b)
		if err != nil {
			return nil, 0, err
		}
		return SimpleError(payload), n, nil
	case ':':
		payload, n, err := parseLine(b)
		if err != nil {
			return nil, 0, err
		}
		v, err := strconv.ParseInt(string(payload), 10, 64)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: invalid integer %q", ErrProtocol, payload)
		}
		return Integer(v), n, nil
	case '_':
		payload, n, err := parseLine(b)
		if err != nil {
			return nil, 0, err
		}
		if len(payload) != 0 {
			return nil, 0, fmt.Errorf("%w: null frame carries payload %q", ErrProtocol, payload)
		}
		return Null{}, n, nil
	case '#':
		payload, n, err := parseLine(b)
		if err != nil {
			return nil, 0, err
		}
		switch string(payload) {
		case "t":
			return Boolean(true), n, nil
		case "f":
			return Boolean(false), n, nil
		}
		return nil, 0, fmt.Errorf("%w: invalid boolean %q", ErrProtocol, payload)
	case ',':
		payload, n, err := parseLine(b)
		if err != nil {
			return nil, 0, err
		}
		v, err := strconv.ParseFloat(string(payload), 64)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: invalid double %q", ErrProtocol, payload)
		}
		return Double(v), n, nil
	case '$':
		return parseBulkString(b)
	case '*':
		return parseArray(b)
	case '%':
		return parseMap(b)
	case '~':
		return parseSet(b)
	}
	return nil, 0, fmt.Errorf("%w: unknown frame type %q", ErrProtocol, b[0])
}

// parseLine returns the payload between the one-byte prefix and the
// terminating CRLF, plus the total line length including both.
func parseLine(b []byte) (payload []byte, n int, err error) {
	i := bytes.Index(b, []byte("\r\n"))
	if i < 0 {
		return nil, 0, ErrIncomplete
	}
	return b[1:i], i + 2, nil
}

// parseLength parses a "<prefix><decimal>\r\n" header. A -1 length is
// returned as-is for the caller's null sentinel handling.
func parseLength(b []byte) (length, n int, err error) {
	payload, n, err := parseLine(b)
	if err != nil {
		return 0, 0, err
	}
	length, err = strconv.Atoi(string(payload))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: invalid length header %q", ErrProtocol, payload)
	}
	return length, n, nil
}

func parseBulkString(b []byte) (Frame, int, error) {
	length, n, err := parseLength(b)
	if err != nil {
		return nil, 0, err
	}
	if length == -1 {
		return NullBulkString{}, n, nil
	}
	if length < 0 {
		return nil, 0, fmt.Errorf("%w: invalid bulk length %d", ErrProtocol, length)
	}
	if length > MaxBulkLen {
		return nil, 0, fmt.Errorf("%w: bulk length %d exceeds limit %d", ErrLimitExceeded, length, MaxBulkLen)
	}
	// Payload plus trailing CRLF.
	if len(b) < n+length+2 {
		return nil, 0, ErrIncomplete
	}
	if b[n+length] != '\r' || b[n+length+1] != '\n' {
		return nil, 0, fmt.Errorf("%w: bulk string missing CRLF terminator", ErrProtocol)
	}
	payload := append([]byte(nil), b[n:n+length]...)
	return BulkString(payload), n + length + 2, nil
}

func parseCount(b []byte, kind string) (count, n int, err error) {
	count, n, err = parseLength(b)
	if err != nil {
		return 0, 0, err
	}
	if count < 0 {
		return 0, 0, fmt.Errorf("%w: invalid %s length %d", ErrProtocol, kind, count)
	}
	if count > MaxArrayLen {
		return 0, 0, fmt.Errorf("%w: %s length %d exceeds limit %d", ErrLimitExceeded, kind, count, MaxArrayLen)
	}
	return count, n, nil
}

func parseArray(b []byte) (Frame, int, error) {
	length, n, err := parseLength(b)
	if err != nil {
		return nil, 0, err
	}
	if length == -1 {
		return NullArray{}, n, nil
	}
	if length < 0 {
		return nil, 0, fmt.Errorf("%w: invalid array length %d", ErrProtocol, length)
	}
	if length > MaxArrayLen {
		return nil, 0, fmt.Errorf("%w: array length %d exceeds limit %d", ErrLimitExceeded, length, MaxArrayLen)
	}

	out := make(Array, 0, length)
	for i := 0; i < length; i++ {
		f, used, err := parseFrame(b[n:])
		if err != nil {
			return nil, 0, err
		}
		out = append(out, f)
		n += used
	}
	return out, n, nil
}

func parseMap(b []byte) (Frame, int, error) {
	count, n, err := parseCount(b, "map")
	if err != nil {
		return nil, 0, err
	}

	out := make(Map, count)
	for i := 0; i < count; i++ {
		keyFrame, used, err := parseFrame(b[n:])
		if err != nil {
			return nil, 0, err
		}
		key, ok := keyFrame.(SimpleString)
		if !ok {
			return nil, 0, fmt.Errorf("%w: map key must be a simple string", ErrProtocol)
		}
		n += used

		value, used, err := parseFrame(b[n:])
		if err != nil {
			return nil, 0, err
		}
		out[string(key)] = value
		n += used
	}
	return out, n, nil
}

func parseSet(b []byte) (Frame, int, error) {
	count, n, err := parseCount(b, "set")
	if err != nil {
		return nil, 0, err
	}

	out := make(Set, 0, count)
	for i := 0; i < count; i++ {
		f, used, err := parseFrame(b[n:])
		if err != nil {
			return nil, 0, err
		}
		out = append(out, f)
		n += used
	}
	return out, n, nil
}
