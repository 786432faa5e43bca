// Package command parses RESP arrays into typed commands and executes
// them against the backend store.
//
// Parsing and execution are strictly separated: Parse validates arity
// and argument types and never touches the backend; Execute consumes
// the already-validated command exactly once.
package command

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/okutsen/minidis/internal/resp"
	"github.com/okutsen/minidis/internal/store"
)

var (
	// ErrInvalidCommand signals a frame that is not a well-shaped
	// command: wrong top-level type, missing name, or wrong arity.
	ErrInvalidCommand = errors.New("invalid command")

	// ErrInvalidArgument signals an argument of the wrong frame type.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidUTF8 signals a textual argument that is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("invalid utf-8")
)

// Command is one validated operation, ready to execute. The set of
// implementations is closed; Parse never returns anything else.
type Command interface {
	// Name returns the canonical lowercase command name.
	Name() string

	// Execute runs the command against st and returns the reply frame.
	// Absence is expressed as data (Null frames, zero integers), never
	// as an error.
	Execute(st *store.Store) resp.Frame
}

// Parse converts a decoded frame into a Command. The frame must be an
// Array whose first element is a BulkString command name; the name is
// matched case-insensitively. Unknown names parse into Unrecognized
// rather than failing.
func Parse(f resp.Frame) (Command, error) {
	arr, ok := f.(resp.Array)
	if !ok {
		return nil, fmt.Errorf("%w: command must be an array", ErrInvalidCommand)
	}
	if len(arr) == 0 {
		return nil, fmt.Errorf("%w: command array is empty", ErrInvalidCommand)
	}
	name, ok := arr[0].(resp.BulkString)
	if !ok {
		return nil, fmt.Errorf("%w: command name must be a bulk string", ErrInvalidCommand)
	}

	switch strings.ToLower(string(name)) {
	case "get":
		return parseGet(arr)
	case "set":
		return parseSet(arr)
	case "echo":
		return parseEcho(arr)
	case "ping":
		return parsePing(arr)
	case "hget":
		return parseHGet(arr)
	case "hset":
		return parseHSet(arr)
	case "hgetall":
		return parseHGetAll(arr)
	case "hmget":
		return parseHMGet(arr)
	case "sadd":
		return parseSAdd(arr)
	case "sismember":
		return parseSIsMember(arr)
	}
	return Unrecognized{}, nil
}

// wantExact checks that the command carries exactly n arguments beyond
// its name.
func wantExact(arr resp.Array, name string, n int) error {
	if len(arr)-1 != n {
		return fmt.Errorf("%w: %s expects %d argument(s), got %d",
			ErrInvalidCommand, name, n, len(arr)-1)
	}
	return nil
}

// wantAtLeast checks that the command carries at least n arguments
// beyond its name.
func wantAtLeast(arr resp.Array, name string, n int) error {
	if len(arr)-1 < n {
		return fmt.Errorf("%w: %s expects at least %d argument(s), got %d",
			ErrInvalidCommand, name, n, len(arr)-1)
	}
	return nil
}

// argText extracts a textual argument: it must be a BulkString holding
// valid UTF-8.
func argText(f resp.Frame, what string) (string, error) {
	bs, ok := f.(resp.BulkString)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a bulk string", ErrInvalidArgument, what)
	}
	if !utf8.Valid(bs) {
		return "", fmt.Errorf("%w: %s", ErrInvalidUTF8, what)
	}
	return string(bs), nil
}

func parseGet(arr resp.Array) (Command, error) {
	if err := wantExact(arr, "get", 1); err != nil {
		return nil, err
	}
	key, err := argText(arr[1], "key")
	if err != nil {
		return nil, err
	}
	return Get{Key: key}, nil
}

func parseSet(arr resp.Array) (Command, error) {
	if err := wantExact(arr, "set", 2); err != nil {
		return nil, err
	}
	key, err := argText(arr[1], "key")
	if err != nil {
		return nil, err
	}
	// The value is stored as-is; any frame type is allowed.
	return Set{Key: key, Value: arr[2]}, nil
}

func parseEcho(arr resp.Array) (Command, error) {
	if err := wantExact(arr, "echo", 1); err != nil {
		return nil, err
	}
	msg, err := argText(arr[1], "message")
	if err != nil {
		return nil, err
	}
	return Echo{Message: msg}, nil
}

func parsePing(arr resp.Array) (Command, error) {
	switch len(arr) {
	case 1:
		return Ping{}, nil
	case 2:
		msg, err := argText(arr[1], "message")
		if err != nil {
			return nil, err
		}
		return Ping{Message: msg, HasMessage: true}, nil
	}
	return nil, fmt.Errorf("%w: ping expects at most 1 argument, got %d",
		ErrInvalidCommand, len(arr)-1)
}

func parseHGet(arr resp.Array) (Command, error) {
	if err := wantExact(arr, "hget", 2); err != nil {
		return nil, err
	}
	key, err := argText(arr[1], "key")
	if err != nil {
		return nil, err
	}
	field, err := argText(arr[2], "field")
	if err != nil {
		return nil, err
	}
	return HGet{Key: key, Field: field}, nil
}

func parseHSet(arr resp.Array) (Command, error) {
	if err := wantExact(arr, "hset", 3); err != nil {
		return nil, err
	}
	key, err := argText(arr[1], "key")
	if err != nil {
		return nil, err
	}
	field, err := argText(arr[2], "field")
	if err != nil {
		return nil, err
	}
	return HSet{Key: key, Field: field, Value: arr[3]}, nil
}

func parseHGetAll(arr resp.Array) (Command, error) {
	if err := wantExact(arr, "hgetall", 1); err != nil {
		return nil, err
	}
	key, err := argText(arr[1], "key")
	if err != nil {
		return nil, err
	}
	return HGetAll{Key: key, Sort: true}, nil
}

func parseHMGet(arr resp.Array) (Command, error) {
	if err := wantAtLeast(arr, "hmget", 2); err != nil {
		return nil, err
	}
	key, err := argText(arr[1], "key")
	if err != nil {
		return nil, err
	}
	fields := make([]string, 0, len(arr)-2)
	for _, f := range arr[2:] {
		field, err := argText(f, "field")
		if err != nil {
			return nil, err
		}
		fields = append(fields, field)
	}
	return HMGet{Key: key, Fields: fields}, nil
}

func parseSAdd(arr resp.Array) (Command, error) {
	if err := wantAtLeast(arr, "sadd", 2); err != nil {
		return nil, err
	}
	key, err := argText(arr[1], "key")
	if err != nil {
		return nil, err
	}
	members := make([]string, 0, len(arr)-2)
	for _, f := range arr[2:] {
		member, err := argText(f, "member")
		if err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	return SAdd{Key: key, Members: members}, nil
}

func parseSIsMember(arr resp.Array) (Command, error) {
	if err := wantExact(arr, "sismember", 2); err != nil {
		return nil, err
	}
	key, err := argText(arr[1], "key")
	if err != nil {
		return nil, err
	}
	member, err := argText(arr[2], "member")
	if err != nil {
		return nil, err
	}
	return SIsMember{Key: key, Member: member}, nil
}
