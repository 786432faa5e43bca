package server

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/okutsen/minidis/internal/store"
)

// startTestServer binds an ephemeral port and returns the server plus a
// dial helper. Shutdown is registered as test cleanup.
func startTestServer(t *testing.T, cfg *Config) *Server {
	t.Helper()
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.Addr = "127.0.0.1:0"

	srv := New(cfg, store.New(), nil, nil)
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			t.Errorf("shutdown: %v", err)
		}
	})
	return srv
}

func dialTestServer(t *testing.T, srv *Server) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	return conn
}

// readReply reads one complete RESP reply. Only the reply shapes the
// server produces are supported.
func readReply(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	switch line[0] {
	case '+', '-', ':', '_', '#', ',':
		return line
	case '$':
		n := parseTestLength(t, line)
		if n < 0 {
			return line
		}
		payload := make([]byte, n+2)
		if _, err := io.ReadFull(r, payload); err != nil {
			t.Fatalf("read bulk payload: %v", err)
		}
		return line + string(payload)
	case '*', '%':
		n := parseTestLength(t, line)
		out := line
		if line[0] == '%' {
			n *= 2
		}
		for i := 0; i < n; i++ {
			out += readReply(t, r)
		}
		return out
	}
	t.Fatalf("unexpected reply prefix %q", line)
	return ""
}

func parseTestLength(t *testing.T, line string) int {
	t.Helper()
	var n int
	body := strings.TrimSuffix(line[1:], "\r\n")
	if body == "-1" {
		return -1
	}
	for _, ch := range body {
		if ch < '0' || ch > '9' {
			t.Fatalf("bad length line %q", line)
		}
		n = n*10 + int(ch-'0')
	}
	return n
}

// ============================================================
// Command Round Trips
// ============================================================

func TestServer_CommandRoundTrips(t *testing.T) {
	srv := startTestServer(t, nil)
	conn := dialTestServer(t, srv)
	r := bufio.NewReader(conn)

	send := func(raw string) string {
		if _, err := conn.Write([]byte(raw)); err != nil {
			t.Fatalf("write: %v", err)
		}
		return readReply(t, r)
	}

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"ping", "*1\r\n$4\r\nPING\r\n", "+PONG\r\n"},
		{"echo", "*2\r\n$4\r\nECHO\r\n$5\r\nhello\r\n", "$5\r\nhello\r\n"},
		{"get missing", "*2\r\n$3\r\nGET\r\n$4\r\nnope\r\n", "_\r\n"},
		{"set", "*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n", "+OK\r\n"},
		{"get", "*2\r\n$3\r\nGET\r\n$1\r\nk\r\n", "$1\r\nv\r\n"},
		{"sadd", "*4\r\n$4\r\nSADD\r\n$1\r\ns\r\n$1\r\na\r\n$1\r\na\r\n", "*2\r\n:1\r\n:0\r\n"},
		{"sismember", "*3\r\n$9\r\nSISMEMBER\r\n$1\r\ns\r\n$1\r\na\r\n", ":1\r\n"},
		{"unknown command", "*1\r\n$6\r\nFOOBAR\r\n", "+OK\r\n"},
	}

	for _, tt := range tests {
		if got := send(tt.raw); got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestServer_HashCommandsOverWire(t *testing.T) {
	srv := startTestServer(t, nil)
	conn := dialTestServer(t, srv)
	r := bufio.NewReader(conn)

	send := func(raw string) string {
		if _, err := conn.Write([]byte(raw)); err != nil {
			t.Fatalf("write: %v", err)
		}
		return readReply(t, r)
	}

	send("*4\r\n$4\r\nHSET\r\n$1\r\nh\r\n$1\r\nb\r\n$1\r\n2\r\n")
	send("*4\r\n$4\r\nHSET\r\n$1\r\nh\r\n$1\r\na\r\n$1\r\n1\r\n")

	got := send("*2\r\n$7\r\nHGETALL\r\n$1\r\nh\r\n")
	want := "%2\r\n+a\r\n$1\r\n1\r\n+b\r\n$1\r\n2\r\n"
	if got != want {
		t.Errorf("hgetall = %q, want %q", got, want)
	}

	got = send("*4\r\n$5\r\nHMGET\r\n$1\r\nh\r\n$1\r\nb\r\n$1\r\nz\r\n")
	want = "*2\r\n$1\r\n2\r\n_\r\n"
	if got != want {
		t.Errorf("hmget = %q, want %q", got, want)
	}
}

// ============================================================
// Framing Behavior
// ============================================================

// Commands arriving one byte at a time must still decode once complete.
func TestServer_FragmentedWrites(t *testing.T) {
	srv := startTestServer(t, nil)
	conn := dialTestServer(t, srv)
	r := bufio.NewReader(conn)

	raw := "*2\r\n$4\r\nECHO\r\n$3\r\nabc\r\n"
	for i := 0; i < len(raw); i++ {
		if _, err := conn.Write([]byte{raw[i]}); err != nil {
			t.Fatalf("write byte %d: %v", i, err)
		}
	}

	if got := readReply(t, r); got != "$3\r\nabc\r\n" {
		t.Errorf("reply = %q", got)
	}
}

// Two commands in one write produce two replies in order.
func TestServer_PipelinedCommands(t *testing.T) {
	srv := startTestServer(t, nil)
	conn := dialTestServer(t, srv)
	r := bufio.NewReader(conn)

	raw := "*1\r\n$4\r\nPING\r\n*2\r\n$4\r\nECHO\r\n$2\r\nhi\r\n"
	if _, err := conn.Write([]byte(raw)); err != nil {
		t.Fatalf("write: %v", err)
	}

	if got := readReply(t, r); got != "+PONG\r\n" {
		t.Errorf("first reply = %q", got)
	}
	if got := readReply(t, r); got != "$2\r\nhi\r\n" {
		t.Errorf("second reply = %q", got)
	}
}

// ============================================================
// Error Handling
// ============================================================

// A malformed command (wrong arity) is replied as an error frame and
// the session continues.
func TestServer_CommandErrorKeepsSession(t *testing.T) {
	srv := startTestServer(t, nil)
	conn := dialTestServer(t, srv)
	r := bufio.NewReader(conn)

	if _, err := conn.Write([]byte("*1\r\n$3\r\nGET\r\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	got := readReply(t, r)
	if !strings.HasPrefix(got, "-ERR ") {
		t.Fatalf("reply = %q, want error frame", got)
	}

	if _, err := conn.Write([]byte("*1\r\n$4\r\nPING\r\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := readReply(t, r); got != "+PONG\r\n" {
		t.Errorf("session did not survive command error, reply = %q", got)
	}
}

// A protocol violation gets an error frame and the connection closes.
func TestServer_ProtocolErrorClosesConnection(t *testing.T) {
	srv := startTestServer(t, nil)
	conn := dialTestServer(t, srv)
	r := bufio.NewReader(conn)

	if _, err := conn.Write([]byte("*notanumber\r\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	got := readReply(t, r)
	if !strings.HasPrefix(got, "-ERR protocol error") {
		t.Fatalf("reply = %q, want protocol error", got)
	}

	if _, err := r.ReadByte(); err != io.EOF {
		t.Errorf("connection still open after protocol error, err = %v", err)
	}
}

// ============================================================
// Lifecycle
// ============================================================

func TestServer_SharedStoreAcrossConnections(t *testing.T) {
	srv := startTestServer(t, nil)

	c1 := dialTestServer(t, srv)
	r1 := bufio.NewReader(c1)
	if _, err := c1.Write([]byte("*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := readReply(t, r1); got != "+OK\r\n" {
		t.Fatalf("set reply = %q", got)
	}

	c2 := dialTestServer(t, srv)
	r2 := bufio.NewReader(c2)
	if _, err := c2.Write([]byte("*2\r\n$3\r\nGET\r\n$1\r\nk\r\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := readReply(t, r2); got != "$1\r\nv\r\n" {
		t.Errorf("get from second connection = %q", got)
	}
}

func TestServer_ShutdownUnbindsAddress(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	srv := New(cfg, store.New(), nil, nil)
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	addr := srv.Addr().String()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if _, err := net.DialTimeout("tcp", addr, 200*time.Millisecond); err == nil {
		t.Error("address still accepting connections after shutdown")
	}
}

func TestServer_RateLimitRejectsBurst(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimit = 2
	srv := startTestServer(t, cfg)
	conn := dialTestServer(t, srv)
	r := bufio.NewReader(conn)

	limited := false
	for i := 0; i < 10; i++ {
		if _, err := conn.Write([]byte("*1\r\n$4\r\nPING\r\n")); err != nil {
			t.Fatalf("write: %v", err)
		}
		if got := readReply(t, r); strings.HasPrefix(got, "-ERR rate limit") {
			limited = true
			break
		}
	}
	if !limited {
		t.Error("burst of 10 commands was never rate limited at 2/s")
	}
}
