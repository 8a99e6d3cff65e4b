package agent

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeHost is a minimal line-buffer editor double: enough to exercise
// SetLines/SetText/GetText/OnBytes without a real editor attached.
// Schedule hands closures off through a channel rather than running them
// inline, so tests can drive the "editor thread" explicitly from the
// test goroutine and keep it disjoint from the agent's transport
// goroutine, matching the real ownership rule in spec.md §5.
type fakeHost struct {
	lines     []string
	cb        EditorByteCallback
	scheduled chan func()
}

func newFakeHost() *fakeHost {
	return &fakeHost{scheduled: make(chan func(), 16)}
}

func (h *fakeHost) Schedule(f func()) { h.scheduled <- f }

func (h *fakeHost) next(t *testing.T) func() {
	t.Helper()
	select {
	case f := <-h.scheduled:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for scheduled editor closure")
		return nil
	}
}

func (h *fakeHost) SetLines(buf int, start, end int, strict bool, lines []string) error {
	if end == -1 {
		end = len(h.lines)
	}
	out := append([]string{}, h.lines[:start]...)
	out = append(out, lines...)
	out = append(out, h.lines[end:]...)
	h.lines = out
	return nil
}

func (h *fakeHost) SetText(buf int, sl, sc, el, ec int, lines []string) error {
	prefix := h.lines[sl][:sc]
	suffix := h.lines[el][ec:]

	newLines := append([]string{}, lines...)
	if len(newLines) == 0 {
		newLines = []string{""}
	}
	newLines[0] = prefix + newLines[0]
	last := len(newLines) - 1
	newLines[last] = newLines[last] + suffix

	out := append([]string{}, h.lines[:sl]...)
	out = append(out, newLines...)
	out = append(out, h.lines[el+1:]...)
	h.lines = out
	return nil
}

func (h *fakeHost) GetText(buf int, sl, sc, el, ec int) ([]string, error) {
	if sl == el {
		return []string{h.lines[sl][sc:ec]}, nil
	}
	out := []string{h.lines[sl][sc:]}
	for i := sl + 1; i < el; i++ {
		out = append(out, h.lines[i])
	}
	out = append(out, h.lines[el][:ec])
	return out, nil
}

func (h *fakeHost) OnBytes(cb EditorByteCallback) { h.cb = cb }

type fakeErrors struct {
	errs []error
}

func (f *fakeErrors) Report(err error) { f.errs = append(f.errs, err) }

// mockRelay reused from the transport package's own test harness, kept
// separate here since agent_test.go must not import transport's
// unexported test types.
type mockRelay struct {
	t        *testing.T
	listener net.Listener
}

func newMockRelay(t *testing.T) *mockRelay {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return &mockRelay{t: t, listener: ln}
}

func (r *mockRelay) addr() string { return r.listener.Addr().String() }

func (r *mockRelay) accept() *mockConn {
	r.t.Helper()
	conn, err := r.listener.Accept()
	require.NoError(r.t, err)
	return &mockConn{t: r.t, conn: conn, reader: bufio.NewReader(conn)}
}

func (r *mockRelay) close() { r.listener.Close() }

type mockConn struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

func (c *mockConn) readLine() string {
	c.t.Helper()
	line, err := c.reader.ReadString('\n')
	require.NoError(c.t, err)
	return strings.TrimRight(line, "\r\n")
}

func (c *mockConn) close() { c.conn.Close() }

func (c *mockConn) send(line string) {
	c.t.Helper()
	_, err := c.conn.Write([]byte(line))
	require.NoError(c.t, err)
}

// TestAgentLocalEditThenExternalRoundTrip drives one full cycle: initial
// sync, a local insert that gets submitted and accepted, then an
// external insert from another peer applied back onto the buffer. It
// checks the seq-monotonicity and parent-reference invariants from
// spec.md §8 property 7 along the way.
func TestAgentLocalEditThenExternalRoundTrip(t *testing.T) {
	relay := newMockRelay(t)
	defer relay.close()

	host := newFakeHost()
	errs := &fakeErrors{}

	a, err := New(Config{
		Addr:           relay.addr(),
		DisplayName:    "alice",
		Buf:            0,
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     20 * time.Millisecond,
		Host:           host,
		Errors:         errs,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	conn := relay.accept()
	defer conn.close()

	require.Equal(t, "new:alice", conn.readLine())
	conn.send("42:c2VjcmV0:0:hello\n")

	host.next(t)() // run the initial-sync closure on this goroutine

	require.Equal(t, []string{"hello"}, host.lines)
	require.True(t, a.firstSynced)
	require.Equal(t, 42, a.authorID)

	// Local edit: append "!" at the end of "hello".
	host.lines[0] = "hello!"
	a.HandleLocalEdit(ByteEvent{
		Buf: 0, StartRow: 0, StartCol: 5, CharStart: 5,
		OldEndRow: 0, OldEndCol: 5, OldLen: 0,
		NewEndRow: 0, NewEndCol: 6, NewLen: 1,
	})

	require.Equal(t, "s:1:0:0:i:5:!", conn.readLine())
	require.Equal(t, 1, len(a.inflight))
	require.Equal(t, 1, a.inflight[0].seq)

	conn.send("a:1\n")
	host.next(t)()
	require.Empty(t, a.inflight)

	// External insert from another peer, landing before our own edit's
	// position; nothing is left in flight to transform against.
	conn.send("x:1:i:0:>>\n")
	host.next(t)()

	require.Equal(t, []string{">>hello!"}, host.lines)
	require.Equal(t, 1, a.latestServerSeq)
	require.Empty(t, errs.errs)

	cancel()
	require.NoError(t, <-done)
}

// TestAgentAcceptMismatchIsFatal exercises the protocol-invariant path:
// an Accept whose seq doesn't match the inflight head must end the
// session rather than silently drift out of sync.
func TestAgentAcceptMismatchIsFatal(t *testing.T) {
	relay := newMockRelay(t)
	defer relay.close()

	host := newFakeHost()
	errs := &fakeErrors{}

	a, err := New(Config{
		Addr:           relay.addr(),
		DisplayName:    "bob",
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     20 * time.Millisecond,
		Host:           host,
		Errors:         errs,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	conn := relay.accept()
	defer conn.close()
	require.Equal(t, "new:bob", conn.readLine())
	conn.send("7:c2VjcmV0:0:\n")
	host.next(t)()

	conn.send("a:99\n")
	host.next(t)()

	require.Len(t, errs.errs, 1)
	var fe *FatalError
	require.ErrorAs(t, errs.errs[0], &fe)

	require.NoError(t, <-done)
}
