// Package transport owns the long-lived connection to the collaborative
// document authority: address-spec dialing, reconnection with exponential
// backoff, negotiation, and the framed read/write pumps that carry
// External edits and Accepts in, and Submissions out.
//
// A Transport's Run method is the "event loop" context referred to
// throughout the design: everything it touches (the write queue, the
// connection, the backoff timer) is private to the goroutine running Run,
// except Enqueue and Ack, which are safe to call from any goroutine.
package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ConnectFunc is called once per successful negotiation, on the Run
// goroutine, with the author id and starting sequence assigned by the
// server and the authoritative document snapshot.
type ConnectFunc func(authorID, seqno int, text string)

// MessageFunc is called for every framed message received after
// negotiation, on the connection's read-pump goroutine, in arrival order.
type MessageFunc func(msg Message)

// Config configures a Transport.
type Config struct {
	// Addr is the address spec: see ParseAddr.
	Addr string
	// DisplayName is sent with a fresh ("new:") negotiation.
	DisplayName string

	// InitialBackoff and MaxBackoff bound the reconnect delay (spec: 10ms
	// initial, 15s cap, doubling). Zero values fall back to those
	// defaults.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	Logger *zap.Logger
}

// Transport manages one logical connection to the server, transparently
// reconnecting on failure. Enqueue and Ack are the only methods safe to
// call concurrently with Run; ConnectFunc is invoked from the Run
// goroutine and MessageFunc from the current connection's read pump.
type Transport struct {
	cfg       Config
	onConnect ConnectFunc
	onMessage MessageFunc
	log       *zap.Logger

	mu     sync.Mutex
	writeQ []Submission
	secret []byte // reconnect secret from the most recent negotiation
	wake   chan struct{}
}

// New builds a Transport. Nothing is dialed until Run is called.
func New(cfg Config, onConnect ConnectFunc, onMessage MessageFunc) *Transport {
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 10 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 15 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Transport{
		cfg:       cfg,
		onConnect: onConnect,
		onMessage: onMessage,
		log:       log.Named("transport"),
		wake:      make(chan struct{}, 1),
	}
}

// Enqueue appends sub to the write queue. It survives reconnects: on a
// fresh connection, the whole queue (not just what's new) is resent, since
// there is no way to know how much of a half-open write actually reached
// the peer.
func (t *Transport) Enqueue(sub Submission) {
	t.mu.Lock()
	t.writeQ = append(t.writeQ, sub)
	t.mu.Unlock()
	t.signal()
}

// Ack drops every queued submission up to and including seq. Callers
// (Agent) call this once a submission has been confirmed by an Accept, so
// a later reconnect does not resend work the server already applied.
func (t *Transport) Ack(seq int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := 0
	for ; i < len(t.writeQ); i++ {
		if t.writeQ[i].Seq > seq {
			break
		}
	}
	t.writeQ = t.writeQ[i:]
}

func (t *Transport) signal() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *Transport) queueSnapshot() []Submission {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Submission, len(t.writeQ))
	copy(out, t.writeQ)
	return out
}

// Run dials, negotiates, and pumps messages until ctx is canceled,
// reconnecting with exponential backoff on any transport-level failure. It
// returns nil only when ctx is canceled; every other return is a bug
// report, not expected control flow (parse errors close the connection
// but are logged and retried, per spec: a corrupt line is fatal for that
// connection, not for the agent).
func (t *Transport) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = t.cfg.InitialBackoff
	bo.MaxInterval = t.cfg.MaxBackoff
	bo.Multiplier = 2
	bo.RandomizationFactor = 0 // spec calls for exact doubling, not jitter
	bo.MaxElapsedTime = 0      // never give up; the caller owns ctx cancellation
	bo.Reset()

	for {
		if ctx.Err() != nil {
			return nil
		}

		connID := uuid.NewString()
		log := t.log.With(zap.String("conn_id", connID))

		network, addr, err := ParseAddr(t.cfg.Addr)
		if err != nil {
			return fmt.Errorf("transport: %w", err)
		}

		dialer := net.Dialer{}
		conn, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn("reconnecting...", zap.Error(err))
			if !t.sleepBackoff(ctx, bo.NextBackOff()) {
				return nil
			}
			continue
		}

		bo.Reset()
		err = t.runConnection(ctx, conn, log)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			log.Warn("reconnecting...", zap.Error(err))
			if !t.sleepBackoff(ctx, bo.NextBackOff()) {
				return nil
			}
		}
	}
}

func (t *Transport) sleepBackoff(ctx context.Context, d time.Duration) bool {
	if d == backoff.Stop {
		return false
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// runConnection owns one dialed connection end to end: negotiation, then
// the read and write pumps, supervised together so either one failing
// tears down both.
func (t *Transport) runConnection(ctx context.Context, conn net.Conn, log *zap.Logger) error {
	defer conn.Close()

	reader := bufio.NewReader(conn)

	if err := t.negotiate(conn, reader, log); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return t.readPump(reader, log) })
	g.Go(func() error { return t.writePump(gctx, conn, log) })

	go func() {
		<-gctx.Done()
		if gctx.Err() != nil {
			conn.Close()
		}
	}()

	return g.Wait()
}

func (t *Transport) negotiate(conn net.Conn, reader *bufio.Reader, log *zap.Logger) error {
	secret := t.currentSecret()

	line := negotiationLine(t.cfg.DisplayName, secret)
	if _, err := io.WriteString(conn, line); err != nil {
		return fmt.Errorf("transport: negotiation write: %w", err)
	}

	respLine, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("transport: negotiation read: %w", err)
	}
	resp, err := parseNegotiationResponse(trimNewline(respLine))
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.secret = resp.Secret
	t.mu.Unlock()

	log.Info("negotiated", zap.Int("author_id", resp.AuthorID), zap.Int("seqno", resp.Seqno))
	t.onConnect(resp.AuthorID, resp.Seqno, resp.Text)
	return nil
}

func (t *Transport) currentSecret() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.secret == nil {
		return nil
	}
	out := make([]byte, len(t.secret))
	copy(out, t.secret)
	return out
}

func (t *Transport) readPump(reader *bufio.Reader, log *zap.Logger) error {
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("transport: connection closed: %w", err)
			}
			return fmt.Errorf("transport: read: %w", err)
		}

		msg, err := readMsg(trimNewline(line))
		if err != nil {
			// A malformed line is fatal for this connection (spec §7):
			// close it. The agent will see this surface as a reconnect,
			// not as agent.FatalError, matching "transport error" not
			// "protocol invariant violation" -- the corruption is on the
			// wire, not in the session's logical state.
			log.Error("malformed message, closing connection", zap.Error(err))
			return err
		}

		t.onMessage(msg)
	}
}

func (t *Transport) writePump(ctx context.Context, conn net.Conn, log *zap.Logger) error {
	// Ack drops entries from the front of the queue while this pump runs,
	// so progress is tracked by the last seq written, not by an index.
	sentAny := false
	lastSent := 0

	for {
		q := t.queueSnapshot()
		for _, sub := range q {
			if sentAny && sub.Seq <= lastSent {
				continue
			}
			line, err := encodeSubmission(sub)
			if err != nil {
				return err
			}
			if _, err := io.WriteString(conn, line); err != nil {
				return fmt.Errorf("transport: write: %w", err)
			}
			sentAny, lastSent = true, sub.Seq
		}

		select {
		case <-ctx.Done():
			return nil
		case <-t.wake:
		}
	}
}

func trimNewline(s string) string {
	if len(s) > 0 && s[len(s)-1] == '\n' {
		s = s[:len(s)-1]
	}
	if len(s) > 0 && s[len(s)-1] == '\r' {
		s = s[:len(s)-1]
	}
	return s
}
