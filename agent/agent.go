// Package agent is the client coordinator: it owns the author id, the
// local sequence counter, the in-flight submission queue, and the
// document's BreakTree, and bridges editor byte events to a transport
// while applying externally-sequenced edits back to the editor.
package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"collabagent/breaktree"
	"collabagent/ot"
	"collabagent/transport"
)

// inflightEntry pairs a submitted op with the seq it was assigned, so a
// later External can be transformed against exactly what's still
// outstanding, in order.
type inflightEntry struct {
	seq int
	op  ot.Op
}

// Config configures an Agent. No flag or file parsing happens here; the
// embedder is responsible for populating every field.
type Config struct {
	// Addr is the transport address spec (see transport.ParseAddr).
	Addr string
	// DisplayName is sent on a fresh negotiation.
	DisplayName string
	// Buf identifies the editor buffer this agent owns.
	Buf int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	Host   EditorHost
	Errors ErrorSink
	Logger *zap.Logger
}

// Agent is the client coordinator described in spec.md §4.6. All of its
// mutable state (seq, inflight, the BreakTree) is touched only from the
// editor context: HandleLocalEdit runs there by the host's own contract,
// and every other mutation arrives through inbox closures drained by
// Run and handed to host.Schedule, so nothing here needs its own lock.
type Agent struct {
	cfg Config
	tr  *transport.Transport
	log *zap.Logger

	authorID        int
	seq             int
	latestServerSeq int
	inflight        []inflightEntry
	tree            *breaktree.Tree
	firstSynced     bool
	pendingLocal    []ByteEvent

	inbox chan func()

	mu     sync.Mutex // guards cancel only; set once, read from any goroutine
	cancel context.CancelFunc
}

// New builds an Agent and wires it to a fresh Transport. Nothing is
// dialed and no editor callback fires until Run is called.
func New(cfg Config) (*Agent, error) {
	if cfg.Host == nil {
		return nil, fmt.Errorf("agent: Config.Host is required")
	}
	if cfg.Errors == nil {
		return nil, fmt.Errorf("agent: Config.Errors is required")
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	a := &Agent{
		cfg:   cfg,
		log:   log.Named("agent"),
		inbox: make(chan func(), 64),
	}

	a.tr = transport.New(transport.Config{
		Addr:           cfg.Addr,
		DisplayName:    cfg.DisplayName,
		InitialBackoff: cfg.InitialBackoff,
		MaxBackoff:     cfg.MaxBackoff,
		Logger:         log,
	}, a.enqueueConnect, a.enqueueMessage)

	cfg.Host.OnBytes(a.HandleLocalEdit)

	return a, nil
}

// InflightDirty reports whether any submission is currently outstanding.
// An embedder building undo on top of ot.Insert/ot.Delete's Inverse
// method uses this the way ot.py's Shadow.new_submission does: rebasing
// an inverse against a moving base is only safe once the queue drains.
func (a *Agent) InflightDirty() bool {
	return len(a.inflight) > 0
}

// Run drives the transport's event loop and the editor-context drain
// loop under one cancellation scope, per spec.md §5. It returns nil only
// when ctx is canceled by the caller or by a FatalError raised from
// within the agent itself.
func (a *Agent) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.tr.Run(gctx) })
	g.Go(func() error { return a.drainInbox(gctx) })
	return g.Wait()
}

// drainInbox is the "editor context" goroutine referred to in spec.md
// §5: it never touches the BreakTree itself, it only forwards closures
// that do onto the real editor thread via host.Schedule.
func (a *Agent) drainInbox(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-a.inbox:
			a.cfg.Host.Schedule(fn)
		}
	}
}

func (a *Agent) enqueueConnect(authorID, seqno int, text string) {
	a.inbox <- func() { a.onConnect(authorID, seqno, text) }
}

func (a *Agent) enqueueMessage(msg transport.Message) {
	a.inbox <- func() { a.onMessage(msg) }
}

// onConnect runs on the editor thread. Only the very first negotiation
// seeds the BreakTree and flushes edits held during pre-sync: spec.md §3
// carries a first_sync flag specifically to distinguish that one-time
// seeding from a reconnect's negotiation, where the snapshot text is not
// re-applied (unacknowledged submissions are re-sent by Transport and
// will reconcile through the ordinary Accept/External flow instead).
func (a *Agent) onConnect(authorID, seqno int, text string) {
	a.authorID = authorID
	a.latestServerSeq = seqno

	if a.firstSynced {
		a.log.Info("reconnected, resuming session", zap.Int("author_id", authorID))
		return
	}

	a.tree = breaktree.NewTreeFromText(text)
	if err := a.cfg.Host.SetLines(a.cfg.Buf, 0, -1, true, strings.Split(text, "\n")); err != nil {
		a.cfg.Errors.Report(fmt.Errorf("agent: initial SetLines: %w", err))
	}
	a.firstSynced = true

	pending := a.pendingLocal
	a.pendingLocal = nil
	for _, ev := range pending {
		a.applyLocalEvent(ev)
	}
}

func (a *Agent) onMessage(msg transport.Message) {
	switch m := msg.(type) {
	case transport.External:
		a.onExternal(m)
	case transport.Accept:
		a.onAccept(m)
	default:
		a.fatal(fmt.Errorf("unknown message type %T", msg))
	}
}

// onExternal transforms an externally-sequenced op against everything
// still in flight, in order, then applies the result to the BreakTree
// and pushes the affected range to the editor.
func (a *Agent) onExternal(e transport.External) {
	if e.Seq < a.latestServerSeq {
		// Out-of-order delivery across a reconnect is rare but not a
		// protocol violation on its own; ot.py's shadow-history rebasing
		// makes it possible, so this is worth a log line, not a fatal.
		a.log.Warn("external seq older than latest known",
			zap.Int("seq", e.Seq), zap.Int("latest", a.latestServerSeq))
	}
	a.latestServerSeq = e.Seq

	op := e.Op
	for _, entry := range a.inflight {
		transformed, ok := ot.After(op, entry.op)
		if !ok {
			return // fully subsumed by our own in-flight edit; nothing to apply
		}
		op = transformed
	}

	a.applyRemoteOp(op)
}

func (a *Agent) onAccept(ac transport.Accept) {
	if len(a.inflight) == 0 || a.inflight[0].seq != ac.Seq {
		a.fatal(fmt.Errorf("accept for seq %d does not match inflight head", ac.Seq))
		return
	}
	a.inflight = a.inflight[1:]
	a.tr.Ack(ac.Seq)
}

// applyRemoteOp mutates the BreakTree and mirrors the change onto the
// editor buffer. It never mutates a.seq/a.inflight: those only change on
// local edits and Accepts.
func (a *Agent) applyRemoteOp(op ot.Op) {
	if a.tree == nil {
		a.fatal(fmt.Errorf("external op arrived before first sync"))
		return
	}

	switch o := op.(type) {
	case ot.Insert:
		sl, sc, err := a.tree.InsertText(o.Idx, o.Text)
		if err != nil {
			a.fatal(fmt.Errorf("apply external insert: %w", err))
			return
		}
		a.pushReplace(sl, sc, sl, sc, strings.Split(o.Text, "\n"))
	case ot.Delete:
		_, sl, sc, el, ec, err := a.tree.DeleteText(o.Idx, o.NChars)
		if err != nil {
			a.fatal(fmt.Errorf("apply external delete: %w", err))
			return
		}
		a.pushReplace(sl, sc, el, ec, []string{""})
	default:
		a.fatal(fmt.Errorf("unknown op type %T", op))
	}
}

func (a *Agent) pushReplace(sl, sc, el, ec int, lines []string) {
	if err := a.cfg.Host.SetText(a.cfg.Buf, sl, sc, el, ec, lines); err != nil {
		a.cfg.Errors.Report(fmt.Errorf("agent: SetText: %w", err))
	}
}

// HandleLocalEdit is registered with the editor host via OnBytes; the
// host guarantees it runs on the editor thread, so it may touch the
// BreakTree directly without going through the inbox.
func (a *Agent) HandleLocalEdit(ev ByteEvent) {
	if !a.firstSynced {
		a.pendingLocal = append(a.pendingLocal, ev)
		return
	}
	a.applyLocalEvent(ev)
}

// applyLocalEvent turns one on_bytes report into zero, one, or two OT
// ops. on_bytes reports a single byte-range replacement; the algebra
// only knows Insert and Delete, so a replacement (old_len > 0 and
// new_len > 0) is modeled as a Delete immediately followed by an Insert,
// each submitted as its own Submission. This split is not specified by
// spec.md (the editor's buffer API is explicitly out of the core's
// scope beyond what it consumes) but is the natural decomposition given
// the two-op algebra.
func (a *Agent) applyLocalEvent(ev ByteEvent) {
	if ev.OldLen > 0 {
		removed, _, _, _, _, err := a.tree.DeleteText(ev.CharStart, ev.OldLen)
		if err != nil {
			a.cfg.Errors.Report(fmt.Errorf("agent: local delete: %w", err))
			return
		}
		a.submitLocal(ot.Delete{Idx: ev.CharStart, NChars: ev.OldLen, Text: removed, HasText: true})
	}

	if ev.NewLen > 0 {
		lines, err := a.cfg.Host.GetText(a.cfg.Buf, ev.StartRow, ev.StartCol, ev.NewEndRow, ev.NewEndCol)
		if err != nil {
			a.cfg.Errors.Report(fmt.Errorf("agent: local insert read-back: %w", err))
			return
		}
		text := strings.Join(lines, "\n")
		if _, _, err := a.tree.InsertText(ev.CharStart, text); err != nil {
			a.cfg.Errors.Report(fmt.Errorf("agent: local insert: %w", err))
			return
		}
		a.submitLocal(ot.Insert{Idx: ev.CharStart, Text: text})
	}
}

// submitLocal computes the parent reference per spec.md §4.6: the tail
// of our own inflight queue if non-empty, otherwise the last external
// seq we've observed with the reserved server author id 0.
func (a *Agent) submitLocal(op ot.Op) {
	var parentSeq, parentID int
	if n := len(a.inflight); n > 0 {
		parentSeq = a.inflight[n-1].seq
		parentID = a.authorID
	} else {
		parentSeq = a.latestServerSeq
		parentID = 0
	}

	a.seq++
	seq := a.seq

	a.inflight = append(a.inflight, inflightEntry{seq: seq, op: op})
	a.tr.Enqueue(transport.Submission{Seq: seq, ParentSeq: parentSeq, ParentID: parentID, Op: op})
}

func (a *Agent) fatal(err error) {
	fe := &FatalError{Err: err}
	a.log.Error("giving up on doc sync", zap.Error(fe))
	a.cfg.Errors.Report(fe)

	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
