package agent

// ByteEvent mirrors the editor's on_bytes callback shape: an absolute
// byte-range edit reported after the fact, plus the row/col deltas the
// editor already computed for its own bookkeeping. CharStart is the
// absolute byte offset the edit begins at; OldLen and NewLen are the
// byte lengths of the range before and after the edit.
type ByteEvent struct {
	Buf       int
	Tick      int
	StartRow  int
	StartCol  int
	CharStart int
	OldEndRow int
	OldEndCol int
	OldLen    int
	NewEndRow int
	NewEndCol int
	NewLen    int
}

// EditorByteCallback receives one ByteEvent per local edit.
type EditorByteCallback func(ev ByteEvent)

// EditorHost is the host editor's buffer API, as much of it as the agent
// consumes. Schedule is the only way onto the editor thread; SetLines,
// SetText, and GetText must only be called from within a function passed
// to Schedule (or from OnBytes's own callback, which the host guarantees
// already runs there).
type EditorHost interface {
	// Schedule runs f on the editor thread.
	Schedule(f func())

	// SetLines replaces the line range [start, end) with lines. end == -1
	// means "to the end of the buffer".
	SetLines(buf int, start, end int, strict bool, lines []string) error

	// SetText replaces the sub-line range (sl,sc)-(el,ec) with lines; el is
	// end-inclusive, ec is end-exclusive.
	SetText(buf int, sl, sc, el, ec int, lines []string) error

	// GetText reads back the sub-line range (sl,sc)-(el,ec), same
	// end conventions as SetText.
	GetText(buf int, sl, sc, el, ec int) ([]string, error)

	// OnBytes registers cb to be called for every local edit. The host
	// guarantees cb runs on the editor thread.
	OnBytes(cb EditorByteCallback)
}

// ErrorSink is the editor's error channel: a place to report non-fatal
// failures (a rejected SetText call, a malformed local edit) without
// tearing down the session.
type ErrorSink interface {
	Report(err error)
}
