// Package breaktree implements a line-indexed balanced tree (an Andersson
// tree ordered by document byte position) that maps between an absolute
// character offset and (line, column) coordinates in sub-linear time,
// while tracking each line's own text so deletions can report exactly
// what they removed.
//
// A new, empty document is a single "ghost" line whose text is "\n": this
// makes InsertText(0, ...) uniform on an empty document and makes every
// real line terminate with "\n". The ghost's text is not kept at "\n"
// afterwards: the last line of the document holds whatever follows the
// final "\n", which may be empty or may lack a trailing "\n".
package breaktree

import (
	"errors"
	"strings"
)

// ErrOutOfRange is returned by Find when charIdx does not name a position
// inside the document.
var ErrOutOfRange = errors.New("breaktree: index out of range")

// Tree is a balanced tree of Lines, ordered by document position, plus a
// doubly-linked list of the same Lines in document order.
type Tree struct {
	root *Line
	head *Line
}

// NewTree returns an empty document: a single ghost line.
func NewTree() *Tree {
	ghost := newLine("\n")
	return &Tree{root: ghost, head: ghost}
}

// NewTreeFromText builds a tree holding exactly text, splitting it into
// lines the same way InsertText would. It does not go through
// InsertText(0, text) on a fresh tree: that would insert text ahead of
// the ghost's own placeholder "\n" and leave a spurious trailing blank
// line. Instead the ghost's placeholder text is replaced by the final
// (possibly empty, possibly newline-less) segment of text, and every
// earlier segment becomes its own line ahead of the ghost.
func NewTreeFromText(text string) *Tree {
	t := NewTree()

	ghost := t.root
	segments := strings.SplitAfter(text, "\n")
	last := len(segments) - 1

	for i := 0; i < last; i++ {
		t.insertLine(ghost, segments[i])
	}

	oldLen := len(ghost.text)
	ghost.text = segments[last]
	fixLsums(ghost, len(segments[last])-oldLen)

	return t
}

// Text reconstructs the full document by walking the linked list.
func (t *Tree) Text() string {
	var b strings.Builder
	for n := t.head; n != nil; n = n.next {
		b.WriteString(n.text)
	}
	return b.String()
}

// Len returns the total byte length of the document, ghost line included.
func (t *Tree) Len() int {
	return totalLen(t.root)
}

func totalLen(n *Line) int {
	if n == nil {
		return 0
	}
	return n.lsum + len(n.text) + totalLen(n.r)
}

// Find descends the tree using lsum to locate the line containing
// charIdx, returning the line, its 0-based line number, and the column
// (byte offset within the line's own text).
func (t *Tree) Find(charIdx int) (*Line, int, int, error) {
	if charIdx < 0 {
		return nil, 0, 0, ErrOutOfRange
	}
	n, lineIdx, col, ok := findRec(t.root, charIdx, 0)
	if !ok {
		return nil, 0, 0, ErrOutOfRange
	}
	return n, lineIdx, col, nil
}

func findRec(n *Line, idx, lineBase int) (*Line, int, int, bool) {
	if n == nil {
		return nil, 0, 0, false
	}
	if idx < n.lsum {
		return findRec(n.l, idx, lineBase)
	}
	rest := idx - n.lsum
	lineHere := lineBase + n.lcount
	if rest < len(n.text) {
		return n, lineHere, rest, true
	}
	if rest == len(n.text) && n.r == nil {
		// idx names the position exactly one past the last byte of the
		// whole document: land on the last line's own trailing column
		// rather than falling off the tree.
		return n, lineHere, rest, true
	}
	return findRec(n.r, rest-len(n.text), lineHere+1)
}

// fixLsums walks from node up to the root, adding delta to the lsum of
// every ancestor for which node lies in the left subtree.
func fixLsums(node *Line, delta int) {
	child := node
	parent := node.parent
	for parent != nil {
		if parent.l == child {
			parent.lsum += delta
		}
		child = parent
		parent = parent.parent
	}
}

// InsertText inserts text at idx, returning the (line, column) at which
// the insertion began. If text contains no newline, the target line
// simply grows; otherwise it is split into a prefix segment, zero or
// more whole middle lines, and a suffix segment, each new segment
// becoming its own Line via insertLine (or appendLineAfter when the
// target is the document's last line).
func (t *Tree) InsertText(idx int, text string) (int, int, error) {
	line, lineIdx, col, err := t.Find(idx)
	if err != nil {
		return 0, 0, err
	}

	// The branch is on the resulting content, not on text alone: when the
	// target is the tail line and col sits at its very start, the tail's
	// own trailing "\n" is part of the suffix, so even newline-free text
	// can still produce a multi-line split.
	content := line.text[:col] + text + line.text[col:]

	if !strings.Contains(content, "\n") {
		oldLen := len(line.text)
		line.text = content
		fixLsums(line, len(content)-oldLen)
		return lineIdx, col, nil
	}

	after := line.next
	segments := strings.SplitAfter(content, "\n")
	// A trailing empty segment is only meaningful when there is no line
	// after this one to anchor on: it becomes the new tail. Otherwise it
	// is an artifact of content ending exactly on a "\n" boundary, and
	// keeping it would duplicate the line that already follows.
	if after != nil && segments[len(segments)-1] == "" {
		segments = segments[:len(segments)-1]
	}

	oldLen := len(line.text)
	line.text = segments[0]
	fixLsums(line, len(segments[0])-oldLen)

	if after == nil {
		prev := line
		for i := 1; i < len(segments); i++ {
			prev = t.appendLineAfter(prev, segments[i])
		}
	} else {
		for i := 1; i < len(segments); i++ {
			t.insertLine(after, segments[i])
		}
	}

	return lineIdx, col, nil
}

// DeleteText removes nchars characters starting at idx, returning the
// removed bytes and the editor-ready range: (sl, sc) is the start; (el,
// ec) is the end, with el end-inclusive and ec end-exclusive. If the
// computed ec is 0, el is decremented and ec set to the length of that
// (now-final) line's text, per spec.
func (t *Tree) DeleteText(idx, nchars int) (string, int, int, int, int, error) {
	if nchars < 1 {
		return "", 0, 0, 0, 0, errors.New("breaktree: nchars must be >= 1")
	}

	startLine, sl, sc, err := t.Find(idx)
	if err != nil {
		return "", 0, 0, 0, 0, err
	}
	endLine, el, ec, err := t.Find(idx + nchars)
	if err != nil {
		return "", 0, 0, 0, 0, err
	}

	if startLine == endLine {
		removed := startLine.text[sc:ec]
		startLine.text = startLine.text[:sc] + startLine.text[ec:]
		fixLsums(startLine, -len(removed))
		el, ec = adjustEnd(startLine, el, ec)
		return removed, sl, sc, el, ec, nil
	}

	// Collect the removed text and the nodes to delete before mutating
	// anything: deleting nodes as we go would invalidate a naive forward
	// walk over .next.
	var removed strings.Builder
	removed.WriteString(startLine.text[sc:])
	var toDelete []*Line
	for n := startLine.next; n != endLine; n = n.next {
		removed.WriteString(n.text)
		toDelete = append(toDelete, n)
	}
	removed.WriteString(endLine.text[:ec])
	toDelete = append(toDelete, endLine)

	// prevOfEnd aliases startLine itself when the deletion spans exactly
	// two adjacent lines, so its pre-edit length must be snapshotted here,
	// before startLine.text is overwritten with the merged content below.
	prevOfEnd := endLine.prev
	prevOfEndLen := len(prevOfEnd.text)

	newStartText := startLine.text[:sc] + endLine.text[ec:]
	oldLen := len(startLine.text)
	startLine.text = newStartText
	fixLsums(startLine, len(newStartText)-oldLen)

	for _, n := range toDelete {
		t.deleteLine(n)
	}

	el, ec = adjustEndAcrossLines(sl, prevOfEnd, prevOfEndLen, el, ec)
	return removed.String(), sl, sc, el, ec, nil
}

// adjustEnd applies the "ec==0 means back up one line" rule for a
// same-line deletion (the end line never changes identity here).
func adjustEnd(line *Line, el, ec int) (int, int) {
	if ec != 0 {
		return el, ec
	}
	if line.prev != nil {
		return el - 1, len(line.prev.text)
	}
	return el, ec
}

// adjustEndAcrossLines applies the same rule when the deletion spanned
// multiple lines; prevOfEnd is the line that immediately preceded the
// original end line, and prevOfEndLen is that line's length as it stood
// before the merge (prevOfEnd may alias the already-mutated start line
// when the deletion spans exactly two adjacent lines, so its current
// .text can't be read here).
func adjustEndAcrossLines(sl int, prevOfEnd *Line, prevOfEndLen int, el, ec int) (int, int) {
	if ec != 0 {
		return el, ec
	}
	if prevOfEnd != nil {
		return el - 1, prevOfEndLen
	}
	return sl, 0
}
