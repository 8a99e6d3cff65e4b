// Package ot implements the operational-transform algebra that the agent
// uses to reconcile concurrent insert/delete edits: composition against
// text, rebasing one op against another that already happened, and
// detecting when two ops conflict.
package ot

import "fmt"

// Op is a single insert or delete operation against a document's byte
// offsets. It is a closed sum type: the only implementations are Insert
// and Delete.
type Op interface {
	// Apply returns text with this op applied.
	Apply(text string) string

	isOp()
}

// Insert inserts Text at byte offset Idx.
type Insert struct {
	Idx  int
	Text string
}

// Delete removes NChars bytes starting at byte offset Idx. Text, when
// present, is the content that was removed — populated when the op
// originates from a local editor event that captured it, absent on
// incoming ops. After keeps Text on a Delete it only shifts and drops it
// on a Delete whose range it changes.
type Delete struct {
	Idx    int
	NChars int
	Text   string // optional; meaningful only when HasText is true
	HasText bool
}

func (Insert) isOp() {}
func (Delete) isOp() {}

// Apply returns text[:Idx] + Text + text[Idx:].
func (op Insert) Apply(text string) string {
	return text[:op.Idx] + op.Text + text[op.Idx:]
}

// Apply returns text with [Idx, Idx+NChars) removed.
func (op Delete) Apply(text string) string {
	return text[:op.Idx] + text[op.Idx+op.NChars:]
}

// Inverse returns the op that would cancel this one if applied right after
// it. A Delete can only be inverted if it captured the text it removed.
func (op Insert) Inverse() (Op, bool) {
	return Delete{Idx: op.Idx, NChars: len(op.Text), Text: op.Text, HasText: true}, true
}

// Inverse returns the op that would cancel this one if applied right after
// it. Returns ok=false when the Delete has no captured Text.
func (op Delete) Inverse() (Op, bool) {
	if !op.HasText {
		return nil, false
	}
	return Insert{Idx: op.Idx, Text: op.Text}, true
}

func (op Insert) String() string {
	return fmt.Sprintf("Insert{%d,%q}", op.Idx, op.Text)
}

func (op Delete) String() string {
	if op.HasText {
		return fmt.Sprintf("Delete{%d,%d,%q}", op.Idx, op.NChars, op.Text)
	}
	return fmt.Sprintf("Delete{%d,%d}", op.Idx, op.NChars)
}

// Apply applies op to text. It is a free function mirroring Op.Apply, kept
// for symmetry with After and Conflicts below, which also take two Ops.
func Apply(op Op, text string) string {
	return op.Apply(text)
}
