package ot

// After rebases a so that it applies correctly in a world where b already
// happened. It returns (nil, false) only when b's effect on the document
// has completely subsumed a (the D-after-D "already covered" case); every
// other case returns a non-nil op.
//
// The cases below are byte-exact against spec.md §4.3: ties in I-after-I
// break in favor of b (both inserts land adjacent, b's text first), and an
// insert landing inside or on the boundary of a delete range is clamped to
// the deletion's start rather than the conflicting literal position.
func After(a, b Op) (Op, bool) {
	switch av := a.(type) {
	case Insert:
		switch bv := b.(type) {
		case Insert:
			return afterInsertInsert(av, bv), true
		case Delete:
			return afterInsertDelete(av, bv), true
		}
	case Delete:
		switch bv := b.(type) {
		case Insert:
			return afterDeleteInsert(av, bv), true
		case Delete:
			return afterDeleteDelete(av, bv)
		}
	}
	panic("ot: unreachable op combination")
}

func afterInsertInsert(a Insert, b Insert) Op {
	lb := len(b.Text)
	if b.Idx > a.Idx {
		return a
	}
	// b.Idx <= a.Idx, including the tied case.
	return Insert{Idx: a.Idx + lb, Text: a.Text}
}

func afterInsertDelete(a Insert, b Delete) Op {
	if b.Idx > a.Idx {
		return a
	}
	if b.Idx+b.NChars < a.Idx {
		return Insert{Idx: a.Idx - b.NChars, Text: a.Text}
	}
	// Insert falls into or at the boundary of the deleted range: clamp to
	// the deletion's start.
	return Insert{Idx: b.Idx, Text: a.Text}
}

func afterDeleteInsert(a Delete, b Insert) Op {
	switch {
	case b.Idx > a.Idx+a.NChars:
		return a
	case b.Idx < a.Idx:
		return Delete{Idx: a.Idx + len(b.Text), NChars: a.NChars, Text: a.Text, HasText: a.HasText}
	case b.Idx == a.Idx:
		// Insertion at the left boundary is not captured by the delete.
		return Delete{Idx: a.Idx + len(b.Text), NChars: a.NChars, Text: a.Text, HasText: a.HasText}
	case b.Idx == a.Idx+a.NChars:
		// Insertion at the right boundary is not captured by the delete.
		return a
	default:
		// Insertion strictly inside the delete range: swallow it.
		return Delete{Idx: a.Idx, NChars: a.NChars + len(b.Text)}
	}
}

func afterDeleteDelete(a Delete, b Delete) (Op, bool) {
	switch {
	case b.Idx >= a.Idx+a.NChars:
		return a, true
	case b.Idx+b.NChars <= a.Idx:
		return Delete{Idx: a.Idx - b.NChars, NChars: a.NChars, Text: a.Text, HasText: a.HasText}, true
	case b.Idx <= a.Idx && b.Idx+b.NChars >= a.Idx+a.NChars:
		// b already covered a's range.
		return nil, false
	case b.Idx <= a.Idx && b.Idx+b.NChars < a.Idx+a.NChars:
		overlap := b.NChars - (a.Idx - b.Idx)
		return Delete{Idx: b.Idx, NChars: a.NChars - overlap}, true
	case b.Idx > a.Idx && b.Idx+b.NChars > a.Idx+a.NChars:
		return Delete{Idx: a.Idx, NChars: b.Idx - a.Idx}, true
	default: // b.Idx > a.Idx && b.Idx+b.NChars <= a.Idx+a.NChars
		return Delete{Idx: a.Idx, NChars: a.NChars - b.NChars}, true
	}
}

// Conflicts reports whether a and b touch overlapping positions such that
// their order of application is semantically observable. The geometric
// cases, i marking an insert point and d|___| marking a delete span:
//
//	Insert/insert non-conflict:  i|      i|            (different idx)
//	Insert/insert conflict:      i|
//	                             i|                     (same idx)
//
//	Insert/delete non-conflicts: d|___|  i|
//	                             i|  d|___|             (insert outside span)
//	Insert/delete conflicts:     i|
//	                             d|___|                 (insert at, inside,
//	                                 i|                  or at the end of
//	                             d|___|                  the delete span)
//
//	Delete/delete non-conflict:  d|___|      d|___|     (disjoint spans)
//	Delete/delete conflicts:     d|___|
//	                                d|___|               (any touching or
//	                             d|_____|                 overlapping spans;
//	                               d|___|                 classified as a
//	                                                       conflict even when
//	                             d|___|                    both orders apply
//	                             d|___|                    cleanly, since the
//	                                                       inverses don't)
func Conflicts(a, b Op) bool {
	switch av := a.(type) {
	case Insert:
		switch bv := b.(type) {
		case Insert:
			return av.Idx == bv.Idx
		case Delete:
			return insertDeleteConflict(av, bv)
		}
	case Delete:
		switch bv := b.(type) {
		case Insert:
			return insertDeleteConflict(bv, av)
		case Delete:
			return deleteDeleteConflict(av, bv)
		}
	}
	panic("ot: unreachable op combination")
}

func insertDeleteConflict(i Insert, d Delete) bool {
	return i.Idx >= d.Idx && i.Idx <= d.Idx+d.NChars
}

func deleteDeleteConflict(a, b Delete) bool {
	var lo, hi Delete
	if a.Idx <= b.Idx {
		lo, hi = a, b
	} else {
		lo, hi = b, a
	}
	return lo.Idx+lo.NChars >= hi.Idx
}
