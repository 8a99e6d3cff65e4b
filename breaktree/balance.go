package breaktree

// skew fixes a left-horizontal link (node.l at the same level as node) by
// rotating right, and returns the new root of this local subtree. lsum and
// lcount are patched in place from the two participating nodes' existing
// aggregates rather than recomputed from scratch.
func skew(self *Line) *Line {
	if self == nil {
		return nil
	}
	out := self.l
	if out == nil || out.level != self.level {
		return self
	}

	mid := out.r
	out.r = self
	self.l = mid
	if mid != nil {
		mid.parent = self
	}
	out.parent = self.parent
	self.parent = out

	oldLsum, oldLcount := self.lsum, self.lcount
	self.lsum = oldLsum - out.lsum - len(out.text)
	self.lcount = oldLcount - out.lcount - 1

	return out
}

// split fixes two consecutive right-horizontal links (node.r.r at the same
// level as node) by rotating left and promoting the new subtree root's
// level, returning the new root of this local subtree.
func split(self *Line) *Line {
	if self == nil {
		return nil
	}
	out := self.r
	if out == nil || out.r == nil || out.r.level != self.level {
		return self
	}

	mid := out.l
	out.l = self
	self.r = mid
	if mid != nil {
		mid.parent = self
	}
	out.parent = self.parent
	self.parent = out
	out.level++

	out.lsum += self.lsum + len(self.text)
	out.lcount += self.lcount + 1

	return out
}

func minLevel(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// insertRightmost inserts newNode as the rightmost node of the subtree
// rooted at t (which may be nil), returning the new subtree root. Because
// it only ever recurses right, t's own lsum/lcount (describing t.l) never
// need adjustment here; skew/split handle their own aggregates.
func insertRightmost(t *Line, newNode *Line) *Line {
	if t == nil {
		return newNode
	}
	t.r = insertRightmost(t.r, newNode)
	if t.r != nil {
		t.r.parent = t
	}
	t = skew(t)
	t = split(t)
	return t
}

// insertLine adds a new line with the given text immediately before node,
// in both the linked list and the tree, and returns it.
func (t *Tree) insertLine(node *Line, text string) *Line {
	newNode := newLine(text)

	newNode.prev = node.prev
	newNode.next = node
	if node.prev != nil {
		node.prev.next = newNode
	} else {
		t.head = newNode
	}
	node.prev = newNode

	delta := len(text)

	newLeft := insertRightmost(node.l, newNode)
	node.l = newLeft
	if newLeft != nil {
		newLeft.parent = node
	}
	node.lsum += delta
	node.lcount++

	t.rebalanceInsertUp(node, delta)

	return newNode
}

// appendLineAfter adds a new line holding text immediately after prev,
// which must currently be the last line in the document (prev.next ==
// nil). It becomes the rightmost descendant of the whole tree, which
// needs no lsum/lcount propagation: no ancestor gains it in a left
// subtree.
func (t *Tree) appendLineAfter(prev *Line, text string) *Line {
	newNode := newLine(text)
	newNode.prev = prev
	prev.next = newNode

	newRoot := insertRightmost(t.root, newNode)
	t.root = newRoot
	newRoot.parent = nil

	return newNode
}

// rebalanceInsertUp walks from node to the root, applying skew then split
// at each ancestor and adding delta to the lsum/lcount of every ancestor
// reached by ascending through a left-child link.
func (t *Tree) rebalanceInsertUp(node *Line, delta int) {
	cur := node
	for {
		parent := cur.parent
		wasLeft := parent != nil && parent.l == cur

		newCur := skew(cur)
		newCur = split(newCur)

		if parent == nil {
			t.root = newCur
			newCur.parent = nil
			return
		}

		if wasLeft {
			parent.l = newCur
			parent.lsum += delta
			parent.lcount++
		} else {
			parent.r = newCur
		}
		newCur.parent = parent

		cur = parent
	}
}

// deleteLine removes node's line from the document. If node has a left
// subtree, its in-order predecessor (node.prev, guaranteed to be a leaf)
// is copied into node and the predecessor is the one structurally removed
// instead; otherwise node itself is removed and node.r (a level-0 leaf or
// nil, by the tree invariants) takes its place.
func (t *Tree) deleteLine(node *Line) {
	target := node
	if node.l != nil {
		pred := node.prev
		fixLsums(node, len(pred.text)-len(node.text))
		node.text = pred.text
		target = pred
	}
	t.removeLeafOrHalf(target)
}

func (t *Tree) removeLeafOrHalf(target *Line) {
	if target.prev != nil {
		target.prev.next = target.next
	} else {
		t.head = target.next
	}
	if target.next != nil {
		target.next.prev = target.prev
	}

	parent := target.parent
	replacement := target.r
	if replacement != nil {
		replacement.parent = parent
	}

	delta := -len(target.text)

	if parent == nil {
		t.root = replacement
		return
	}

	wasLeft := parent.l == target
	if wasLeft {
		parent.l = replacement
		parent.lsum += delta
		parent.lcount--
	} else {
		parent.r = replacement
	}

	cur := parent
	for {
		gp := cur.parent
		gpWasLeft := gp != nil && gp.l == cur

		newCur := rebalanceAfterDelete(cur)

		if gp == nil {
			t.root = newCur
			newCur.parent = nil
			return
		}

		if gpWasLeft {
			gp.l = newCur
			gp.lsum += delta
			gp.lcount--
		} else {
			gp.r = newCur
		}
		newCur.parent = gp

		cur = gp
	}
}

// rebalanceAfterDelete restores the AA invariants at cur after a removal
// beneath it: clamp cur's level (and its right child's, if it now ties
// cur's old level) down to one more than the lower of its children's
// levels, or to 0 when either child is missing, then skew cur, its right
// child, and its right-right grandchild, then split cur and its
// (possibly new) right child.
func rebalanceAfterDelete(cur *Line) *Line {
	should := 0
	if cur.l != nil && cur.r != nil {
		should = minLevel(levelOf(cur.l), levelOf(cur.r)) + 1
	}
	if should < cur.level {
		cur.level = should
		if cur.r != nil && should < cur.r.level {
			cur.r.level = should
		}
	}

	cur = skew(cur)
	if cur.r != nil {
		newR := skew(cur.r)
		cur.r = newR
		if newR != nil {
			newR.parent = cur
		}
	}
	if cur.r != nil && cur.r.r != nil {
		newRR := skew(cur.r.r)
		cur.r.r = newRR
		if newRR != nil {
			newRR.parent = cur.r
		}
	}

	cur = split(cur)
	if cur.r != nil {
		newR := split(cur.r)
		cur.r = newR
		if newR != nil {
			newR.parent = cur
		}
	}

	return cur
}
