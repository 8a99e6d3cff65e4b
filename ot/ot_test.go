package ot

import (
	"math/rand"
	"testing"
)

func TestApplyInsert(t *testing.T) {
	got := Apply(Insert{Idx: 0, Text: "hello "}, "world")
	if got != "hello world" {
		t.Fatalf("got %q", got)
	}
}

func TestApplyDelete(t *testing.T) {
	got := Apply(Delete{Idx: 5, NChars: 6}, "hello world")
	if got != "hello" {
		t.Fatalf("got %q", got)
	}
}

func TestAfterInsertInsert(t *testing.T) {
	got, ok := After(Insert{Idx: 5, Text: "abc"}, Insert{Idx: 5, Text: "xyz"})
	if !ok {
		t.Fatal("expected ok")
	}
	want := Insert{Idx: 8, Text: "abc"}
	if got != want {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestAfterDeleteInsertSwallow(t *testing.T) {
	got, ok := After(Delete{Idx: 5, NChars: 6}, Insert{Idx: 7, Text: "xyz"})
	if !ok {
		t.Fatal("expected ok")
	}
	want := Delete{Idx: 5, NChars: 9}
	if got != want {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestAfterDeleteDeleteFullyCovered(t *testing.T) {
	_, ok := After(Delete{Idx: 5, NChars: 6}, Delete{Idx: 4, NChars: 7})
	if ok {
		t.Fatal("expected null result")
	}
}

func TestAfterDeleteDeleteOtherInsideRange(t *testing.T) {
	got, ok := After(Delete{Idx: 5, NChars: 6}, Delete{Idx: 6, NChars: 4})
	if !ok {
		t.Fatal("expected ok")
	}
	want := Delete{Idx: 5, NChars: 2}
	if got != want {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestConflictsInsertInsert(t *testing.T) {
	if !Conflicts(Insert{Idx: 5, Text: "a"}, Insert{Idx: 5, Text: "b"}) {
		t.Fatal("expected conflict")
	}
	if Conflicts(Insert{Idx: 5, Text: "a"}, Insert{Idx: 6, Text: "b"}) {
		t.Fatal("expected no conflict")
	}
}

func TestConflictsDeleteDeleteTouchingEndpoints(t *testing.T) {
	if !Conflicts(Delete{Idx: 5, NChars: 6}, Delete{Idx: 11, NChars: 1}) {
		t.Fatal("expected touching endpoints to conflict")
	}
}

func TestConflictsSymmetric(t *testing.T) {
	pairs := []struct{ a, b Op }{
		{Insert{Idx: 5, Text: "a"}, Insert{Idx: 5, Text: "b"}},
		{Insert{Idx: 3, Text: "a"}, Delete{Idx: 3, NChars: 4}},
		{Delete{Idx: 3, NChars: 4}, Delete{Idx: 7, NChars: 2}},
		{Delete{Idx: 0, NChars: 1}, Delete{Idx: 5, NChars: 1}},
	}
	for _, p := range pairs {
		if Conflicts(p.a, p.b) != Conflicts(p.b, p.a) {
			t.Fatalf("conflicts(%v,%v) != conflicts(%v,%v)", p.a, p.b, p.b, p.a)
		}
	}
}

func TestApplyLengthDelta(t *testing.T) {
	text := "hello world"
	ins := Insert{Idx: 3, Text: "XYZ"}
	if got := len(Apply(ins, text)); got != len(text)+len(ins.Text) {
		t.Fatalf("insert length delta mismatch: got %d", got)
	}
	del := Delete{Idx: 2, NChars: 4}
	if got := len(Apply(del, text)); got != len(text)-del.NChars {
		t.Fatalf("delete length delta mismatch: got %d", got)
	}
}

// TestConvergence checks that two concurrent ops rebased against each
// other, then applied in the resulting order, converge on the same text:
// apply(after(a,b), apply(b,T)) == apply(after(b,a), apply(a,T)).
func TestConvergence(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	randOp(rng, 0) // docLen 0 returns a fixed op without drawing from rng

	for trial := 0; trial < 2000; trial++ {
		text := randomText(rng, 20)
		a := randOp(rng, len(text))
		b := randOp(rng, len(text))

		// Two inserts at the exact same idx are a genuine tie: After(a,b)
		// and After(b,a) each break the tie in favor of their second
		// argument, so the two resulting orders are mirror images of each
		// other ("ba" vs "ab"), not the same text. Convergence for that
		// exact case requires an extra-algebraic tiebreak (e.g. author
		// id), which §4.3 deliberately leaves to callers.
		if ai, aok := a.(Insert); aok {
			if bi, bok := b.(Insert); bok && ai.Idx == bi.Idx {
				continue
			}
		}

		aAfterB, aOK := After(a, b)
		bAfterA, bOK := After(b, a)

		// apply(after(a,b), apply(b,T)) == apply(after(b,a), apply(a,T))
		var left, right string
		if aOK {
			left = Apply(aAfterB, Apply(b, text))
		} else {
			left = Apply(b, text)
		}
		if bOK {
			right = Apply(bAfterA, Apply(a, text))
		} else {
			right = Apply(a, text)
		}

		if left != right {
			t.Fatalf("divergence: text=%q a=%v b=%v left=%q right=%q", text, a, b, left, right)
		}
	}
}

func randomText(rng *rand.Rand, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + rng.Intn(26))
	}
	return string(b)
}

func randOp(rng *rand.Rand, docLen int) Op {
	if docLen == 0 {
		return Insert{Idx: 0, Text: "x"}
	}
	idx := rng.Intn(docLen + 1)
	if rng.Intn(2) == 0 {
		return Insert{Idx: idx, Text: string(byte('A' + rng.Intn(26)))}
	}
	maxN := docLen - idx
	if maxN < 1 {
		maxN = 1
	}
	n := rng.Intn(maxN) + 1
	if idx+n > docLen {
		n = docLen - idx
		if n < 1 {
			return Insert{Idx: idx, Text: "y"}
		}
	}
	return Delete{Idx: idx, NChars: n}
}
