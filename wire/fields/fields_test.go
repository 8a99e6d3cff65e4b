package fields

import (
	"reflect"
	"testing"
)

func TestSplitFixed(t *testing.T) {
	got, err := Split("a::b:", ":", 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"a", "", "b", ""}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestSplitNotEnoughFields(t *testing.T) {
	if _, err := Split("a::b:", ":", 5); err != ErrNotEnoughFields {
		t.Fatalf("expected ErrNotEnoughFields, got %v", err)
	}
}

func TestSplitRetainsExtraSeparatorsInFinalField(t *testing.T) {
	got, err := Split("s:1:0:0:i:5:hello:world", ":", 6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"s", "1", "0", "0", "i", "5:hello:world"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestSplitSoftAllOccurrences(t *testing.T) {
	got := SplitSoft("a::b:", ":")
	want := []string{"a", "", "b", ""}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestSplitSoftWithLimitShortInput(t *testing.T) {
	got := SplitSoft("a:b", ":", 5)
	want := []string{"a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}
