package blob

import "testing"

func TestBlob_SliceSharesTheBackingArray(t *testing.T) {
	data := []byte("hello world")
	b := New(data)

	view := b.Slice(6, 11)
	if string(view.Bytes()) != "world" {
		t.Fatalf("Slice(6,11) = %q, want %q", view.Bytes(), "world")
	}

	data[6] = 'W'
	if string(view.Bytes()) != "World" {
		t.Fatal("expected Slice to share the backing array with the original")
	}
}

func TestBlob_CloneIsIndependentOfTheSource(t *testing.T) {
	data := []byte("hello")
	b := New(data)
	clone := b.Clone()

	data[0] = 'H'
	if string(clone.Bytes()) != "hello" {
		t.Fatalf("Clone() = %q, want unaffected copy %q", clone.Bytes(), "hello")
	}
}

func TestBlob_IsEmptyAndLen(t *testing.T) {
	empty := New(nil)
	if !empty.IsEmpty() || empty.Len() != 0 {
		t.Fatal("expected New(nil) to be empty with length 0")
	}

	nonEmpty := New([]byte("x"))
	if nonEmpty.IsEmpty() || nonEmpty.Len() != 1 {
		t.Fatal("expected New([]byte(\"x\")) to be non-empty with length 1")
	}
}
