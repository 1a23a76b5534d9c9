package core

import "testing"

func TestBudget(t *testing.T) {
	b := NewBudget(2)

	if n, ok := b.Take(); !ok || n != 1 {
		t.Fatalf("expected 1/true, got %d/%v", n, ok)
	}
	if n, ok := b.Take(); !ok || n != 2 {
		t.Fatalf("expected 2/true, got %d/%v", n, ok)
	}
	if _, ok := b.Take(); ok {
		t.Fatalf("expected exhausted budget")
	}
	if b.Used() != 2 || b.Remaining() != 0 {
		t.Fatalf("unexpected used=%d remaining=%d", b.Used(), b.Remaining())
	}
}

func TestBudget_Unlimited(t *testing.T) {
	b := NewBudget(0)
	for i := 0; i < 100; i++ {
		if _, ok := b.Take(); !ok {
			t.Fatalf("unlimited budget exhausted at %d", i)
		}
	}
	if b.Remaining() != -1 {
		t.Fatalf("expected -1, got %d", b.Remaining())
	}
}
