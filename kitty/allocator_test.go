package kitty

import (
	"errors"
	"math"
	"testing"

	"github.com/tolelom/kittychain/internal/testutil"
)

func TestAllocatorSequence(t *testing.T) {
	a := NewAllocator(testutil.NewStateDB(), 3)
	for want := uint32(0); want < 3; want++ {
		id, err := a.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if id != want {
			t.Fatalf("id: got %d want %d", id, want)
		}
		// Next alone must not consume the id.
		if again, _ := a.Next(); again != id {
			t.Fatalf("Next consumed id %d", id)
		}
		if err := a.Advance(id); err != nil {
			t.Fatalf("Advance(%d): %v", id, err)
		}
	}
	if _, err := a.Next(); !errors.Is(err, ErrCounterOverflow) {
		t.Fatalf("past limit: got %v want ErrCounterOverflow", err)
	}
	if n, _ := a.Count(); n != 3 {
		t.Errorf("count: got %d want 3", n)
	}
}

func TestAllocatorAdvanceOutOfOrder(t *testing.T) {
	a := NewAllocator(testutil.NewStateDB(), 0)
	if err := a.Advance(5); err == nil {
		t.Fatal("advancing past the counter should fail")
	}
}

// TestAllocatorFullRange verifies the default limit stops at MaxUint32
// instead of wrapping to zero.
func TestAllocatorFullRange(t *testing.T) {
	st := testutil.NewStateDB()
	if err := st.SetKittyCount(math.MaxUint32 - 1); err != nil {
		t.Fatal(err)
	}
	a := NewAllocator(st, 0)
	id, err := a.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if id != math.MaxUint32-1 {
		t.Fatalf("id: got %d", id)
	}
	if err := a.Advance(id); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Next(); !errors.Is(err, ErrCounterOverflow) {
		t.Fatalf("got %v want ErrCounterOverflow", err)
	}
}
