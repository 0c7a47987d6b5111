package kitty

import (
	"fmt"
	"math"

	"github.com/tolelom/kittychain/core"
)

// Allocator hands out kitty ids from the persisted counter. The counter
// starts at 0 and only moves when a mint commits through Advance.
type Allocator struct {
	state core.State
	limit uint32
}

// NewAllocator returns an allocator whose ids stay below limit. A zero
// limit means math.MaxUint32.
func NewAllocator(state core.State, limit uint32) *Allocator {
	if limit == 0 {
		limit = math.MaxUint32
	}
	return &Allocator{state: state, limit: limit}
}

// Next returns the id the next mint will receive without consuming it.
// Once the counter reaches the limit minting is permanently disabled.
func (a *Allocator) Next() (uint32, error) {
	n, err := a.state.GetKittyCount()
	if err != nil {
		return 0, fmt.Errorf("read kitty counter: %w", err)
	}
	if n >= a.limit {
		return 0, ErrCounterOverflow
	}
	return n, nil
}

// Advance records id as used. It must run inside the same snapshot as the
// rest of the mint.
func (a *Allocator) Advance(id uint32) error {
	n, err := a.state.GetKittyCount()
	if err != nil {
		return fmt.Errorf("read kitty counter: %w", err)
	}
	if id != n {
		return fmt.Errorf("advance kitty counter: id %d is not the next id %d", id, n)
	}
	if id >= a.limit {
		return ErrCounterOverflow
	}
	return a.state.SetKittyCount(id + 1)
}

// Count returns how many kitties have ever been minted.
func (a *Allocator) Count() (uint32, error) {
	return a.state.GetKittyCount()
}
