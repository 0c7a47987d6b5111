package kitty

import "github.com/tolelom/kittychain/core"

// View answers read-only kitty queries against a state.
type View struct {
	registry *Registry
	owned    *OwnershipIndex
	alloc    *Allocator
}

// NewView builds a View over state. It never writes.
func NewView(state core.State) *View {
	return &View{
		registry: NewRegistry(state),
		owned:    NewOwnershipIndex(state, 0),
		alloc:    NewAllocator(state, 0),
	}
}

// Kitty returns the record for id or ErrInvalidKittyIndex.
func (v *View) Kitty(id uint32) (*core.Kitty, error) { return v.registry.Get(id) }

// Owned returns the ids held by addr in acquisition order.
func (v *View) Owned(addr string) ([]uint32, error) { return v.owned.List(addr) }

// Count returns the number of kitties ever minted.
func (v *View) Count() (uint32, error) { return v.alloc.Count() }
