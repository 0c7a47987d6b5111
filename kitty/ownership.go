package kitty

import (
	"fmt"
	"slices"

	"github.com/tolelom/kittychain/core"
)

// OwnershipIndex maps each account to the ordered, bounded list of kitty
// ids it owns. It mirrors the Registry's owner field and is only mutated
// together with it.
type OwnershipIndex struct {
	state    core.State
	capacity int
}

// NewOwnershipIndex returns an index capping every account at capacity kitties.
func NewOwnershipIndex(state core.State, capacity int) *OwnershipIndex {
	return &OwnershipIndex{state: state, capacity: capacity}
}

// List returns the ids owned by owner in acquisition order.
func (o *OwnershipIndex) List(owner string) ([]uint32, error) {
	ids, err := o.state.GetOwnedKitties(owner)
	if err != nil {
		return nil, fmt.Errorf("load owned kitties of %s: %w", owner, err)
	}
	return ids, nil
}

// HasRoom reports whether owner can take one more kitty.
func (o *OwnershipIndex) HasRoom(owner string) (bool, error) {
	ids, err := o.List(owner)
	if err != nil {
		return false, err
	}
	return len(ids) < o.capacity, nil
}

// Add appends id to owner's list.
func (o *OwnershipIndex) Add(owner string, id uint32) error {
	ids, err := o.List(owner)
	if err != nil {
		return err
	}
	if len(ids) >= o.capacity {
		return fmt.Errorf("%w (%d)", ErrCapacityExceeded, o.capacity)
	}
	return o.state.SetOwnedKitties(owner, append(ids, id))
}

// Remove deletes id from owner's list, keeping the order of the rest.
func (o *OwnershipIndex) Remove(owner string, id uint32) error {
	ids, err := o.List(owner)
	if err != nil {
		return err
	}
	rest, err := without(ids, id)
	if err != nil {
		return fmt.Errorf("%s: %w", owner, err)
	}
	return o.state.SetOwnedKitties(owner, rest)
}

// Transfer moves id from one list to the other. The recipient's capacity
// is checked before either list is written.
func (o *OwnershipIndex) Transfer(from, to string, id uint32) error {
	if from == to {
		return ErrTransferToSelf
	}
	src, err := o.List(from)
	if err != nil {
		return err
	}
	dst, err := o.List(to)
	if err != nil {
		return err
	}
	if len(dst) >= o.capacity {
		return fmt.Errorf("%w (%d)", ErrCapacityExceeded, o.capacity)
	}
	rest, err := without(src, id)
	if err != nil {
		return fmt.Errorf("%s: %w", from, err)
	}
	if err := o.state.SetOwnedKitties(from, rest); err != nil {
		return err
	}
	return o.state.SetOwnedKitties(to, append(dst, id))
}

func without(ids []uint32, id uint32) ([]uint32, error) {
	i := slices.Index(ids, id)
	if i < 0 {
		return nil, fmt.Errorf("kitty %d missing from ownership index", id)
	}
	return slices.Delete(slices.Clone(ids), i, i+1), nil
}
