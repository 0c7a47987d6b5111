package kitty

import (
	"errors"
	"fmt"

	"github.com/tolelom/kittychain/core"
)

// Registry is the source of truth for each kitty's record.
type Registry struct {
	state core.State
}

// NewRegistry returns a Registry over state.
func NewRegistry(state core.State) *Registry {
	return &Registry{state: state}
}

// Insert stores a freshly minted kitty.
func (r *Registry) Insert(k *core.Kitty) error {
	_, err := r.state.GetKitty(k.ID)
	if err == nil {
		return fmt.Errorf("%w: %d", ErrDuplicateKitty, k.ID)
	}
	if !errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("check kitty %d: %w", k.ID, err)
	}
	return r.state.SetKitty(k)
}

// Get returns the kitty with the given id, or ErrInvalidKittyIndex.
func (r *Registry) Get(id uint32) (*core.Kitty, error) {
	k, err := r.state.GetKitty(id)
	if errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidKittyIndex, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load kitty %d: %w", id, err)
	}
	return k, nil
}

// SetPrice lists the kitty at price, or delists it when price is nil.
func (r *Registry) SetPrice(id uint32, price *uint64) error {
	k, err := r.Get(id)
	if err != nil {
		return err
	}
	if price != nil {
		p := *price
		price = &p
	}
	k.Price = price
	return r.state.SetKitty(k)
}

// SetOwner reassigns the kitty and clears its price; a new owner never
// inherits the previous owner's listing. Callers move the ownership index
// entry in the same snapshot.
func (r *Registry) SetOwner(id uint32, owner string) error {
	k, err := r.Get(id)
	if err != nil {
		return err
	}
	k.Owner = owner
	k.Price = nil
	return r.state.SetKitty(k)
}
