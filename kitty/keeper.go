// Package kitty implements the kitty lifecycle and marketplace: id
// allocation, DNA derivation, ownership, listing and sale. Every Keeper
// operation either applies all of its writes or none of them.
package kitty

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/tolelom/kittychain/core"
	"github.com/tolelom/kittychain/dna"
	"github.com/tolelom/kittychain/events"
	"github.com/tolelom/kittychain/randomness"
)

// Origin is the authenticated caller of one operation. Index is the call's
// position inside its block and keeps two mints in one block apart.
type Origin struct {
	Account string
	Index   uint32
}

// Deps are the collaborators a Keeper is built with.
type Deps struct {
	Ledger  Ledger
	Random  randomness.Source
	Deriver *dna.Deriver // nil selects the BLAKE2b-128 deriver
	Events  events.Sink  // nil drops notifications
}

// Keeper sequences the registry, ownership index, allocator, deriver and
// market for each public operation.
type Keeper struct {
	state    core.State
	params   core.Params
	registry *Registry
	owned    *OwnershipIndex
	alloc    *Allocator
	market   *Market
	ledger   Ledger
	random   randomness.Source
	deriver  *dna.Deriver
	events   events.Sink
}

// NewKeeper builds a Keeper over state. Unset params fall back to defaults.
func NewKeeper(state core.State, params core.Params, deps Deps) *Keeper {
	params = params.WithDefaults()
	deriver := deps.Deriver
	if deriver == nil {
		deriver = dna.NewDeriver(nil)
	}
	registry := NewRegistry(state)
	owned := NewOwnershipIndex(state, params.MaxOwned)
	return &Keeper{
		state:    state,
		params:   params,
		registry: registry,
		owned:    owned,
		alloc:    NewAllocator(state, params.KittyIndexLimit),
		market:   NewMarket(registry, owned, deps.Ledger),
		ledger:   deps.Ledger,
		random:   deps.Random,
		deriver:  deriver,
		events:   deps.Events,
	}
}

// Create mints a kitty with fresh DNA and gender for the caller.
func (k *Keeper) Create(o Origin) (uint32, error) {
	if o.Account == "" {
		return 0, ErrUnauthenticated
	}
	var id uint32
	err := k.atomic(func() error {
		seed := k.random.Random([]byte("dna"))
		d := k.deriver.Derive(seed, []byte(o.Account), o.Index)
		var err error
		id, err = k.mint(o.Account, d, k.gender(o), true)
		return err
	})
	if err != nil {
		return 0, err
	}
	k.emit(events.EventKittyCreated, map[string]any{"owner": o.Account, "kitty_id": id})
	return id, nil
}

// Breed mints a child of parents a and b for the caller. The parents are
// read, never modified, and need not belong to the caller.
func (k *Keeper) Breed(o Origin, a, b uint32) (uint32, error) {
	if o.Account == "" {
		return 0, ErrUnauthenticated
	}
	if a == b {
		return 0, ErrDuplicateParents
	}
	var id uint32
	err := k.atomic(func() error {
		pa, err := k.registry.Get(a)
		if err != nil {
			return err
		}
		pb, err := k.registry.Get(b)
		if err != nil {
			return err
		}
		seed := k.random.Random([]byte("dna"))
		d := k.deriver.Combine(seed, []byte(o.Account), o.Index, pa.DNA, pb.DNA)
		id, err = k.mint(o.Account, d, k.gender(o), true)
		return err
	})
	if err != nil {
		return 0, err
	}
	k.emit(events.EventKittyCreated, map[string]any{
		"owner":    o.Account,
		"kitty_id": id,
		"parents":  []uint32{a, b},
	})
	return id, nil
}

// Mint registers a kitty with caller-supplied DNA and gender and reserves
// no deposit. Genesis preload uses it.
func (k *Keeper) Mint(owner string, d core.DNA, g core.Gender) (uint32, error) {
	if owner == "" {
		return 0, ErrUnauthenticated
	}
	if !g.Valid() {
		return 0, fmt.Errorf("invalid gender %q", g)
	}
	var id uint32
	err := k.atomic(func() error {
		var err error
		id, err = k.mint(owner, d, g, false)
		return err
	})
	if err != nil {
		return 0, err
	}
	k.emit(events.EventKittyCreated, map[string]any{"owner": owner, "kitty_id": id})
	return id, nil
}

// Transfer gives the caller's kitty to another account. Any listing is
// cleared and the deposit recorded on the kitty moves to the recipient's
// reserve.
func (k *Keeper) Transfer(o Origin, to string, id uint32) error {
	if o.Account == "" {
		return ErrUnauthenticated
	}
	err := k.atomic(func() error {
		kt, err := k.registry.Get(id)
		if err != nil {
			return err
		}
		if kt.Owner != o.Account {
			return ErrNotOwner
		}
		if to == o.Account {
			return ErrTransferToSelf
		}
		if err := k.owned.Transfer(o.Account, to, id); err != nil {
			return err
		}
		if err := k.registry.SetOwner(id, to); err != nil {
			return err
		}
		if err := k.ledger.RepatriateReserved(o.Account, to, kt.Deposit); err != nil {
			return fmt.Errorf("move kitty deposit: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	k.emit(events.EventKittyTransferred, map[string]any{"from": o.Account, "to": to, "kitty_id": id})
	return nil
}

// SetPrice lists the caller's kitty at price, or delists it when price is nil.
func (k *Keeper) SetPrice(o Origin, id uint32, price *uint64) error {
	if o.Account == "" {
		return ErrUnauthenticated
	}
	if err := k.atomic(func() error { return k.market.List(id, o.Account, price) }); err != nil {
		return err
	}
	data := map[string]any{"owner": o.Account, "kitty_id": id, "price": nil}
	if price != nil {
		data["price"] = *price
	}
	k.emit(events.EventKittyPriceSet, data)
	return nil
}

// Buy purchases a listed kitty for the caller at its asking price.
func (k *Keeper) Buy(o Origin, id uint32) (*Sale, error) {
	if o.Account == "" {
		return nil, ErrUnauthenticated
	}
	var sale *Sale
	err := k.atomic(func() error {
		var err error
		sale, err = k.market.Buy(id, o.Account)
		return err
	})
	if err != nil {
		return nil, err
	}
	k.emit(events.EventKittySold, map[string]any{
		"kitty_id": id,
		"buyer":    sale.Buyer,
		"seller":   sale.Seller,
		"price":    sale.Price,
	})
	return sale, nil
}

// ---- helpers ----

// mint allocates an id, indexes it under owner, reserves the deposit,
// stores the record and finally advances the counter. The reserved amount
// is recorded on the kitty so transfer and sale move exactly that much.
func (k *Keeper) mint(owner string, d core.DNA, g core.Gender, deposit bool) (uint32, error) {
	id, err := k.alloc.Next()
	if err != nil {
		return 0, err
	}
	if err := k.owned.Add(owner, id); err != nil {
		return 0, err
	}
	var reserved uint64
	if deposit {
		reserved = k.params.KittyDeposit
		if err := k.ledger.Reserve(owner, reserved); err != nil {
			return 0, fmt.Errorf("reserve kitty deposit: %w", err)
		}
	}
	kt := &core.Kitty{ID: id, DNA: d, Gender: g, Owner: owner, Deposit: reserved}
	if err := k.registry.Insert(kt); err != nil {
		return 0, err
	}
	if err := k.alloc.Advance(id); err != nil {
		return 0, err
	}
	return id, nil
}

// gender takes a draw independent of the DNA seed.
func (k *Keeper) gender(o Origin) core.Gender {
	subject := append([]byte("gender"), o.Account...)
	subject = binary.LittleEndian.AppendUint32(subject, o.Index)
	return dna.GenderFrom(k.random.Random(subject))
}

func (k *Keeper) atomic(fn func() error) error {
	snap, err := k.state.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if err := fn(); err != nil {
		if revertErr := k.state.RevertToSnapshot(snap); revertErr != nil {
			return errors.Join(err, fmt.Errorf("revert snapshot: %w", revertErr))
		}
		return err
	}
	return nil
}

func (k *Keeper) emit(typ events.EventType, data map[string]any) {
	if k.events != nil {
		k.events.Emit(events.Event{Type: typ, Data: data})
	}
}
