package kitty

import "fmt"

// Ledger is the balance collaborator the marketplace and mint step call into.
type Ledger interface {
	Reserve(addr string, amount uint64) error
	Unreserve(addr string, amount uint64) error
	Transfer(from, to string, amount uint64, keepAlive bool) error
	RepatriateReserved(from, to string, amount uint64) error
}

// Market owns the sale-price field and the buy protocol.
type Market struct {
	registry *Registry
	owned    *OwnershipIndex
	ledger   Ledger
}

// NewMarket wires a market. A sale moves the kitty's recorded deposit: the
// buyer reserves it and the seller gets it back.
func NewMarket(registry *Registry, owned *OwnershipIndex, ledger Ledger) *Market {
	return &Market{registry: registry, owned: owned, ledger: ledger}
}

// List sets or clears the asking price. No funds move.
func (m *Market) List(id uint32, caller string, price *uint64) error {
	k, err := m.registry.Get(id)
	if err != nil {
		return err
	}
	if k.Owner != caller {
		return ErrNotOwner
	}
	return m.registry.SetPrice(id, price)
}

// Sale describes a completed purchase.
type Sale struct {
	KittyID uint32
	Seller  string
	Buyer   string
	Price   uint64
}

// Buy purchases a listed kitty at its asking price. The caller's state
// snapshot must cover the call: a ledger failure part way through leaves
// earlier writes for the caller to revert.
func (m *Market) Buy(id uint32, buyer string) (*Sale, error) {
	k, err := m.registry.Get(id)
	if err != nil {
		return nil, err
	}
	seller := k.Owner
	if buyer == seller {
		return nil, ErrBuyFromSelf
	}
	if k.Price == nil {
		return nil, fmt.Errorf("%w: %d", ErrNotForSale, id)
	}
	price := *k.Price

	room, err := m.owned.HasRoom(buyer)
	if err != nil {
		return nil, err
	}
	if !room {
		return nil, ErrCapacityExceeded
	}

	if err := m.ledger.Reserve(buyer, k.Deposit); err != nil {
		return nil, fmt.Errorf("reserve buyer deposit: %w", err)
	}
	if err := m.ledger.Unreserve(seller, k.Deposit); err != nil {
		return nil, fmt.Errorf("release seller deposit: %w", err)
	}
	if err := m.ledger.Transfer(buyer, seller, price, true); err != nil {
		return nil, fmt.Errorf("pay seller: %w", err)
	}

	if err := m.owned.Transfer(seller, buyer, id); err != nil {
		return nil, err
	}
	if err := m.registry.SetOwner(id, buyer); err != nil {
		return nil, err
	}
	return &Sale{KittyID: id, Seller: seller, Buyer: buyer, Price: price}, nil
}
