package kitty

import (
	"errors"
	"slices"
	"testing"

	"github.com/tolelom/kittychain/core"
	"github.com/tolelom/kittychain/crypto"
	"github.com/tolelom/kittychain/dna"
	"github.com/tolelom/kittychain/events"
	"github.com/tolelom/kittychain/internal/testutil"
	"github.com/tolelom/kittychain/ledger"
	"github.com/tolelom/kittychain/randomness"
	"github.com/tolelom/kittychain/storage"
)

type recordSink struct{ events []events.Event }

func (r *recordSink) Emit(ev events.Event) { r.events = append(r.events, ev) }

func (r *recordSink) last() events.Event { return r.events[len(r.events)-1] }

// testRandom hashes the subject so every draw is stable and distinct.
var testRandom = randomness.SourceFunc(func(subject []byte) []byte {
	h := crypto.Blake2b256([]byte("kitty-test"), subject)
	return h[:]
})

func testParams() core.Params {
	return core.Params{MaxOwned: 8, KittyDeposit: 100, ExistentialDeposit: 1}
}

func newTestKeeper(t *testing.T, params core.Params, balances map[string]uint64) (*Keeper, *storage.StateDB, *recordSink) {
	t.Helper()
	st := testutil.FundedState(params, balances)
	sink := &recordSink{}
	k := NewKeeper(st, params, Deps{
		Ledger: ledger.New(st, params.ExistentialDeposit),
		Random: testRandom,
		Events: sink,
	})
	return k, st, sink
}

func mustCreate(t *testing.T, k *Keeper, owner string, index uint32) uint32 {
	t.Helper()
	id, err := k.Create(Origin{Account: owner, Index: index})
	if err != nil {
		t.Fatalf("Create(%s): %v", owner, err)
	}
	return id
}

func balance(t *testing.T, st core.State, addr string) (free, reserved uint64) {
	t.Helper()
	acc, err := st.GetAccount(addr)
	if err != nil {
		t.Fatal(err)
	}
	return acc.Balance, acc.Reserved
}

// TestCreateStoresKitty verifies create-then-get returns an unlisted kitty
// owned by the caller and reserves the deposit.
func TestCreateStoresKitty(t *testing.T) {
	k, st, sink := newTestKeeper(t, testParams(), map[string]uint64{"alice": 1000})

	id := mustCreate(t, k, "alice", 0)
	if id != 0 {
		t.Errorf("first id: got %d want 0", id)
	}
	view := NewView(st)
	kt, err := view.Kitty(id)
	if err != nil {
		t.Fatal(err)
	}
	if kt.Owner != "alice" {
		t.Errorf("owner: got %s want alice", kt.Owner)
	}
	if kt.Price != nil {
		t.Errorf("price: got %d want nil", *kt.Price)
	}
	if kt.Deposit != 100 {
		t.Errorf("deposit: got %d want 100", kt.Deposit)
	}
	wantDNA := dna.NewDeriver(nil).Derive(testRandom.Random([]byte("dna")), []byte("alice"), 0)
	if kt.DNA != wantDNA {
		t.Errorf("dna: got %s want %s", kt.DNA, wantDNA)
	}
	if !kt.Gender.Valid() {
		t.Errorf("gender: got %q", kt.Gender)
	}
	owned, _ := view.Owned("alice")
	if !slices.Equal(owned, []uint32{0}) {
		t.Errorf("owned: got %v want [0]", owned)
	}
	if n, _ := view.Count(); n != 1 {
		t.Errorf("count: got %d want 1", n)
	}
	if free, reserved := balance(t, st, "alice"); free != 900 || reserved != 100 {
		t.Errorf("alice balance: got %d/%d want 900/100", free, reserved)
	}
	if len(sink.events) != 1 || sink.last().Type != events.EventKittyCreated {
		t.Fatalf("events: got %+v", sink.events)
	}
	if got := sink.last().Data["kitty_id"]; got != uint32(0) {
		t.Errorf("event kitty_id: got %v", got)
	}
}

// TestCreateDistinctIDsAndDNA verifies sequential ids and that the call index
// separates DNA of mints in the same block.
func TestCreateDistinctIDsAndDNA(t *testing.T) {
	k, st, _ := newTestKeeper(t, testParams(), map[string]uint64{"alice": 1000})

	seen := map[core.DNA]bool{}
	for i := uint32(0); i < 3; i++ {
		id := mustCreate(t, k, "alice", i)
		if id != i {
			t.Errorf("id: got %d want %d", id, i)
		}
		kt, _ := NewView(st).Kitty(id)
		if seen[kt.DNA] {
			t.Errorf("duplicate dna %s", kt.DNA)
		}
		seen[kt.DNA] = true
	}
}

// TestCreateWithoutDeposit verifies a zero deposit mints without reserving.
func TestCreateWithoutDeposit(t *testing.T) {
	params := testParams()
	params.KittyDeposit = 0
	k, st, _ := newTestKeeper(t, params, nil)

	mustCreate(t, k, "alice", 0)
	if free, reserved := balance(t, st, "alice"); free != 0 || reserved != 0 {
		t.Errorf("alice balance: got %d/%d want 0/0", free, reserved)
	}
}

// TestCreateFailuresLeaveStateUnchanged verifies every failed create is a no-op.
func TestCreateFailuresLeaveStateUnchanged(t *testing.T) {
	tests := []struct {
		name    string
		params  func(*core.Params)
		balance uint64
		before  int // successful creates before the failing one
		wantErr error
	}{
		{"counter overflow", func(p *core.Params) { p.KittyIndexLimit = 2 }, 1000, 2, ErrCounterOverflow},
		{"capacity", func(p *core.Params) { p.MaxOwned = 1 }, 1000, 1, ErrCapacityExceeded},
		{"deposit", func(p *core.Params) {}, 150, 1, ledger.ErrInsufficientBalance},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			params := testParams()
			tc.params(&params)
			k, st, sink := newTestKeeper(t, params, map[string]uint64{"alice": tc.balance})
			for i := 0; i < tc.before; i++ {
				mustCreate(t, k, "alice", uint32(i))
			}
			root := st.ComputeRoot()
			emitted := len(sink.events)

			_, err := k.Create(Origin{Account: "alice", Index: uint32(tc.before)})
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err: got %v want %v", err, tc.wantErr)
			}
			if got := st.ComputeRoot(); got != root {
				t.Error("state root changed after failed create")
			}
			if len(sink.events) != emitted {
				t.Error("failed create emitted an event")
			}
		})
	}
}

// TestCounterOverflowIsPermanent verifies minting stays disabled once the
// id space is exhausted.
func TestCounterOverflowIsPermanent(t *testing.T) {
	params := testParams()
	params.KittyIndexLimit = 1
	k, _, _ := newTestKeeper(t, params, map[string]uint64{"alice": 1000, "bob": 1000})

	mustCreate(t, k, "alice", 0)
	for _, who := range []string{"alice", "bob"} {
		if _, err := k.Create(Origin{Account: who}); !errors.Is(err, ErrCounterOverflow) {
			t.Errorf("%s: got %v want ErrCounterOverflow", who, err)
		}
	}
	if _, err := k.Breed(Origin{Account: "bob"}, 0, 1); err == nil {
		t.Error("breed after overflow should fail")
	}
}

func TestCreateUnauthenticated(t *testing.T) {
	k, _, _ := newTestKeeper(t, testParams(), nil)
	if _, err := k.Create(Origin{}); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("got %v want ErrUnauthenticated", err)
	}
}

// TestTransferMovesKittyAndDeposit verifies transfer updates the registry,
// both ownership lists and the reserved deposit.
func TestTransferMovesKittyAndDeposit(t *testing.T) {
	k, st, sink := newTestKeeper(t, testParams(), map[string]uint64{"alice": 1000})
	id := mustCreate(t, k, "alice", 0)
	price := uint64(50)
	if err := k.SetPrice(Origin{Account: "alice"}, id, &price); err != nil {
		t.Fatal(err)
	}

	if err := k.Transfer(Origin{Account: "alice"}, "bob", id); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	view := NewView(st)
	kt, _ := view.Kitty(id)
	if kt.Owner != "bob" {
		t.Errorf("owner: got %s want bob", kt.Owner)
	}
	if kt.Price != nil {
		t.Error("transfer should clear the price")
	}
	if owned, _ := view.Owned("alice"); len(owned) != 0 {
		t.Errorf("alice owned: got %v want []", owned)
	}
	if owned, _ := view.Owned("bob"); !slices.Equal(owned, []uint32{id}) {
		t.Errorf("bob owned: got %v want [%d]", owned, id)
	}
	if _, reserved := balance(t, st, "alice"); reserved != 0 {
		t.Errorf("alice reserved: got %d want 0", reserved)
	}
	if _, reserved := balance(t, st, "bob"); reserved != 100 {
		t.Errorf("bob reserved: got %d want 100", reserved)
	}
	if ev := sink.last(); ev.Type != events.EventKittyTransferred || ev.Data["to"] != "bob" {
		t.Errorf("last event: got %+v", ev)
	}
}

// TestTransferRejections verifies rejected transfers leave state untouched.
func TestTransferRejections(t *testing.T) {
	params := testParams()
	params.MaxOwned = 1
	tests := []struct {
		name    string
		caller  string
		to      string
		id      uint32
		wantErr error
	}{
		{"self", "alice", "alice", 0, ErrTransferToSelf},
		{"not owner", "bob", "carol", 0, ErrNotOwner},
		{"unknown id", "alice", "bob", 9, ErrInvalidKittyIndex},
		{"recipient full", "alice", "bob", 0, ErrCapacityExceeded},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			k, st, _ := newTestKeeper(t, params, map[string]uint64{"alice": 1000, "bob": 1000})
			mustCreate(t, k, "alice", 0)
			mustCreate(t, k, "bob", 1)
			root := st.ComputeRoot()

			err := k.Transfer(Origin{Account: tc.caller}, tc.to, tc.id)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err: got %v want %v", err, tc.wantErr)
			}
			if got := st.ComputeRoot(); got != root {
				t.Error("state root changed after failed transfer")
			}
		})
	}
}

func TestSelfOperationKind(t *testing.T) {
	for _, err := range []error{ErrTransferToSelf, ErrBuyFromSelf} {
		if !errors.Is(err, ErrSelfOperation) {
			t.Errorf("%v should wrap ErrSelfOperation", err)
		}
	}
}

// TestBreedCombinesParents verifies the child DNA is the crossover of the
// parents under the caller's mask and that parents are untouched.
func TestBreedCombinesParents(t *testing.T) {
	k, st, sink := newTestKeeper(t, testParams(), map[string]uint64{"alice": 1000, "bob": 1000})
	a := mustCreate(t, k, "alice", 0)
	b := mustCreate(t, k, "alice", 1)
	view := NewView(st)
	pa, _ := view.Kitty(a)
	pb, _ := view.Kitty(b)

	// Parents need not belong to the breeder.
	child, err := k.Breed(Origin{Account: "bob", Index: 2}, a, b)
	if err != nil {
		t.Fatalf("Breed: %v", err)
	}
	if child != 2 {
		t.Errorf("child id: got %d want 2", child)
	}
	kt, _ := view.Kitty(child)
	want := dna.NewDeriver(nil).Combine(testRandom.Random([]byte("dna")), []byte("bob"), 2, pa.DNA, pb.DNA)
	if kt.DNA != want {
		t.Errorf("child dna: got %s want %s", kt.DNA, want)
	}
	if kt.Owner != "bob" {
		t.Errorf("child owner: got %s want bob", kt.Owner)
	}
	if after, _ := view.Kitty(a); after.Owner != "alice" || after.DNA != pa.DNA {
		t.Error("parent a modified by breeding")
	}
	parents, _ := sink.last().Data["parents"].([]uint32)
	if !slices.Equal(parents, []uint32{a, b}) {
		t.Errorf("event parents: got %v", sink.last().Data["parents"])
	}
}

func TestBreedRejections(t *testing.T) {
	k, st, _ := newTestKeeper(t, testParams(), map[string]uint64{"alice": 1000})
	a := mustCreate(t, k, "alice", 0)
	root := st.ComputeRoot()

	if _, err := k.Breed(Origin{Account: "alice"}, a, a); !errors.Is(err, ErrDuplicateParents) {
		t.Errorf("same parent: got %v want ErrDuplicateParents", err)
	}
	if _, err := k.Breed(Origin{Account: "alice"}, a, 7); !errors.Is(err, ErrInvalidKittyIndex) {
		t.Errorf("missing parent: got %v want ErrInvalidKittyIndex", err)
	}
	if got := st.ComputeRoot(); got != root {
		t.Error("state root changed after failed breed")
	}
}

// TestListThenBuy verifies a sale moves funds, deposit and ownership and
// clears the price.
func TestListThenBuy(t *testing.T) {
	k, st, sink := newTestKeeper(t, testParams(), map[string]uint64{"alice": 1000, "bob": 1000})
	id := mustCreate(t, k, "alice", 0)
	price := uint64(200)
	if err := k.SetPrice(Origin{Account: "alice"}, id, &price); err != nil {
		t.Fatalf("SetPrice: %v", err)
	}
	if ev := sink.last(); ev.Type != events.EventKittyPriceSet || ev.Data["price"] != uint64(200) {
		t.Errorf("price event: got %+v", ev)
	}

	sale, err := k.Buy(Origin{Account: "bob"}, id)
	if err != nil {
		t.Fatalf("Buy: %v", err)
	}
	if sale.Seller != "alice" || sale.Buyer != "bob" || sale.Price != 200 {
		t.Errorf("sale: got %+v", sale)
	}
	kt, _ := NewView(st).Kitty(id)
	if kt.Owner != "bob" || kt.Price != nil {
		t.Errorf("kitty after sale: owner %s price %v", kt.Owner, kt.Price)
	}
	if free, reserved := balance(t, st, "alice"); free != 1200 || reserved != 0 {
		t.Errorf("alice: got %d/%d want 1200/0", free, reserved)
	}
	if free, reserved := balance(t, st, "bob"); free != 700 || reserved != 100 {
		t.Errorf("bob: got %d/%d want 700/100", free, reserved)
	}
	if ev := sink.last(); ev.Type != events.EventKittySold {
		t.Errorf("last event: got %s want %s", ev.Type, events.EventKittySold)
	}
}

// TestBuyRejections verifies a rejected buy leaves price, owner and both
// reservations as they were.
func TestBuyRejections(t *testing.T) {
	tests := []struct {
		name     string
		buyer    string
		funds    uint64
		list     bool
		maxOwned int
		wantErr  error
	}{
		{"not for sale", "bob", 1000, false, 8, ErrNotForSale},
		{"from self", "alice", 1000, true, 8, ErrBuyFromSelf},
		{"insufficient balance", "bob", 250, true, 8, ledger.ErrInsufficientBalance},
		{"keep alive", "bob", 300, true, 8, ledger.ErrKeepAlive},
		{"buyer full", "bob", 1000, true, 1, ErrCapacityExceeded},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			params := testParams()
			params.MaxOwned = tc.maxOwned
			k, st, _ := newTestKeeper(t, params, map[string]uint64{"alice": 1000, "bob": tc.funds})
			id := mustCreate(t, k, "alice", 0)
			if tc.maxOwned == 1 {
				if err := st.SetOwnedKitties("bob", []uint32{42}); err != nil {
					t.Fatal(err)
				}
			}
			if tc.list {
				price := uint64(200)
				if err := k.SetPrice(Origin{Account: "alice"}, id, &price); err != nil {
					t.Fatal(err)
				}
			}
			root := st.ComputeRoot()

			_, err := k.Buy(Origin{Account: tc.buyer}, id)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err: got %v want %v", err, tc.wantErr)
			}
			if got := st.ComputeRoot(); got != root {
				t.Error("state root changed after failed buy")
			}
			kt, _ := NewView(st).Kitty(id)
			if kt.Owner != "alice" {
				t.Errorf("owner: got %s want alice", kt.Owner)
			}
			if tc.list && (kt.Price == nil || *kt.Price != 200) {
				t.Errorf("price: got %v want 200", kt.Price)
			}
		})
	}
}

func TestSetPriceRequiresOwner(t *testing.T) {
	k, st, _ := newTestKeeper(t, testParams(), map[string]uint64{"alice": 1000})
	id := mustCreate(t, k, "alice", 0)
	price := uint64(5)
	if err := k.SetPrice(Origin{Account: "bob"}, id, &price); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("got %v want ErrNotOwner", err)
	}
	if err := k.SetPrice(Origin{Account: "alice"}, id, &price); err != nil {
		t.Fatal(err)
	}
	if err := k.SetPrice(Origin{Account: "alice"}, id, nil); err != nil {
		t.Fatal(err)
	}
	if kt, _ := NewView(st).Kitty(id); kt.Price != nil {
		t.Errorf("price after delist: got %d", *kt.Price)
	}
}

// TestMintSkipsDeposit verifies the genesis mint path uses the supplied
// attributes and reserves nothing.
func TestMintSkipsDeposit(t *testing.T) {
	k, st, _ := newTestKeeper(t, testParams(), nil)
	d := core.DNA{0xde, 0xad}
	id, err := k.Mint("alice", d, core.GenderFemale)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	kt, _ := NewView(st).Kitty(id)
	if kt.DNA != d || kt.Gender != core.GenderFemale || kt.Deposit != 0 {
		t.Errorf("kitty: got %+v", kt)
	}
	if _, err := k.Mint("alice", d, core.Gender("other")); err == nil {
		t.Error("unknown gender should be rejected")
	}
}

// TestGenesisKittyTransferLeavesOtherDeposits verifies transferring a kitty
// minted without a deposit moves no reserved funds, so the deposit held for
// the sender's created kitty stays put.
func TestGenesisKittyTransferLeavesOtherDeposits(t *testing.T) {
	k, st, _ := newTestKeeper(t, testParams(), map[string]uint64{"alice": 1000})
	genesisID, err := k.Mint("alice", core.DNA{1}, core.GenderMale)
	if err != nil {
		t.Fatal(err)
	}
	created := mustCreate(t, k, "alice", 0)

	if err := k.Transfer(Origin{Account: "alice"}, "bob", genesisID); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if free, reserved := balance(t, st, "alice"); free != 900 || reserved != 100 {
		t.Errorf("alice: got %d/%d want 900/100", free, reserved)
	}
	if free, reserved := balance(t, st, "bob"); free != 0 || reserved != 0 {
		t.Errorf("bob: got %d/%d want 0/0", free, reserved)
	}

	// The created kitty still carries its own deposit.
	if err := k.Transfer(Origin{Account: "alice"}, "bob", created); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if _, reserved := balance(t, st, "alice"); reserved != 0 {
		t.Errorf("alice reserved: got %d want 0", reserved)
	}
	if _, reserved := balance(t, st, "bob"); reserved != 100 {
		t.Errorf("bob reserved: got %d want 100", reserved)
	}
}

// TestGenesisKittySaleLeavesOtherDeposits verifies selling a kitty minted
// without a deposit pays the price only: the seller's other reservation is
// not released and the buyer reserves nothing.
func TestGenesisKittySaleLeavesOtherDeposits(t *testing.T) {
	k, st, sink := newTestKeeper(t, testParams(), map[string]uint64{"alice": 1000, "bob": 1000})
	genesisID, err := k.Mint("alice", core.DNA{2}, core.GenderFemale)
	if err != nil {
		t.Fatal(err)
	}
	mustCreate(t, k, "alice", 0)
	price := uint64(10)
	if err := k.SetPrice(Origin{Account: "alice"}, genesisID, &price); err != nil {
		t.Fatal(err)
	}

	if _, err := k.Buy(Origin{Account: "bob"}, genesisID); err != nil {
		t.Fatalf("Buy: %v", err)
	}
	if free, reserved := balance(t, st, "alice"); free != 910 || reserved != 100 {
		t.Errorf("alice: got %d/%d want 910/100", free, reserved)
	}
	if free, reserved := balance(t, st, "bob"); free != 990 || reserved != 0 {
		t.Errorf("bob: got %d/%d want 990/0", free, reserved)
	}
	if kt, _ := NewView(st).Kitty(genesisID); kt.Owner != "bob" || kt.Deposit != 0 {
		t.Errorf("kitty after sale: got %+v", kt)
	}
	if ev := sink.last(); ev.Type != events.EventKittySold {
		t.Errorf("last event: got %s want %s", ev.Type, events.EventKittySold)
	}
}
