package core

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
)

// Account holds a participant's free and reserved balance plus the
// replay-protection nonce. Address is the hex-encoded ed25519 public key.
type Account struct {
	Address  string `json:"address"` // pubkey hex
	Balance  uint64 `json:"balance"` // free
	Reserved uint64 `json:"reserved"`
	Nonce    uint64 `json:"nonce"`
}

// Total returns free plus reserved balance, saturating at MaxUint64.
func (a *Account) Total() uint64 {
	if a.Balance > math.MaxUint64-a.Reserved {
		return math.MaxUint64
	}
	return a.Balance + a.Reserved
}

// DNASize is the length in bytes of a kitty's attribute vector.
const DNASize = 16

// DNA is a kitty's immutable attribute vector. It marshals as a hex string.
type DNA [DNASize]byte

func (d DNA) String() string { return hex.EncodeToString(d[:]) }

func (d DNA) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *DNA) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDNA(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDNA decodes a 32-char hex string into a DNA value.
func ParseDNA(s string) (DNA, error) {
	var d DNA
	b, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("invalid dna hex: %w", err)
	}
	if len(b) != DNASize {
		return d, fmt.Errorf("dna must be %d bytes, got %d", DNASize, len(b))
	}
	copy(d[:], b)
	return d, nil
}

// Gender is a flavour attribute fixed at mint time.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// Valid reports whether g is one of the two known genders.
func (g Gender) Valid() bool {
	return g == GenderMale || g == GenderFemale
}

// Kitty is a uniquely identified collectible. DNA, Gender and Deposit never
// change after mint; Owner and Price are mutated by transfer, sale and listing.
type Kitty struct {
	ID     uint32 `json:"id"`
	DNA    DNA    `json:"dna"`
	Gender Gender `json:"gender"`
	Owner  string `json:"owner"` // pubkey hex
	// Deposit is the amount held in the owner's reserve for this kitty.
	// Genesis kitties carry none.
	Deposit uint64  `json:"deposit"`
	Price   *uint64 `json:"price,omitempty"` // nil while not for sale
}

// Listed reports whether the kitty currently has an asking price.
func (k *Kitty) Listed() bool { return k.Price != nil }

// Claim records who registered a proof of existence and at which height the
// current owner took it over.
type Claim struct {
	Owner       string `json:"owner"` // pubkey hex
	BlockHeight int64  `json:"block_height"`
}

// Params are the chain-wide kitty and ledger parameters written at genesis.
type Params struct {
	// MaxOwned bounds the number of kitties a single account may hold.
	MaxOwned int `json:"max_owned"`
	// KittyDeposit is reserved from the owner on Create and Breed, recorded
	// on the kitty and travels with it on transfer and sale. Zero disables
	// deposits.
	KittyDeposit uint64 `json:"kitty_deposit"`
	// ExistentialDeposit is the free balance a keep-alive transfer must leave behind.
	ExistentialDeposit uint64 `json:"existential_deposit"`
	// KittyIndexLimit is the exclusive upper bound for kitty ids.
	KittyIndexLimit uint32 `json:"kitty_index_limit"`
	// MaxProofLength bounds a proof-of-existence claim in bytes.
	MaxProofLength int `json:"max_proof_length"`
}

// DefaultParams returns the parameters used when genesis leaves them unset.
func DefaultParams() Params {
	return Params{
		MaxOwned:           64,
		KittyDeposit:       100,
		ExistentialDeposit: 1,
		KittyIndexLimit:    math.MaxUint32,
		MaxProofLength:     64,
	}
}

// WithDefaults fills unset bounds from DefaultParams. Zero deposits stay
// zero: they switch the deposit off.
func (p Params) WithDefaults() Params {
	d := DefaultParams()
	if p.MaxOwned <= 0 {
		p.MaxOwned = d.MaxOwned
	}
	if p.KittyIndexLimit == 0 {
		p.KittyIndexLimit = d.KittyIndexLimit
	}
	if p.MaxProofLength <= 0 {
		p.MaxProofLength = d.MaxProofLength
	}
	return p
}

// State is the full chain state interface. Implementations must be
// snapshot-able so the executor can roll back failed transactions.
type State interface {
	// Accounts
	GetAccount(address string) (*Account, error)
	SetAccount(account *Account) error

	// Kitties. GetKitty returns ErrNotFound for an unknown id.
	GetKitty(id uint32) (*Kitty, error)
	SetKitty(k *Kitty) error

	// Owned kitty lists; an account with no kitties yields an empty list.
	GetOwnedKitties(owner string) ([]uint32, error)
	SetOwnedKitties(owner string, ids []uint32) error

	// Token allowances granted by owner to spender; zero when never approved.
	GetAllowance(owner, spender string) (uint64, error)
	SetAllowance(owner, spender string, amount uint64) error

	// Proof-of-existence claims keyed by hex proof. GetClaim returns
	// ErrNotFound for an unclaimed proof.
	GetClaim(proof string) (*Claim, error)
	SetClaim(proof string, c *Claim) error
	DeleteClaim(proof string) error

	// Allocator counter; zero on a fresh chain.
	GetKittyCount() (uint32, error)
	SetKittyCount(n uint32) error

	// Chain parameters; DefaultParams when genesis did not write any.
	GetParams() (Params, error)
	SetParams(p Params) error

	// Snapshot / rollback / commit
	Snapshot() (int, error)
	RevertToSnapshot(id int) error
	// ComputeRoot returns the deterministic state root from the current write
	// buffer without flushing. Call this before signing a block.
	ComputeRoot() string
	// Commit flushes the write buffer to the underlying DB and clears it.
	Commit() error
}
