package wallet

import (
	"github.com/tolelom/kittychain/core"
	"github.com/tolelom/kittychain/crypto"
)

// Wallet holds a key pair and builds signed transactions for one chain.
type Wallet struct {
	priv    crypto.PrivateKey
	pub     crypto.PublicKey
	chainID string
}

// New creates a Wallet from an existing private key. chainID must match the
// target network.
func New(priv crypto.PrivateKey, chainID string) *Wallet {
	return &Wallet{priv: priv, pub: priv.Public(), chainID: chainID}
}

// Generate creates a Wallet with a freshly generated key pair.
func Generate(chainID string) (*Wallet, error) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return New(priv, chainID), nil
}

// PrivKey returns the raw private key (handle with care).
func (w *Wallet) PrivKey() crypto.PrivateKey {
	return w.priv
}

// Account returns the hex-encoded ed25519 public key used as "from" and as
// the kitty owner id.
func (w *Wallet) Account() string {
	return w.pub.Hex()
}

// NewTx creates a signed transaction. nonce should match the account's
// current nonce.
func (w *Wallet) NewTx(typ core.TxType, nonce, fee uint64, payload any) (*core.Transaction, error) {
	tx, err := core.NewTransaction(w.chainID, typ, w.pub.Hex(), nonce, fee, payload)
	if err != nil {
		return nil, err
	}
	tx.Sign(w.priv)
	return tx, nil
}

// Transfer creates a signed token transfer.
func (w *Wallet) Transfer(to string, amount, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxTransfer, nonce, fee, core.TransferPayload{To: to, Amount: amount})
}

// CreateKitty mints a fresh kitty for the wallet's account.
func (w *Wallet) CreateKitty(nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxKittyCreate, nonce, fee, core.KittyCreatePayload{})
}

// TransferKitty gives kitty id to another account.
func (w *Wallet) TransferKitty(id uint32, to string, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxKittyTransfer, nonce, fee, core.KittyTransferPayload{KittyID: id, To: to})
}

// BreedKitty mints a child of parents a and b.
func (w *Wallet) BreedKitty(a, b uint32, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxKittyBreed, nonce, fee, core.KittyBreedPayload{ParentA: a, ParentB: b})
}

// SetPrice lists kitty id at price; a nil price delists it.
func (w *Wallet) SetPrice(id uint32, price *uint64, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxKittySetPrice, nonce, fee, core.KittySetPricePayload{KittyID: id, Price: price})
}

// BuyKitty purchases a listed kitty at its asking price.
func (w *Wallet) BuyKitty(id uint32, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxKittyBuy, nonce, fee, core.KittyBuyPayload{KittyID: id})
}

// Approve lets spender move up to amount of the wallet's balance.
func (w *Wallet) Approve(spender string, amount, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxApprove, nonce, fee, core.ApprovePayload{Spender: spender, Amount: amount})
}

// TransferFrom spends an allowance that from granted the wallet's account.
func (w *Wallet) TransferFrom(from, to string, amount, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxTransferFrom, nonce, fee, core.TransferFromPayload{From: from, To: to, Amount: amount})
}

// CreateClaim registers a hex proof of existence.
func (w *Wallet) CreateClaim(proof string, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxClaimCreate, nonce, fee, core.ClaimPayload{Proof: proof})
}

// RevokeClaim drops the wallet's claim on proof.
func (w *Wallet) RevokeClaim(proof string, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxClaimRevoke, nonce, fee, core.ClaimPayload{Proof: proof})
}

// TransferClaim hands the wallet's claim on proof to another account.
func (w *Wallet) TransferClaim(proof, to string, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxClaimTransfer, nonce, fee, core.ClaimTransferPayload{Proof: proof, To: to})
}
