package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tolelom/kittychain/crypto"
)

// TxType identifies the kind of operation a transaction performs.
type TxType string

const (
	TxTransfer      TxType = "transfer"
	TxKittyCreate   TxType = "kitty_create"
	TxKittyTransfer TxType = "kitty_transfer"
	TxKittyBreed    TxType = "kitty_breed"
	TxKittySetPrice TxType = "kitty_set_price"
	TxKittyBuy      TxType = "kitty_buy"
	TxApprove       TxType = "approve"
	TxTransferFrom  TxType = "transfer_from"
	TxClaimCreate   TxType = "claim_create"
	TxClaimRevoke   TxType = "claim_revoke"
	TxClaimTransfer TxType = "claim_transfer"
)

// Transaction is the atomic unit of work on the chain.
// From holds the sender's full hex-encoded ed25519 public key (64 chars).
// Signature covers every field except ID and Signature.
type Transaction struct {
	ID        string          `json:"id"`
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"` // hex-encoded ed25519 public key
	Nonce     uint64          `json:"nonce"`
	Fee       uint64          `json:"fee"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

type signingBody struct {
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"`
	Nonce     uint64          `json:"nonce"`
	Fee       uint64          `json:"fee"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Hash returns a deterministic hash of the signed fields.
// Returns an empty string if marshalling fails (which cannot happen in practice).
func (tx *Transaction) Hash() string {
	data, err := json.Marshal(signingBody{
		ChainID:   tx.ChainID,
		Type:      tx.Type,
		From:      tx.From,
		Nonce:     tx.Nonce,
		Fee:       tx.Fee,
		Timestamp: tx.Timestamp,
		Payload:   tx.Payload,
	})
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Sign computes the signature and sets ID.
func (tx *Transaction) Sign(priv crypto.PrivateKey) {
	hash := tx.Hash()
	tx.Signature = crypto.Sign(priv, []byte(hash))
	tx.ID = hash
}

// Verify checks the signature and that From is a valid public key.
func (tx *Transaction) Verify() error {
	if tx.From == "" {
		return errors.New("missing from field")
	}
	pub, err := crypto.PubKeyFromHex(tx.From)
	if err != nil {
		return fmt.Errorf("invalid from (must be ed25519 pubkey hex): %w", err)
	}
	return crypto.Verify(pub, []byte(tx.Hash()), tx.Signature)
}

// NewTransaction creates an unsigned transaction stamped with the current time.
func NewTransaction(chainID string, typ TxType, from string, nonce, fee uint64, payload any) (*Transaction, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Transaction{
		ChainID:   chainID,
		Type:      typ,
		From:      from,
		Nonce:     nonce,
		Fee:       fee,
		Timestamp: time.Now().UnixNano(),
		Payload:   raw,
	}, nil
}

// ---- Payload types ----

// TransferPayload transfers native tokens.
type TransferPayload struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// ApprovePayload sets how much Spender may move out of the sender's balance.
type ApprovePayload struct {
	Spender string `json:"spender"`
	Amount  uint64 `json:"amount"`
}

// TransferFromPayload spends an allowance the From account granted the sender.
type TransferFromPayload struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// ClaimPayload names a proof of existence in hex. It is used by claim_create
// and claim_revoke.
type ClaimPayload struct {
	Proof string `json:"proof"`
}

// ClaimTransferPayload hands a claimed proof to another account.
type ClaimTransferPayload struct {
	Proof string `json:"proof"`
	To    string `json:"to"`
}

// KittyCreatePayload mints a fresh kitty for the sender. It carries no fields.
type KittyCreatePayload struct{}

// KittyTransferPayload gives a kitty to another account.
type KittyTransferPayload struct {
	KittyID uint32 `json:"kitty_id"`
	To      string `json:"to"` // recipient pubkey hex
}

// KittyBreedPayload mints a child of two existing kitties for the sender.
type KittyBreedPayload struct {
	ParentA uint32 `json:"parent_a"`
	ParentB uint32 `json:"parent_b"`
}

// KittySetPricePayload lists a kitty for sale, or delists it when Price is nil.
type KittySetPricePayload struct {
	KittyID uint32  `json:"kitty_id"`
	Price   *uint64 `json:"price"`
}

// KittyBuyPayload purchases a listed kitty at its asking price.
type KittyBuyPayload struct {
	KittyID uint32 `json:"kitty_id"`
}
