package core

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/tolelom/kittychain/crypto"
)

// BlockHeader contains the block metadata that is hashed and signed.
type BlockHeader struct {
	Height    int64  `json:"height"`
	PrevHash  string `json:"prev_hash"`
	StateRoot string `json:"state_root"` // state hash after executing this block
	TxRoot    string `json:"tx_root"`
	Timestamp int64  `json:"timestamp"`
	Proposer  string `json:"proposer"` // pubkey hex
}

// Block is an ordered batch of transactions with a signed header.
type Block struct {
	Header       BlockHeader    `json:"header"`
	Transactions []*Transaction `json:"transactions"`
	Hash         string         `json:"hash"`
	Signature    string         `json:"signature"`
}

// ComputeHash returns the SHA-256 hash of the serialised header.
func (b *Block) ComputeHash() string {
	data, err := json.Marshal(b.Header)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Sign sets Hash and signs it with the proposer's private key.
func (b *Block) Sign(priv crypto.PrivateKey) {
	b.Hash = b.ComputeHash()
	b.Signature = crypto.Sign(priv, []byte(b.Hash))
}

// Verify checks that Hash commits to the header and that pub signed it.
func (b *Block) Verify(pub crypto.PublicKey) error {
	if b.Hash != b.ComputeHash() {
		return errors.New("block hash does not match header")
	}
	return crypto.Verify(pub, []byte(b.Hash), b.Signature)
}

// SetTransactions replaces the block body and recomputes TxRoot. The
// producer calls this once it knows which pending transactions applied.
func (b *Block) SetTransactions(txs []*Transaction) {
	b.Transactions = txs
	b.Header.TxRoot = ComputeTxRoot(txs)
}

// ComputeTxRoot hashes the concatenated transaction IDs.
func ComputeTxRoot(txs []*Transaction) string {
	if len(txs) == 0 {
		return crypto.Hash([]byte("empty"))
	}
	var sb strings.Builder
	for _, tx := range txs {
		sb.WriteString(tx.ID)
	}
	return crypto.Hash([]byte(sb.String()))
}

// NewBlock creates an unsigned block with the given parameters.
func NewBlock(height int64, prevHash, proposer string, txs []*Transaction) *Block {
	return &Block{
		Header: BlockHeader{
			Height:    height,
			PrevHash:  prevHash,
			TxRoot:    ComputeTxRoot(txs),
			Timestamp: time.Now().UnixNano(),
			Proposer:  proposer,
		},
		Transactions: txs,
	}
}
