package core

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound is returned when a requested object does not exist in storage.
var ErrNotFound = errors.New("not found")

// Chain linkage errors returned by AddBlock.
var (
	ErrNotGenesis    = errors.New("first block must have height 0")
	ErrHeightGap     = errors.New("block height does not follow tip")
	ErrParentHash    = errors.New("block prev_hash is not the tip hash")
	ErrBlockUnsealed = errors.New("block has no hash")
)

// BlockStore persists blocks by hash and height. Implementations live in
// the storage package.
type BlockStore interface {
	GetBlock(hash string) (*Block, error)
	GetBlockByHeight(height int64) (*Block, error)
	// GetTip returns the current tip hash, or ("", nil) for a fresh chain.
	GetTip() (string, error)
	// CommitBlock writes the block, its height index entry and the new tip
	// pointer in a single batch.
	CommitBlock(block *Block) error
}

// Blockchain is the append-only sequence of committed kitty blocks. Only
// the block producer or ApplyBlock appends; readers see the tip under a
// read lock.
type Blockchain struct {
	mu    sync.RWMutex
	store BlockStore
	tip   *Block
}

func NewBlockchain(store BlockStore) *Blockchain {
	return &Blockchain{store: store}
}

// Init resumes from the tip persisted in the store. A fresh store leaves
// the chain empty until genesis is added.
func (bc *Blockchain) Init() error {
	tipHash, err := bc.store.GetTip()
	if err != nil {
		return fmt.Errorf("get tip: %w", err)
	}
	if tipHash == "" {
		return nil
	}
	tip, err := bc.store.GetBlock(tipHash)
	if err != nil {
		return fmt.Errorf("load tip %s: %w", tipHash, err)
	}

	bc.mu.Lock()
	bc.tip = tip
	bc.mu.Unlock()
	return nil
}

// AddBlock appends a sealed block on top of the tip.
func (bc *Blockchain) AddBlock(block *Block) error {
	if block.Hash == "" {
		return ErrBlockUnsealed
	}

	bc.mu.Lock()
	defer bc.mu.Unlock()
	if err := linkable(bc.tip, block); err != nil {
		return err
	}
	if err := bc.store.CommitBlock(block); err != nil {
		return fmt.Errorf("commit block %d: %w", block.Header.Height, err)
	}
	bc.tip = block
	return nil
}

func linkable(tip, block *Block) error {
	h := block.Header
	if tip == nil {
		if h.Height != 0 {
			return fmt.Errorf("%w: got %d", ErrNotGenesis, h.Height)
		}
		return nil
	}
	if h.Height != tip.Header.Height+1 {
		return fmt.Errorf("%w: got %d, tip %d", ErrHeightGap, h.Height, tip.Header.Height)
	}
	if h.PrevHash != tip.Hash {
		return fmt.Errorf("%w: got %s want %s", ErrParentHash, h.PrevHash, tip.Hash)
	}
	return nil
}

func (bc *Blockchain) GetBlock(hash string) (*Block, error) {
	return bc.store.GetBlock(hash)
}

func (bc *Blockchain) GetBlockByHeight(height int64) (*Block, error) {
	return bc.store.GetBlockByHeight(height)
}

// Tip returns the latest block, or nil before genesis.
func (bc *Blockchain) Tip() *Block {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.tip
}

// Height returns the tip height; 0 both at genesis and before it.
func (bc *Blockchain) Height() int64 {
	if tip := bc.Tip(); tip != nil {
		return tip.Header.Height
	}
	return 0
}
