// Package consensus implements Proof-of-Authority block production.
// Validators propose blocks in round-robin order. Each block is signed by
// the proposer; other nodes verify the signature and replay it before
// accepting the block.
package consensus

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/tolelom/kittychain/config"
	"github.com/tolelom/kittychain/core"
	"github.com/tolelom/kittychain/crypto"
	"github.com/tolelom/kittychain/events"
	"github.com/tolelom/kittychain/randomness"
	"github.com/tolelom/kittychain/vm"
)

const defaultMaxBlockTxs = 500

// ErrNotProposer is returned when this node is asked to build out of turn.
var ErrNotProposer = errors.New("not the proposer for this round")

// Authority is the Proof-of-Authority engine. It is the only writer of the
// chain state; RPC reads go through View so they never observe a block
// that is half executed.
type Authority struct {
	mu         sync.RWMutex
	validators []string
	maxTxs     int
	chainID    string
	bc         *core.Blockchain
	state      core.State
	mempool    *core.Mempool
	emitter    *events.Emitter
	privKey    crypto.PrivateKey
	pubKey     crypto.PublicKey
}

// New creates an Authority for the local validator identified by privKey.
func New(
	cfg *config.Config,
	bc *core.Blockchain,
	state core.State,
	mempool *core.Mempool,
	emitter *events.Emitter,
	privKey crypto.PrivateKey,
) *Authority {
	maxTxs := cfg.MaxBlockTxs
	if maxTxs <= 0 {
		maxTxs = defaultMaxBlockTxs
	}
	return &Authority{
		validators: cfg.Validators,
		maxTxs:     maxTxs,
		chainID:    cfg.Genesis.ChainID,
		bc:         bc,
		state:      state,
		mempool:    mempool,
		emitter:    emitter,
		privKey:    privKey,
		pubKey:     privKey.Public(),
	}
}

// View runs fn against the committed state while no block is being built.
func (a *Authority) View(fn func(core.State) error) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return fn(a.state)
}

// PubKey returns the local validator's account.
func (a *Authority) PubKey() string { return a.pubKey.Hex() }

// IsProposer reports whether this node should propose the next block.
func (a *Authority) IsProposer() bool {
	if len(a.validators) == 0 {
		return false
	}
	return a.proposerFor(a.bc.Height()+1) == a.pubKey.Hex()
}

func (a *Authority) proposerFor(height int64) string {
	return a.validators[int(height%int64(len(a.validators)))]
}

// ProduceBlock builds, executes, signs and commits the next block. Pending
// transactions that fail are left out of the block; the ones that succeed
// keep their relative order.
func (a *Authority) ProduceBlock() (*core.Block, error) {
	if !a.IsProposer() {
		return nil, ErrNotProposer
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	prevHash, height := a.next()
	block := core.NewBlock(height, prevHash, a.pubKey.Hex(), nil)

	snap, err := a.state.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	var buf events.Buffer
	exec := vm.NewExecutor(a.state, &buf, a.chainID)
	rnd := randomness.NewBlockSource(prevHash, height)

	pending := a.mempool.Pending(a.maxTxs)
	included := make([]*core.Transaction, 0, len(pending))
	var done []string
	for _, tx := range pending {
		if err := exec.ExecuteTx(block, uint32(len(included)), tx, rnd); err != nil {
			log.Printf("[consensus] drop tx %s: %v", tx.ID, err)
			// A nonce from the future may become valid once its predecessors land.
			if !errors.Is(err, vm.ErrBadNonce) {
				done = append(done, tx.ID)
			}
			continue
		}
		included = append(included, tx)
		done = append(done, tx.ID)
	}
	block.SetTransactions(included)

	// Compute root from the write buffer BEFORE flushing so that if AddBlock
	// fails the state has not yet been persisted and the node stays consistent.
	block.Header.StateRoot = a.state.ComputeRoot()
	block.Sign(a.privKey)

	if err := a.bc.AddBlock(block); err != nil {
		buf.Discard()
		if revertErr := a.state.RevertToSnapshot(snap); revertErr != nil {
			return nil, errors.Join(fmt.Errorf("add block: %w", err), revertErr)
		}
		return nil, fmt.Errorf("add block: %w", err)
	}

	// Flush state only after the block is safely stored.
	if err := a.state.Commit(); err != nil {
		log.Fatalf("[consensus] FATAL: block %d stored but state commit failed: %v",
			block.Header.Height, err)
	}

	a.publish(block, &buf)
	a.mempool.Remove(done)
	return block, nil
}

// ValidateBlock checks that block was proposed by the expected validator
// and links onto the current tip.
func (a *Authority) ValidateBlock(block *core.Block) error {
	if len(a.validators) == 0 {
		return errors.New("no validators configured")
	}
	expected := a.proposerFor(block.Header.Height)
	if block.Header.Proposer != expected {
		return fmt.Errorf("wrong proposer: got %s want %s", block.Header.Proposer, expected)
	}

	pub, err := crypto.PubKeyFromHex(block.Header.Proposer)
	if err != nil {
		return fmt.Errorf("invalid proposer pubkey: %w", err)
	}
	if err := block.Verify(pub); err != nil {
		return fmt.Errorf("block signature invalid: %w", err)
	}
	if block.Header.TxRoot != core.ComputeTxRoot(block.Transactions) {
		return errors.New("tx_root does not match transactions")
	}

	prevHash, height := a.next()
	if block.Header.PrevHash != prevHash {
		return fmt.Errorf("prev_hash mismatch: got %s want %s", block.Header.PrevHash, prevHash)
	}
	if block.Header.Height != height {
		return fmt.Errorf("height mismatch: got %d want %d", block.Header.Height, height)
	}
	return nil
}

// ApplyBlock validates a block produced elsewhere, replays it and commits it
// when the resulting state root matches the header.
func (a *Authority) ApplyBlock(block *core.Block) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.ValidateBlock(block); err != nil {
		return err
	}
	snap, err := a.state.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	var buf events.Buffer
	fail := func(err error) error {
		buf.Discard()
		if revertErr := a.state.RevertToSnapshot(snap); revertErr != nil {
			return errors.Join(err, revertErr)
		}
		return err
	}

	if err := vm.NewExecutor(a.state, &buf, a.chainID).ExecuteBlock(block); err != nil {
		return fail(fmt.Errorf("execute block: %w", err))
	}
	if root := a.state.ComputeRoot(); root != block.Header.StateRoot {
		return fail(fmt.Errorf("state root mismatch: got %s want %s", root, block.Header.StateRoot))
	}
	if err := a.bc.AddBlock(block); err != nil {
		return fail(fmt.Errorf("add block: %w", err))
	}
	if err := a.state.Commit(); err != nil {
		log.Fatalf("[consensus] FATAL: block %d stored but state commit failed: %v",
			block.Header.Height, err)
	}

	a.publish(block, &buf)
	ids := make([]string, len(block.Transactions))
	for i, tx := range block.Transactions {
		ids[i] = tx.ID
	}
	a.mempool.Remove(ids)
	return nil
}

// Run produces a block every interval while this node is the proposer. It
// returns when ctx is cancelled.
func (a *Authority) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !a.IsProposer() {
				continue
			}
			block, err := a.ProduceBlock()
			if err != nil {
				log.Printf("[consensus] produce block error: %v", err)
				continue
			}
			if n := len(block.Transactions); n > 0 {
				log.Printf("[consensus] block %d: %d txs", block.Header.Height, n)
			}
		}
	}
}

// next returns the parent hash and height of the block to build.
func (a *Authority) next() (string, int64) {
	tip := a.bc.Tip()
	if tip == nil {
		return config.GenesisHash, 1
	}
	return tip.Hash, tip.Header.Height + 1
}

// publish hands the block's transaction events to subscribers, then
// announces the block itself. Emit after Sign() so block.Hash is set.
func (a *Authority) publish(block *core.Block, buf *events.Buffer) {
	if a.emitter == nil {
		buf.Discard()
		return
	}
	buf.Flush(a.emitter)
	a.emitter.Emit(events.Event{
		Type:        events.EventBlockCommit,
		BlockHeight: block.Header.Height,
		Data:        map[string]any{"hash": block.Hash, "txs": len(block.Transactions)},
	})
}
