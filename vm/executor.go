package vm

import (
	"errors"
	"fmt"
	"math"

	"github.com/tolelom/kittychain/core"
	"github.com/tolelom/kittychain/events"
	"github.com/tolelom/kittychain/ledger"
	"github.com/tolelom/kittychain/randomness"
)

var (
	ErrWrongChain = errors.New("transaction signed for another chain")
	ErrBadNonce   = errors.New("invalid nonce")
)

// Context is passed to every Handler. It exposes the chain state, the block
// being built, the triggering transaction and its position in that block,
// the block's randomness source and a sink for the transaction's events.
type Context struct {
	State   core.State
	Block   *core.Block
	Tx      *core.Transaction
	TxIndex uint32
	Random  randomness.Source
	Events  events.Sink
}

// Emit queues an event stamped with the transaction id and block height.
func (c *Context) Emit(typ events.EventType, data map[string]any) {
	if c.Events != nil {
		c.Events.Emit(events.Event{Type: typ, Data: data})
	}
}

// Params returns the chain parameters stored at genesis.
func (c *Context) Params() (core.Params, error) {
	p, err := c.State.GetParams()
	if err != nil {
		return core.Params{}, fmt.Errorf("load params: %w", err)
	}
	return p.WithDefaults(), nil
}

// stampSink fills in transaction coordinates before buffering an event.
type stampSink struct {
	buf    *events.Buffer
	txID   string
	height int64
}

func (s stampSink) Emit(ev events.Event) {
	if ev.TxID == "" {
		ev.TxID = s.txID
	}
	if ev.BlockHeight == 0 {
		ev.BlockHeight = s.height
	}
	s.buf.Emit(ev)
}

// Executor applies transactions to the state using the global Handler registry.
type Executor struct {
	state   core.State
	sink    events.Sink
	chainID string
}

// NewExecutor creates an Executor. Events of successful transactions are
// forwarded to sink; an empty chainID accepts any chain id.
func NewExecutor(state core.State, sink events.Sink, chainID string) *Executor {
	return &Executor{state: state, sink: sink, chainID: chainID}
}

// ExecuteBlock replays every transaction of block in order, as a follower
// would. A failing transaction causes the whole block to be rejected.
// EventBlockCommit is emitted by the caller (consensus) after signing so
// the event carries the correct block hash.
func (e *Executor) ExecuteBlock(block *core.Block) error {
	rnd := randomness.NewBlockSource(block.Header.PrevHash, block.Header.Height)
	for i, tx := range block.Transactions {
		if err := e.ExecuteTx(block, uint32(i), tx, rnd); err != nil {
			return fmt.Errorf("tx %s failed: %w", tx.ID, err)
		}
	}
	return nil
}

// ExecuteTx verifies and executes a single transaction with snapshot/rollback.
// index is the transaction's position among the block's included
// transactions. On failure no state change and no event survives.
func (e *Executor) ExecuteTx(block *core.Block, index uint32, tx *core.Transaction, rnd randomness.Source) error {
	if err := tx.Verify(); err != nil {
		return fmt.Errorf("signature: %w", err)
	}
	if e.chainID != "" && tx.ChainID != e.chainID {
		return fmt.Errorf("%w: got %q, want %q", ErrWrongChain, tx.ChainID, e.chainID)
	}

	snapID, err := e.state.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	var buf events.Buffer
	if err := e.applyTx(block, index, tx, rnd, &buf); err != nil {
		buf.Discard()
		if revertErr := e.state.RevertToSnapshot(snapID); revertErr != nil {
			return fmt.Errorf("revert snapshot after tx failure: %w (revert: %v)", err, revertErr)
		}
		return err
	}

	buf.Flush(e.sink)
	if e.sink != nil {
		e.sink.Emit(events.Event{
			Type:        events.EventTxExecuted,
			TxID:        tx.ID,
			BlockHeight: block.Header.Height,
			Data:        map[string]any{"type": string(tx.Type), "from": tx.From, "index": index},
		})
	}
	return nil
}

// applyTx burns the fee, increments the nonce, then dispatches to the handler.
func (e *Executor) applyTx(block *core.Block, index uint32, tx *core.Transaction, rnd randomness.Source, buf *events.Buffer) error {
	acc, err := e.state.GetAccount(tx.From)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}
	if acc.Nonce != tx.Nonce {
		return fmt.Errorf("%w: expected %d got %d", ErrBadNonce, acc.Nonce, tx.Nonce)
	}
	if acc.Nonce == math.MaxUint64 {
		return fmt.Errorf("nonce overflow for account %s", tx.From)
	}
	acc.Nonce++
	if err := e.state.SetAccount(acc); err != nil {
		return err
	}
	if err := ledger.New(e.state, 0).Withdraw(tx.From, tx.Fee); err != nil {
		return fmt.Errorf("fee: %w", err)
	}

	ctx := &Context{
		State:   e.state,
		Block:   block,
		Tx:      tx,
		TxIndex: index,
		Random:  rnd,
		Events:  stampSink{buf: buf, txID: tx.ID, height: block.Header.Height},
	}
	return globalRegistry.Execute(tx.Type, ctx, tx.Payload)
}
