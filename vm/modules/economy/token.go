// Package economy handles native token transfers and delegated spending
// through allowances.
package economy

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tolelom/kittychain/core"
	"github.com/tolelom/kittychain/crypto"
	"github.com/tolelom/kittychain/events"
	"github.com/tolelom/kittychain/ledger"
	"github.com/tolelom/kittychain/vm"
)

func init() {
	vm.Register(core.TxTransfer, handleTransfer)
	vm.Register(core.TxApprove, handleApprove)
	vm.Register(core.TxTransferFrom, handleTransferFrom)
}

func newLedger(ctx *vm.Context) (*ledger.Ledger, error) {
	params, err := ctx.Params()
	if err != nil {
		return nil, err
	}
	return ledger.New(ctx.State, params.ExistentialDeposit), nil
}

func handleTransfer(ctx *vm.Context, payload json.RawMessage) error {
	var p core.TransferPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode transfer payload: %w", err)
	}
	if p.Amount == 0 {
		return errors.New("transfer amount must be > 0")
	}
	if !crypto.IsAccount(p.To) {
		return fmt.Errorf("transfer to: invalid account %q", p.To)
	}

	l, err := newLedger(ctx)
	if err != nil {
		return err
	}
	// Plain transfers may drain the sender; only marketplace payments keep alive.
	if err := l.Transfer(ctx.Tx.From, p.To, p.Amount, false); err != nil {
		return err
	}

	ctx.Emit(events.EventTokenTransfer, map[string]any{
		"from":   ctx.Tx.From,
		"to":     p.To,
		"amount": p.Amount,
	})
	return nil
}

// handleApprove replaces the sender's allowance for spender. Zero revokes it.
func handleApprove(ctx *vm.Context, payload json.RawMessage) error {
	var p core.ApprovePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode approve payload: %w", err)
	}
	if !crypto.IsAccount(p.Spender) {
		return fmt.Errorf("approve spender: invalid account %q", p.Spender)
	}
	l, err := newLedger(ctx)
	if err != nil {
		return err
	}
	if err := l.Approve(ctx.Tx.From, p.Spender, p.Amount); err != nil {
		return err
	}
	ctx.Emit(events.EventTokenApproval, map[string]any{
		"owner":   ctx.Tx.From,
		"spender": p.Spender,
		"amount":  p.Amount,
	})
	return nil
}

func handleTransferFrom(ctx *vm.Context, payload json.RawMessage) error {
	var p core.TransferFromPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode transfer_from payload: %w", err)
	}
	if p.Amount == 0 {
		return errors.New("transfer_from amount must be > 0")
	}
	if !crypto.IsAccount(p.From) {
		return fmt.Errorf("transfer_from from: invalid account %q", p.From)
	}
	if !crypto.IsAccount(p.To) {
		return fmt.Errorf("transfer_from to: invalid account %q", p.To)
	}
	l, err := newLedger(ctx)
	if err != nil {
		return err
	}
	if err := l.TransferFrom(ctx.Tx.From, p.From, p.To, p.Amount); err != nil {
		return err
	}
	ctx.Emit(events.EventTokenTransfer, map[string]any{
		"from":    p.From,
		"to":      p.To,
		"amount":  p.Amount,
		"spender": ctx.Tx.From,
	})
	return nil
}
