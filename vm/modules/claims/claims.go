// Package claims exposes the proof-of-existence registry as transaction
// handlers. Claims are stamped with the height of the including block.
package claims

import (
	"encoding/json"
	"fmt"

	"github.com/tolelom/kittychain/core"
	"github.com/tolelom/kittychain/crypto"
	"github.com/tolelom/kittychain/events"
	"github.com/tolelom/kittychain/poe"
	"github.com/tolelom/kittychain/vm"
)

func init() {
	vm.Register(core.TxClaimCreate, handleCreate)
	vm.Register(core.TxClaimRevoke, handleRevoke)
	vm.Register(core.TxClaimTransfer, handleTransfer)
}

func registry(ctx *vm.Context) (*poe.Registry, error) {
	params, err := ctx.Params()
	if err != nil {
		return nil, err
	}
	return poe.NewRegistry(ctx.State, params.MaxProofLength), nil
}

func handleCreate(ctx *vm.Context, payload json.RawMessage) error {
	var p core.ClaimPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode claim_create payload: %w", err)
	}
	r, err := registry(ctx)
	if err != nil {
		return err
	}
	if err := r.Create(ctx.Tx.From, p.Proof, ctx.Block.Header.Height); err != nil {
		return err
	}
	ctx.Emit(events.EventClaimCreated, map[string]any{"owner": ctx.Tx.From, "proof": p.Proof})
	return nil
}

func handleRevoke(ctx *vm.Context, payload json.RawMessage) error {
	var p core.ClaimPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode claim_revoke payload: %w", err)
	}
	r, err := registry(ctx)
	if err != nil {
		return err
	}
	if err := r.Revoke(ctx.Tx.From, p.Proof); err != nil {
		return err
	}
	ctx.Emit(events.EventClaimRevoked, map[string]any{"owner": ctx.Tx.From, "proof": p.Proof})
	return nil
}

func handleTransfer(ctx *vm.Context, payload json.RawMessage) error {
	var p core.ClaimTransferPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode claim_transfer payload: %w", err)
	}
	if !crypto.IsAccount(p.To) {
		return fmt.Errorf("claim_transfer to: invalid account %q", p.To)
	}
	r, err := registry(ctx)
	if err != nil {
		return err
	}
	if err := r.Transfer(ctx.Tx.From, p.Proof, p.To, ctx.Block.Header.Height); err != nil {
		return err
	}
	ctx.Emit(events.EventClaimTransferred, map[string]any{
		"from":  ctx.Tx.From,
		"to":    p.To,
		"proof": p.Proof,
	})
	return nil
}
