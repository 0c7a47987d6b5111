// Package kitties exposes the kitty keeper as transaction handlers.
package kitties

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tolelom/kittychain/core"
	"github.com/tolelom/kittychain/crypto"
	"github.com/tolelom/kittychain/kitty"
	"github.com/tolelom/kittychain/ledger"
	"github.com/tolelom/kittychain/vm"
)

func init() {
	vm.Register(core.TxKittyCreate, handleCreate)
	vm.Register(core.TxKittyTransfer, handleTransfer)
	vm.Register(core.TxKittyBreed, handleBreed)
	vm.Register(core.TxKittySetPrice, handleSetPrice)
	vm.Register(core.TxKittyBuy, handleBuy)
}

func keeper(ctx *vm.Context) (*kitty.Keeper, error) {
	params, err := ctx.Params()
	if err != nil {
		return nil, err
	}
	return kitty.NewKeeper(ctx.State, params, kitty.Deps{
		Ledger: ledger.New(ctx.State, params.ExistentialDeposit),
		Random: ctx.Random,
		Events: ctx.Events,
	}), nil
}

func origin(ctx *vm.Context) kitty.Origin {
	return kitty.Origin{Account: ctx.Tx.From, Index: ctx.TxIndex}
}

// decode rejects fields the payload type does not declare, so a
// kitty_create payload must be empty, null or {}.
func decode(payload json.RawMessage, v any, what string) error {
	if len(payload) == 0 || string(payload) == "null" {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode %s payload: %w", what, err)
	}
	return nil
}

func handleCreate(ctx *vm.Context, payload json.RawMessage) error {
	if err := decode(payload, &core.KittyCreatePayload{}, "kitty_create"); err != nil {
		return err
	}
	k, err := keeper(ctx)
	if err != nil {
		return err
	}
	_, err = k.Create(origin(ctx))
	return err
}

func handleTransfer(ctx *vm.Context, payload json.RawMessage) error {
	var p core.KittyTransferPayload
	if err := decode(payload, &p, "kitty_transfer"); err != nil {
		return err
	}
	if !crypto.IsAccount(p.To) {
		return fmt.Errorf("kitty_transfer to: invalid account %q", p.To)
	}
	k, err := keeper(ctx)
	if err != nil {
		return err
	}
	return k.Transfer(origin(ctx), p.To, p.KittyID)
}

func handleBreed(ctx *vm.Context, payload json.RawMessage) error {
	var p core.KittyBreedPayload
	if err := decode(payload, &p, "kitty_breed"); err != nil {
		return err
	}
	k, err := keeper(ctx)
	if err != nil {
		return err
	}
	_, err = k.Breed(origin(ctx), p.ParentA, p.ParentB)
	return err
}

func handleSetPrice(ctx *vm.Context, payload json.RawMessage) error {
	var p core.KittySetPricePayload
	if err := decode(payload, &p, "kitty_set_price"); err != nil {
		return err
	}
	k, err := keeper(ctx)
	if err != nil {
		return err
	}
	return k.SetPrice(origin(ctx), p.KittyID, p.Price)
}

func handleBuy(ctx *vm.Context, payload json.RawMessage) error {
	var p core.KittyBuyPayload
	if err := decode(payload, &p, "kitty_buy"); err != nil {
		return err
	}
	k, err := keeper(ctx)
	if err != nil {
		return err
	}
	_, err = k.Buy(origin(ctx), p.KittyID)
	return err
}
