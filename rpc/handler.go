package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/tolelom/kittychain/core"
	"github.com/tolelom/kittychain/indexer"
	"github.com/tolelom/kittychain/kitty"
	"github.com/tolelom/kittychain/poe"
	"github.com/tolelom/kittychain/vm"
)

// StateView runs fn against a consistent, committed view of the chain state.
type StateView interface {
	View(fn func(core.State) error) error
}

// Handler holds all dependencies needed to serve RPC methods.
type Handler struct {
	bc       *core.Blockchain
	mempool  *core.Mempool
	state    StateView
	indexer  *indexer.Indexer
	chainID  string // expected chain_id; used to reject cross-chain replay transactions
	validate *validator.Validate
}

// NewHandler creates an RPC Handler.
func NewHandler(bc *core.Blockchain, mempool *core.Mempool, state StateView, idx *indexer.Indexer, chainID string) *Handler {
	return &Handler{
		bc:       bc,
		mempool:  mempool,
		state:    state,
		indexer:  idx,
		chainID:  chainID,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "getBlockHeight":
		return okResponse(req.ID, h.bc.Height())

	case "getBlock":
		return h.getBlock(req)

	case "getBalance":
		return h.getBalance(req)

	case "getKitty":
		return h.getKitty(req)

	case "getKittiesByOwner":
		return h.getKittiesByOwner(req)

	case "getKittyCount":
		return h.getKittyCount(req)

	case "getChildren":
		return h.getChildren(req)

	case "getSales":
		return h.getSales(req)

	case "getAllowance":
		return h.getAllowance(req)

	case "getClaim":
		return h.getClaim(req)

	case "sendTx":
		return h.sendTx(req)

	case "getMempoolSize":
		return okResponse(req.ID, h.mempool.Size())

	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

// decodeParams unmarshals and validates req.Params into dst.
func (h *Handler) decodeParams(req Request, dst any) *Response {
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, dst); err != nil {
			resp := errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
			return &resp
		}
	}
	if err := h.validate.Struct(dst); err != nil {
		resp := errResponse(req.ID, CodeInvalidParams, err.Error())
		return &resp
	}
	return nil
}

type accountParams struct {
	Address string `json:"address" validate:"required,hexadecimal,len=64"`
}

type kittyParams struct {
	ID *uint32 `json:"id" validate:"required"`
}

func (h *Handler) getBlock(req Request) Response {
	var params struct {
		Hash   string `json:"hash" validate:"omitempty,hexadecimal"`
		Height *int64 `json:"height" validate:"omitempty,min=0"`
	}
	if resp := h.decodeParams(req, &params); resp != nil {
		return *resp
	}

	var block *core.Block
	var err error
	if params.Hash != "" {
		block, err = h.bc.GetBlock(params.Hash)
	} else if params.Height != nil {
		block, err = h.bc.GetBlockByHeight(*params.Height)
	} else {
		block = h.bc.Tip()
	}
	if err != nil {
		return failResponse(req.ID, err)
	}
	if block == nil {
		return errResponse(req.ID, CodeNotFound, "chain has no blocks")
	}
	return okResponse(req.ID, block)
}

func (h *Handler) getBalance(req Request) Response {
	var params accountParams
	if resp := h.decodeParams(req, &params); resp != nil {
		return *resp
	}
	var acc *core.Account
	err := h.state.View(func(s core.State) error {
		var err error
		acc, err = s.GetAccount(params.Address)
		return err
	})
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]any{
		"address":  params.Address,
		"balance":  acc.Balance,
		"reserved": acc.Reserved,
		"nonce":    acc.Nonce,
	})
}

func (h *Handler) getKitty(req Request) Response {
	var params kittyParams
	if resp := h.decodeParams(req, &params); resp != nil {
		return *resp
	}
	var k *core.Kitty
	err := h.state.View(func(s core.State) error {
		var err error
		k, err = kitty.NewView(s).Kitty(*params.ID)
		return err
	})
	if err != nil {
		return failResponse(req.ID, err)
	}
	return okResponse(req.ID, k)
}

func (h *Handler) getKittiesByOwner(req Request) Response {
	var params struct {
		Owner string `json:"owner" validate:"required,hexadecimal,len=64"`
	}
	if resp := h.decodeParams(req, &params); resp != nil {
		return *resp
	}
	var ids []uint32
	err := h.state.View(func(s core.State) error {
		var err error
		ids, err = kitty.NewView(s).Owned(params.Owner)
		return err
	})
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	if ids == nil {
		ids = []uint32{}
	}
	return okResponse(req.ID, ids)
}

func (h *Handler) getKittyCount(req Request) Response {
	var n uint32
	err := h.state.View(func(s core.State) error {
		var err error
		n, err = kitty.NewView(s).Count()
		return err
	})
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, n)
}

func (h *Handler) getChildren(req Request) Response {
	var params kittyParams
	if resp := h.decodeParams(req, &params); resp != nil {
		return *resp
	}
	ids, err := h.indexer.GetChildren(*params.ID)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	if ids == nil {
		ids = []uint32{}
	}
	return okResponse(req.ID, ids)
}

func (h *Handler) getSales(req Request) Response {
	var params kittyParams
	if resp := h.decodeParams(req, &params); resp != nil {
		return *resp
	}
	sales, err := h.indexer.GetSales(*params.ID)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	if sales == nil {
		sales = []indexer.Sale{}
	}
	return okResponse(req.ID, sales)
}

func (h *Handler) getAllowance(req Request) Response {
	var params struct {
		Owner   string `json:"owner" validate:"required,hexadecimal,len=64"`
		Spender string `json:"spender" validate:"required,hexadecimal,len=64"`
	}
	if resp := h.decodeParams(req, &params); resp != nil {
		return *resp
	}
	var amount uint64
	err := h.state.View(func(s core.State) error {
		var err error
		amount, err = s.GetAllowance(params.Owner, params.Spender)
		return err
	})
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]any{
		"owner":   params.Owner,
		"spender": params.Spender,
		"amount":  amount,
	})
}

func (h *Handler) getClaim(req Request) Response {
	var params struct {
		Proof string `json:"proof" validate:"required,hexadecimal"`
	}
	if resp := h.decodeParams(req, &params); resp != nil {
		return *resp
	}
	var c *core.Claim
	err := h.state.View(func(s core.State) error {
		p, err := s.GetParams()
		if err != nil {
			return err
		}
		c, err = poe.NewRegistry(s, p.WithDefaults().MaxProofLength).Get(params.Proof)
		return err
	})
	if err != nil {
		return failResponse(req.ID, err)
	}
	return okResponse(req.ID, c)
}

func (h *Handler) sendTx(req Request) Response {
	var tx core.Transaction
	if err := json.Unmarshal(req.Params, &tx); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	// Reject transactions destined for a different network to prevent
	// cross-chain replay attacks.
	if tx.ChainID != h.chainID {
		return errResponse(req.ID, CodeInvalidParams,
			fmt.Sprintf("chain ID mismatch: got %q want %q", tx.ChainID, h.chainID))
	}
	if !vm.Supported(tx.Type) {
		return errResponse(req.ID, CodeInvalidParams, fmt.Sprintf("unsupported tx type %q", tx.Type))
	}
	if err := tx.Verify(); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "signature: "+err.Error())
	}
	// Recompute the ID server-side; do not trust the client-provided value.
	tx.ID = tx.Hash()
	if err := h.mempool.Add(&tx); err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]string{"tx_id": tx.ID})
}
