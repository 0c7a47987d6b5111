package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/tolelom/kittychain/core"
	"github.com/tolelom/kittychain/crypto"
	"github.com/tolelom/kittychain/kitty"
	"github.com/tolelom/kittychain/ledger"
	"github.com/tolelom/kittychain/randomness"
)

// GenesisHash is a canonical all-zeros previous hash for the genesis block.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// CreateGenesisBlock builds and signs block #0. It writes the chain params,
// the Alloc balances and the preloaded kitties into state and commits.
func CreateGenesisBlock(cfg *Config, state core.State, proposerPriv crypto.PrivateKey) (*core.Block, error) {
	proposerPub := proposerPriv.Public()
	params := cfg.Genesis.Params.WithDefaults()
	if err := state.SetParams(params); err != nil {
		return nil, err
	}

	accounts := make([]string, 0, len(cfg.Genesis.Alloc))
	for pubkeyHex := range cfg.Genesis.Alloc {
		accounts = append(accounts, pubkeyHex)
	}
	slices.Sort(accounts)
	for _, pubkeyHex := range accounts {
		acc := &core.Account{Address: pubkeyHex, Balance: cfg.Genesis.Alloc[pubkeyHex]}
		if err := state.SetAccount(acc); err != nil {
			return nil, err
		}
	}

	keeper := kitty.NewKeeper(state, params, kitty.Deps{
		Ledger: ledger.New(state, params.ExistentialDeposit),
		Random: randomness.NewBlockSource(GenesisHash, 0),
	})
	for i, gk := range cfg.Genesis.Kitties {
		d, err := core.ParseDNA(gk.DNA)
		if err != nil {
			return nil, fmt.Errorf("genesis kitty %d: %w", i, err)
		}
		if _, err := keeper.Mint(gk.Owner, d, core.Gender(gk.Gender)); err != nil {
			return nil, fmt.Errorf("genesis kitty %d: %w", i, err)
		}
	}

	stateRoot := state.ComputeRoot()
	if err := state.Commit(); err != nil {
		return nil, err
	}

	block := core.NewBlock(0, GenesisHash, proposerPub.Hex(), nil)
	block.Header.StateRoot = stateRoot
	// The genesis TxRoot commits to the chain id so two networks never share block #0.
	block.Header.TxRoot = crypto.Hash([]byte(cfg.Genesis.ChainID))
	block.Sign(proposerPriv)
	return block, nil
}

// IsGenesisHash returns true if the hash is the canonical genesis prev-hash.
func IsGenesisHash(h string) bool {
	return strings.Count(h, "0") == len(h) && len(h) == 64
}
