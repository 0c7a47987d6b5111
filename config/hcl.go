package config

import (
	"fmt"
	"math"

	"github.com/hashicorp/hcl"
	"github.com/hashicorp/hcl/hcl/ast"
)

// hclFile is the flat HCL layout. The decoder only fills signed integers,
// so amounts are read as int64 and range-checked on the way in.
//
//	node_id   = "node0"
//	db_engine = "bolt"
//	chain_id  = "kittychain-dev"
//	kitty_deposit = 100
//	alloc = { "<pubkey>" = 1000 }
//	kitty {
//	  owner  = "<pubkey>"
//	  dna    = "<32 hex>"
//	  gender = "male"
//	}
type hclFile struct {
	NodeID        *string          `hcl:"node_id"`
	DataDir       *string          `hcl:"data_dir"`
	DBEngine      *string          `hcl:"db_engine"`
	RPCPort       *int             `hcl:"rpc_port"`
	RPCAuthToken  *string          `hcl:"rpc_auth_token"`
	RPCRateLimit  *float64         `hcl:"rpc_rate_limit"`
	BlockInterval *string          `hcl:"block_interval"`
	MaxBlockTxs   *int             `hcl:"max_block_txs"`
	Validators    []string         `hcl:"validators"`
	ChainID       *string          `hcl:"chain_id"`
	Alloc         map[string]int64 `hcl:"alloc"`

	MaxOwned           *int   `hcl:"max_owned"`
	KittyDeposit       *int64 `hcl:"kitty_deposit"`
	ExistentialDeposit *int64 `hcl:"existential_deposit"`
	KittyIndexLimit    *int64 `hcl:"kitty_index_limit"`
	MaxProofLength     *int   `hcl:"max_proof_length"`
}

// decodeHCL overlays the keys present in data onto cfg. Repeated kitty
// blocks are decoded one at a time: the struct decoder would split each
// block's fields into separate list entries.
func decodeHCL(data []byte, cfg *Config) error {
	file, err := hcl.Parse(string(data))
	if err != nil {
		return err
	}
	var f hclFile
	if err := hcl.DecodeObject(&f, file); err != nil {
		return err
	}
	kitties, err := decodeKitties(file)
	if err != nil {
		return err
	}
	setString(&cfg.NodeID, f.NodeID)
	setString(&cfg.DataDir, f.DataDir)
	setString(&cfg.DBEngine, f.DBEngine)
	setString(&cfg.RPCAuthToken, f.RPCAuthToken)
	setString(&cfg.BlockInterval, f.BlockInterval)
	setString(&cfg.Genesis.ChainID, f.ChainID)
	if f.RPCPort != nil {
		cfg.RPCPort = *f.RPCPort
	}
	if f.RPCRateLimit != nil {
		cfg.RPCRateLimit = *f.RPCRateLimit
	}
	if f.MaxBlockTxs != nil {
		cfg.MaxBlockTxs = *f.MaxBlockTxs
	}
	if f.Validators != nil {
		cfg.Validators = f.Validators
	}
	if f.MaxOwned != nil {
		cfg.Genesis.Params.MaxOwned = *f.MaxOwned
	}
	if f.MaxProofLength != nil {
		cfg.Genesis.Params.MaxProofLength = *f.MaxProofLength
	}
	if f.KittyDeposit != nil {
		v, err := toUint64("kitty_deposit", *f.KittyDeposit)
		if err != nil {
			return err
		}
		cfg.Genesis.Params.KittyDeposit = v
	}
	if f.ExistentialDeposit != nil {
		v, err := toUint64("existential_deposit", *f.ExistentialDeposit)
		if err != nil {
			return err
		}
		cfg.Genesis.Params.ExistentialDeposit = v
	}
	if f.KittyIndexLimit != nil {
		v := *f.KittyIndexLimit
		if v < 0 || v > math.MaxUint32 {
			return fmt.Errorf("kitty_index_limit out of range: %d", v)
		}
		cfg.Genesis.Params.KittyIndexLimit = uint32(v)
	}
	if len(f.Alloc) > 0 {
		cfg.Genesis.Alloc = make(map[string]uint64, len(f.Alloc))
		for k, v := range f.Alloc {
			amount, err := toUint64("alloc "+k, v)
			if err != nil {
				return err
			}
			cfg.Genesis.Alloc[k] = amount
		}
	}
	if kitties != nil {
		cfg.Genesis.Kitties = kitties
	}
	return nil
}

// decodeKitties returns one GenesisKitty per top-level kitty block, in file
// order, or nil when there are none.
func decodeKitties(file *ast.File) ([]GenesisKitty, error) {
	root, ok := file.Node.(*ast.ObjectList)
	if !ok {
		return nil, fmt.Errorf("hcl: unexpected root node %T", file.Node)
	}
	var out []GenesisKitty
	for i, item := range root.Filter("kitty").Items {
		if len(item.Keys) != 0 {
			return nil, fmt.Errorf("kitty block %d: labels are not allowed", i)
		}
		if _, ok := item.Val.(*ast.ObjectType); !ok {
			return nil, fmt.Errorf("kitty block %d: expected a block, got %T", i, item.Val)
		}
		var gk GenesisKitty
		if err := hcl.DecodeObject(&gk, item.Val); err != nil {
			return nil, fmt.Errorf("kitty block %d: %w", i, err)
		}
		out = append(out, gk)
	}
	return out, nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func toUint64(name string, v int64) (uint64, error) {
	if v < 0 {
		return 0, fmt.Errorf("%s must not be negative: %d", name, v)
	}
	return uint64(v), nil
}
