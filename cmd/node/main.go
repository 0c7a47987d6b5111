// Command node starts a kittychain node.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"golang.org/x/sync/errgroup"

	"github.com/tolelom/kittychain/config"
	"github.com/tolelom/kittychain/consensus"
	"github.com/tolelom/kittychain/core"
	"github.com/tolelom/kittychain/crypto"
	"github.com/tolelom/kittychain/events"
	"github.com/tolelom/kittychain/indexer"
	"github.com/tolelom/kittychain/rpc"
	"github.com/tolelom/kittychain/storage"
	"github.com/tolelom/kittychain/wallet"

	// Import VM modules to trigger their init() self-registration.
	_ "github.com/tolelom/kittychain/vm/modules/claims"
	_ "github.com/tolelom/kittychain/vm/modules/economy"
	_ "github.com/tolelom/kittychain/vm/modules/kitties"
)

func main() {
	cfgPath := flag.String("config", "config.json", "path to config file (.json or .hcl)")
	keyPath := flag.String("key", "validator.key", "path to keystore file")
	genKey := flag.Bool("genkey", false, "generate a new validator key and exit")
	flag.Parse()

	// Read keystore password from environment; CLI flags leak via ps.
	password := os.Getenv("KITTY_PASSWORD")
	if password == "" {
		log.Println("WARNING: KITTY_PASSWORD not set, keystore will use an empty password")
	}

	// ---- generate key mode ----
	if *genKey {
		w, err := wallet.Generate("")
		if err != nil {
			log.Fatal(err)
		}
		id, err := wallet.SaveKey(*keyPath, password, w.PrivKey())
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Generated key %s. Public key (validator account): %s\n", id, w.Account())
		fmt.Printf("Saved to: %s\n", *keyPath)
		return
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	privKey, err := wallet.LoadKey(*keyPath, password)
	if err != nil {
		log.Fatalf("load key: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, privKey); err != nil {
		log.Fatal(err)
	}
	log.Println("Shutdown complete.")
}

func run(ctx context.Context, cfg *config.Config, privKey crypto.PrivateKey) error {
	interval, err := cfg.Interval()
	if err != nil {
		return err
	}
	if len(cfg.Validators) == 0 {
		cfg.Validators = []string{privKey.Public().Hex()}
		log.Printf("[node] no validators configured; running as sole authority")
	}

	// ---- open DB ----
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("mkdir data dir: %w", err)
	}
	db, err := storage.Open(cfg.DBEngine, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()
	log.Printf("[node] storage engine %s at %s", cfg.DBEngine, cfg.DataDir)

	// Blocks, state and indexes share one DB under distinct key prefixes.
	state := storage.NewStateDB(db)
	bc := core.NewBlockchain(storage.NewBlockStore(db))
	if err := bc.Init(); err != nil {
		return fmt.Errorf("blockchain init: %w", err)
	}

	// ---- genesis block (if fresh chain) ----
	if bc.Tip() == nil {
		genesisBlock, err := config.CreateGenesisBlock(cfg, state, privKey)
		if err != nil {
			return fmt.Errorf("genesis: %w", err)
		}
		if err := bc.AddBlock(genesisBlock); err != nil {
			return fmt.Errorf("add genesis: %w", err)
		}
		log.Printf("[node] genesis block committed: %s", genesisBlock.Hash)
	}

	emitter := events.NewEmitter()
	idx := indexer.New(db, emitter)
	mempool := core.NewMempool()
	authority := consensus.New(cfg, bc, state, mempool, emitter, privKey)

	// ---- RPC ----
	rpcHandler := rpc.NewHandler(bc, mempool, authority, idx, cfg.Genesis.ChainID)
	rpcServer := rpc.NewServer(fmt.Sprintf(":%d", cfg.RPCPort), rpcHandler, cfg.RPCAuthToken,
		rpc.WithRateLimit(cfg.RPCRateLimit))
	if err := rpcServer.Start(); err != nil {
		return fmt.Errorf("rpc start: %w", err)
	}
	if cfg.RPCAuthToken != "" {
		log.Println("[node] RPC Bearer token authentication enabled")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("[node] consensus running (validator: %s)", authority.PubKey())
		return authority.Run(ctx, interval)
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Println("[node] shutting down...")
		// Stop RPC before the deferred db.Close.
		return rpcServer.Stop()
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("Config file not found at %s, using defaults.", path)
			cfg = config.DefaultConfig()
			if err := config.ApplyEnv(cfg); err != nil {
				return nil, err
			}
			return cfg, cfg.Validate()
		}
		return nil, err
	}
	return cfg, nil
}
