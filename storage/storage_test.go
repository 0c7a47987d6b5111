package storage_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/tolelom/kittychain/core"
	"github.com/tolelom/kittychain/internal/testutil"
	"github.com/tolelom/kittychain/storage"
)

// TestEngines runs the same DB contract against every on-disk engine.
func TestEngines(t *testing.T) {
	for _, engine := range []string{storage.EngineLevelDB, storage.EngineBolt} {
		t.Run(engine, func(t *testing.T) {
			db, err := storage.Open(engine, t.TempDir())
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer db.Close()

			if _, err := db.Get([]byte("missing")); !errors.Is(err, core.ErrNotFound) {
				t.Errorf("missing key: got %v want ErrNotFound", err)
			}
			for _, k := range []string{"p:b", "p:a", "q:z", "p:c"} {
				if err := db.Set([]byte(k), []byte("v-"+k)); err != nil {
					t.Fatal(err)
				}
			}
			if v, err := db.Get([]byte("p:a")); err != nil || string(v) != "v-p:a" {
				t.Errorf("Get: got %q, %v", v, err)
			}

			it := db.NewIterator([]byte("p:"))
			var keys []string
			for it.Next() {
				keys = append(keys, string(it.Key()))
			}
			it.Release()
			if err := it.Error(); err != nil {
				t.Fatal(err)
			}
			if want := []string{"p:a", "p:b", "p:c"}; len(keys) != 3 || keys[0] != want[0] || keys[2] != want[2] {
				t.Errorf("iterator keys: got %v want %v", keys, want)
			}

			batch := db.NewBatch()
			batch.Set([]byte("p:d"), []byte("4"))
			batch.Delete([]byte("p:a"))
			if err := batch.Write(); err != nil {
				t.Fatal(err)
			}
			if _, err := db.Get([]byte("p:a")); !errors.Is(err, core.ErrNotFound) {
				t.Errorf("deleted key: got %v", err)
			}
			if v, _ := db.Get([]byte("p:d")); string(v) != "4" {
				t.Errorf("batched key: got %q", v)
			}
		})
	}
}

func TestOpenUnknownEngine(t *testing.T) {
	if _, err := storage.Open("rocks", t.TempDir()); err == nil {
		t.Fatal("unknown engine should fail")
	}
}

// TestBoltPersists verifies committed state survives reopening the file.
func TestBoltPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.bolt")
	db, err := storage.NewBoltDB(path)
	if err != nil {
		t.Fatal(err)
	}
	st := storage.NewStateDB(db)
	_ = st.SetAccount(&core.Account{Address: "alice", Balance: 42})
	root := st.ComputeRoot()
	if err := st.Commit(); err != nil {
		t.Fatal(err)
	}
	db.Close()

	db, err = storage.NewBoltDB(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	st = storage.NewStateDB(db)
	acc, _ := st.GetAccount("alice")
	if acc.Balance != 42 {
		t.Errorf("balance after reopen: got %d want 42", acc.Balance)
	}
	if got := st.ComputeRoot(); got != root {
		t.Errorf("root after reopen: got %s want %s", got, root)
	}
}

func TestStateDBSnapshotRevert(t *testing.T) {
	st := testutil.NewStateDB()
	_ = st.SetAccount(&core.Account{Address: "alice", Balance: 10})
	base := st.ComputeRoot()

	outer, _ := st.Snapshot()
	_ = st.SetAccount(&core.Account{Address: "alice", Balance: 20})
	inner, _ := st.Snapshot()
	_ = st.SetKitty(&core.Kitty{ID: 0, Owner: "alice", Gender: core.GenderMale})
	_ = st.SetKittyCount(1)

	if err := st.RevertToSnapshot(inner); err != nil {
		t.Fatal(err)
	}
	if _, err := st.GetKitty(0); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("kitty after inner revert: got %v", err)
	}
	if n, _ := st.GetKittyCount(); n != 0 {
		t.Errorf("count after inner revert: got %d", n)
	}
	if acc, _ := st.GetAccount("alice"); acc.Balance != 20 {
		t.Errorf("balance after inner revert: got %d want 20", acc.Balance)
	}

	if err := st.RevertToSnapshot(outer); err != nil {
		t.Fatal(err)
	}
	if got := st.ComputeRoot(); got != base {
		t.Error("root after outer revert differs from base")
	}
	if err := st.RevertToSnapshot(inner); err == nil {
		t.Error("reverting a discarded snapshot should fail")
	}
}

func TestStateDBDefaults(t *testing.T) {
	st := testutil.NewStateDB()
	if p, _ := st.GetParams(); p != core.DefaultParams() {
		t.Errorf("params: got %+v", p)
	}
	if ids, _ := st.GetOwnedKitties("nobody"); ids == nil || len(ids) != 0 {
		t.Errorf("owned: got %#v want empty", ids)
	}
	if acc, _ := st.GetAccount("nobody"); acc.Address != "nobody" || acc.Balance != 0 {
		t.Errorf("account: got %+v", acc)
	}
}

// TestComputeRootIgnoresIndexKeys verifies only state prefixes feed the root.
func TestComputeRootIgnoresIndexKeys(t *testing.T) {
	db := testutil.NewMemDB()
	st := storage.NewStateDB(db)
	_ = st.SetAccount(&core.Account{Address: "alice", Balance: 1})
	root := st.ComputeRoot()
	if err := st.Commit(); err != nil {
		t.Fatal(err)
	}
	if got := st.ComputeRoot(); got != root {
		t.Error("commit changed the root")
	}
	_ = db.Set([]byte("idx:children:0000000001"), []byte("[2]"))
	_ = db.Set([]byte("block:abc"), []byte("{}"))
	if got := st.ComputeRoot(); got != root {
		t.Error("non-state keys changed the root")
	}
}

func TestBlockStore(t *testing.T) {
	bs := storage.NewBlockStore(testutil.NewMemDB())
	if tip, err := bs.GetTip(); err != nil || tip != "" {
		t.Fatalf("fresh tip: got %q, %v", tip, err)
	}
	b := core.NewBlock(3, "prev", "proposer", nil)
	b.Hash = b.ComputeHash()
	if err := bs.CommitBlock(b); err != nil {
		t.Fatal(err)
	}
	got, err := bs.GetBlockByHeight(3)
	if err != nil {
		t.Fatal(err)
	}
	if got.Hash != b.Hash {
		t.Errorf("hash: got %s want %s", got.Hash, b.Hash)
	}
	if tip, _ := bs.GetTip(); tip != b.Hash {
		t.Errorf("tip: got %s want %s", tip, b.Hash)
	}
}

// TestStateDBDeletes verifies a buffered delete hides persisted data, drops
// out of the root, reverts with its snapshot and reaches the DB on commit.
func TestStateDBDeletes(t *testing.T) {
	db := testutil.NewMemDB()
	st := storage.NewStateDB(db)
	_ = st.SetAccount(&core.Account{Address: "alice", Balance: 1})
	empty := st.ComputeRoot()

	_ = st.SetClaim("0a0b", &core.Claim{Owner: "alice", BlockHeight: 3})
	_ = st.SetAllowance("alice", "bob", 40)
	if err := st.Commit(); err != nil {
		t.Fatal(err)
	}
	full := st.ComputeRoot()
	if full == empty {
		t.Fatal("claim and allowance should change the root")
	}

	snap, _ := st.Snapshot()
	_ = st.DeleteClaim("0a0b")
	_ = st.SetAllowance("alice", "bob", 0)
	if _, err := st.GetClaim("0a0b"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("claim after delete: got %v", err)
	}
	if n, _ := st.GetAllowance("alice", "bob"); n != 0 {
		t.Errorf("allowance after reset: got %d", n)
	}
	if got := st.ComputeRoot(); got != empty {
		t.Error("deleted entries still feed the root")
	}

	if err := st.RevertToSnapshot(snap); err != nil {
		t.Fatal(err)
	}
	if c, err := st.GetClaim("0a0b"); err != nil || c.Owner != "alice" || c.BlockHeight != 3 {
		t.Errorf("claim after revert: got %+v, %v", c, err)
	}
	if n, _ := st.GetAllowance("alice", "bob"); n != 40 {
		t.Errorf("allowance after revert: got %d want 40", n)
	}

	_ = st.DeleteClaim("0a0b")
	if err := st.Commit(); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Get([]byte("claim:0a0b")); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("claim key after commit: got %v", err)
	}
	if got := storage.NewStateDB(db).ComputeRoot(); got == full {
		t.Error("root after committed delete should differ")
	}
}
