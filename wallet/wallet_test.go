package wallet

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/tolelom/kittychain/crypto"
)

func TestKeystoreRoundTrip(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "key.json")
	id, err := SaveKey(path, "hunter2", priv)
	if err != nil {
		t.Fatalf("SaveKey: %v", err)
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("keystore id %q is not a uuid: %v", id, err)
	}

	got, err := LoadKey(path, "hunter2")
	if err != nil {
		t.Fatalf("LoadKey: %v", err)
	}
	if got.Hex() != priv.Hex() {
		t.Error("decrypted key does not match")
	}

	if _, err := LoadKey(path, "wrong"); !errors.Is(err, ErrWrongPassword) {
		t.Errorf("wrong password: got %v want ErrWrongPassword", err)
	}
}

// TestKeystoreRejectsTampering verifies that a swapped public key or an
// unknown KDF is refused.
func TestKeystoreRejectsTampering(t *testing.T) {
	priv, _, _ := crypto.GenerateKeyPair()
	other, _, _ := crypto.GenerateKeyPair()
	dir := t.TempDir()

	tamper := func(name string, edit func(*keystoreFile)) string {
		path := filepath.Join(dir, name)
		if _, err := SaveKey(path, "pw", priv); err != nil {
			t.Fatal(err)
		}
		data, _ := os.ReadFile(path)
		var ks keystoreFile
		if err := json.Unmarshal(data, &ks); err != nil {
			t.Fatal(err)
		}
		edit(&ks)
		data, _ = json.Marshal(ks)
		if err := os.WriteFile(path, data, 0600); err != nil {
			t.Fatal(err)
		}
		return path
	}

	pubPath := tamper("pub.json", func(ks *keystoreFile) { ks.PubKey = other.Public().Hex() })
	if _, err := LoadKey(pubPath, "pw"); err == nil {
		t.Error("expected error for mismatched pub_key")
	}
	kdfPath := tamper("kdf.json", func(ks *keystoreFile) { ks.KDF.Name = "scrypt" })
	if _, err := LoadKey(kdfPath, "pw"); err == nil {
		t.Error("expected error for unknown kdf")
	}
	idPath := tamper("id.json", func(ks *keystoreFile) { ks.ID = "not-a-uuid" })
	if _, err := LoadKey(idPath, "pw"); err == nil {
		t.Error("expected error for malformed id")
	}
}

func TestWalletBuildsSignedTxs(t *testing.T) {
	w, err := Generate("test-chain")
	if err != nil {
		t.Fatal(err)
	}
	price := uint64(40)
	tx, err := w.SetPrice(3, &price, 7, 1)
	if err != nil {
		t.Fatal(err)
	}
	if tx.From != w.Account() || tx.Nonce != 7 || tx.Fee != 1 || tx.ChainID != "test-chain" {
		t.Errorf("unexpected tx header: %+v", tx)
	}
	if err := tx.Verify(); err != nil {
		t.Errorf("Verify: %v", err)
	}
	var payload struct {
		KittyID uint32  `json:"kitty_id"`
		Price   *uint64 `json:"price"`
	}
	if err := json.Unmarshal(tx.Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.KittyID != 3 || payload.Price == nil || *payload.Price != 40 {
		t.Errorf("payload: got %+v", payload)
	}
}
