// Package wallet provides key management and transaction signing helpers.
package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"

	"github.com/tolelom/kittychain/crypto"
)

// ErrWrongPassword is returned when a keystore fails to decrypt.
var ErrWrongPassword = errors.New("wrong password or corrupted keystore")

const (
	kdfName       = "pbkdf2-sha256"
	kdfIterations = 210_000
	keystoreVer   = 1
)

type kdfParams struct {
	Name       string `json:"name"`
	Iterations int    `json:"iterations"`
	Salt       string `json:"salt"`
}

type keystoreFile struct {
	Version    int       `json:"version"`
	ID         string    `json:"id"`
	PubKey     string    `json:"pub_key"`
	KDF        kdfParams `json:"kdf"`
	Nonce      string    `json:"nonce"`
	CipherText string    `json:"cipher_text"`
}

// SaveKey encrypts priv with password and writes it to path with AES-GCM
// under a PBKDF2-SHA256 key. It returns the keystore's random id.
func SaveKey(path, password string, priv crypto.PrivateKey) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	gcm, err := newGCM(password, salt, kdfIterations)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	cipherText := gcm.Seal(nil, nonce, priv, nil)

	ks := keystoreFile{
		Version: keystoreVer,
		ID:      uuid.NewString(),
		PubKey:  priv.Public().Hex(),
		KDF: kdfParams{
			Name:       kdfName,
			Iterations: kdfIterations,
			Salt:       hex.EncodeToString(salt),
		},
		Nonce:      hex.EncodeToString(nonce),
		CipherText: hex.EncodeToString(cipherText),
	}
	data, err := json.MarshalIndent(ks, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", err
	}
	return ks.ID, nil
}

// LoadKey decrypts the keystore at path using password.
func LoadKey(path, password string) (crypto.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ks keystoreFile
	if err := json.Unmarshal(data, &ks); err != nil {
		return nil, err
	}
	if ks.KDF.Name != kdfName {
		return nil, fmt.Errorf("unsupported kdf %q", ks.KDF.Name)
	}
	if ks.KDF.Iterations <= 0 {
		return nil, fmt.Errorf("invalid kdf iterations %d", ks.KDF.Iterations)
	}
	if _, err := uuid.Parse(ks.ID); err != nil {
		return nil, fmt.Errorf("keystore id: %w", err)
	}
	salt, err := hex.DecodeString(ks.KDF.Salt)
	if err != nil {
		return nil, err
	}
	nonce, err := hex.DecodeString(ks.Nonce)
	if err != nil {
		return nil, err
	}
	cipherText, err := hex.DecodeString(ks.CipherText)
	if err != nil {
		return nil, err
	}

	gcm, err := newGCM(password, salt, ks.KDF.Iterations)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, ErrWrongPassword
	}
	privBytes, err := gcm.Open(nil, nonce, cipherText, nil)
	if err != nil {
		return nil, ErrWrongPassword
	}
	priv := crypto.PrivateKey(privBytes)
	if priv.Public().Hex() != ks.PubKey {
		return nil, errors.New("keystore pub_key does not match decrypted key")
	}
	return priv, nil
}

func newGCM(password string, salt []byte, iterations int) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, iterations, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
