// Package poe keeps a proof-of-existence registry. An account claims an
// opaque proof, usually a document digest, and may later revoke it or hand
// it to another account. Proofs travel as hex strings.
package poe

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/tolelom/kittychain/core"
)

var (
	ErrInvalidProof        = errors.New("proof is not hex")
	ErrEmptyProof          = errors.New("proof is empty")
	ErrProofTooLong        = errors.New("proof too long")
	ErrProofAlreadyClaimed = errors.New("proof already claimed")
	ErrNoSuchProof         = errors.New("proof not claimed")
	ErrNotProofOwner       = errors.New("caller is not the proof owner")
)

// Registry stores one claim per proof.
type Registry struct {
	state  core.State
	maxLen int
}

// NewRegistry returns a Registry over state accepting proofs of at most
// maxLen bytes. A non-positive maxLen selects the default.
func NewRegistry(state core.State, maxLen int) *Registry {
	if maxLen <= 0 {
		maxLen = core.DefaultParams().MaxProofLength
	}
	return &Registry{state: state, maxLen: maxLen}
}

// key decodes proof and returns its canonical lower-case form.
func (r *Registry) key(proof string) (string, error) {
	b, err := hex.DecodeString(proof)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	if len(b) == 0 {
		return "", ErrEmptyProof
	}
	if len(b) > r.maxLen {
		return "", fmt.Errorf("%w: %d bytes, max %d", ErrProofTooLong, len(b), r.maxLen)
	}
	return hex.EncodeToString(b), nil
}

func (r *Registry) load(key string) (*core.Claim, error) {
	c, err := r.state.GetClaim(key)
	if errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchProof, key)
	}
	if err != nil {
		return nil, fmt.Errorf("load claim %s: %w", key, err)
	}
	return c, nil
}

// Get returns the claim on proof, or ErrNoSuchProof.
func (r *Registry) Get(proof string) (*core.Claim, error) {
	key, err := r.key(proof)
	if err != nil {
		return nil, err
	}
	return r.load(key)
}

// Create records owner as the holder of proof from height on.
func (r *Registry) Create(owner, proof string, height int64) error {
	key, err := r.key(proof)
	if err != nil {
		return err
	}
	_, err = r.state.GetClaim(key)
	if err == nil {
		return fmt.Errorf("%w: %s", ErrProofAlreadyClaimed, key)
	}
	if !errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("check claim %s: %w", key, err)
	}
	return r.state.SetClaim(key, &core.Claim{Owner: owner, BlockHeight: height})
}

// Revoke removes the caller's claim so the proof can be claimed again.
func (r *Registry) Revoke(caller, proof string) error {
	key, _, err := r.owned(caller, proof)
	if err != nil {
		return err
	}
	return r.state.DeleteClaim(key)
}

// Transfer hands the caller's claim to another account, stamped with the
// height of the transfer.
func (r *Registry) Transfer(caller, proof, to string, height int64) error {
	key, c, err := r.owned(caller, proof)
	if err != nil {
		return err
	}
	c.Owner = to
	c.BlockHeight = height
	return r.state.SetClaim(key, c)
}

func (r *Registry) owned(caller, proof string) (string, *core.Claim, error) {
	key, err := r.key(proof)
	if err != nil {
		return "", nil, err
	}
	c, err := r.load(key)
	if err != nil {
		return "", nil, err
	}
	if c.Owner != caller {
		return "", nil, ErrNotProofOwner
	}
	return key, c, nil
}
