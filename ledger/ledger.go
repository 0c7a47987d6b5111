// Package ledger implements the fungible balance primitives the kitty
// marketplace relies on (reserve, unreserve, transfer and repatriation of
// reserved funds) plus delegated spending through allowances. Balances live in core.State accounts, so every ledger
// write is covered by the caller's state snapshot.
package ledger

import (
	"errors"
	"fmt"
	"math"

	"github.com/tolelom/kittychain/core"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrKeepAlive             = errors.New("transfer would drop sender below existential deposit")
	ErrOverflow              = errors.New("balance overflow")
)

// Ledger moves balances between free and reserved and between accounts.
type Ledger struct {
	state       core.State
	existential uint64
}

// New returns a Ledger over state. Keep-alive transfers must leave the
// sender with at least existential free balance.
func New(state core.State, existential uint64) *Ledger {
	return &Ledger{state: state, existential: existential}
}

// Balance returns the account's free and reserved amounts.
func (l *Ledger) Balance(addr string) (free, reserved uint64, err error) {
	acc, err := l.state.GetAccount(addr)
	if err != nil {
		return 0, 0, err
	}
	return acc.Balance, acc.Reserved, nil
}

// Reserve moves amount from free to reserved.
func (l *Ledger) Reserve(addr string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	acc, err := l.state.GetAccount(addr)
	if err != nil {
		return err
	}
	if acc.Balance < amount {
		return fmt.Errorf("%w: reserve %d, free %d", ErrInsufficientBalance, amount, acc.Balance)
	}
	if acc.Reserved > math.MaxUint64-amount {
		return ErrOverflow
	}
	acc.Balance -= amount
	acc.Reserved += amount
	return l.state.SetAccount(acc)
}

// Unreserve moves up to amount from reserved back to free. Asking for more
// than is reserved releases everything that is.
func (l *Ledger) Unreserve(addr string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	acc, err := l.state.GetAccount(addr)
	if err != nil {
		return err
	}
	amount = min(amount, acc.Reserved)
	if amount == 0 {
		return nil
	}
	if acc.Balance > math.MaxUint64-amount {
		return ErrOverflow
	}
	acc.Reserved -= amount
	acc.Balance += amount
	return l.state.SetAccount(acc)
}

// Transfer moves amount of free balance from one account to another. With
// keepAlive the sender must keep at least the existential deposit.
func (l *Ledger) Transfer(from, to string, amount uint64, keepAlive bool) error {
	if amount == 0 || from == to {
		return nil
	}
	src, err := l.state.GetAccount(from)
	if err != nil {
		return err
	}
	if src.Balance < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, src.Balance, amount)
	}
	if keepAlive && src.Balance-amount < l.existential {
		return fmt.Errorf("%w: %d left, minimum %d", ErrKeepAlive, src.Balance-amount, l.existential)
	}
	dst, err := l.state.GetAccount(to)
	if err != nil {
		return err
	}
	if dst.Balance > math.MaxUint64-amount {
		return ErrOverflow
	}
	src.Balance -= amount
	dst.Balance += amount
	if err := l.state.SetAccount(src); err != nil {
		return err
	}
	return l.state.SetAccount(dst)
}

// RepatriateReserved moves up to amount of from's reserved balance into
// to's reserved balance.
func (l *Ledger) RepatriateReserved(from, to string, amount uint64) error {
	if amount == 0 || from == to {
		return nil
	}
	src, err := l.state.GetAccount(from)
	if err != nil {
		return err
	}
	amount = min(amount, src.Reserved)
	if amount == 0 {
		return nil
	}
	dst, err := l.state.GetAccount(to)
	if err != nil {
		return err
	}
	if dst.Reserved > math.MaxUint64-amount {
		return ErrOverflow
	}
	src.Reserved -= amount
	dst.Reserved += amount
	if err := l.state.SetAccount(src); err != nil {
		return err
	}
	return l.state.SetAccount(dst)
}

// Withdraw burns amount of free balance, used for transaction fees.
func (l *Ledger) Withdraw(addr string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	acc, err := l.state.GetAccount(addr)
	if err != nil {
		return err
	}
	if acc.Balance < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, acc.Balance, amount)
	}
	acc.Balance -= amount
	return l.state.SetAccount(acc)
}

// Allowance returns how much spender may still move out of owner's free
// balance.
func (l *Ledger) Allowance(owner, spender string) (uint64, error) {
	return l.state.GetAllowance(owner, spender)
}

// Approve sets spender's allowance over owner's balance to amount,
// replacing any previous value. Zero revokes it.
func (l *Ledger) Approve(owner, spender string, amount uint64) error {
	return l.state.SetAllowance(owner, spender, amount)
}

// TransferFrom moves amount of from's free balance to to on behalf of
// spender and charges spender's allowance. Like a plain transfer it may
// drain the sender. A balance failure leaves the allowance charged, so the
// caller's snapshot must cover the call.
func (l *Ledger) TransferFrom(spender, from, to string, amount uint64) error {
	allowed, err := l.state.GetAllowance(from, spender)
	if err != nil {
		return err
	}
	if allowed < amount {
		return fmt.Errorf("%w: allowed %d, need %d", ErrInsufficientAllowance, allowed, amount)
	}
	if err := l.state.SetAllowance(from, spender, allowed-amount); err != nil {
		return err
	}
	return l.Transfer(from, to, amount, false)
}
