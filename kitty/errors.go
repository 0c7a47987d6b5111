package kitty

import (
	"errors"
	"fmt"
)

// Every error returned by the Keeper wraps one of these, or a ledger error,
// so callers can tell rejection reasons apart with errors.Is.
var (
	ErrCounterOverflow   = errors.New("kitty counter overflow")
	ErrNotOwner          = errors.New("caller is not the kitty owner")
	ErrSelfOperation     = errors.New("operation targets the caller's own account")
	ErrInvalidKittyIndex = errors.New("invalid kitty index")
	ErrDuplicateParents  = errors.New("breeding needs two different kitties")
	ErrNotForSale        = errors.New("kitty not for sale")
	ErrCapacityExceeded  = errors.New("account already owns the maximum number of kitties")
	ErrUnauthenticated   = errors.New("unauthenticated origin")

	// ErrDuplicateKitty means the allocator handed out a live id. It
	// indicates corrupted state, not a bad request.
	ErrDuplicateKitty = errors.New("kitty id already registered")
)

var (
	ErrTransferToSelf = fmt.Errorf("%w: transfer to self", ErrSelfOperation)
	ErrBuyFromSelf    = fmt.Errorf("%w: buy from self", ErrSelfOperation)
)
