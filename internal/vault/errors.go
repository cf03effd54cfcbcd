package vault

import (
	"errors"
	"fmt"
)

var (
	ErrChainMismatch     = errors.New("wallet is on a different chain")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrPartialDeposit    = errors.New("approval confirmed but deposit did not complete")
	ErrTransactionFailed = errors.New("transaction reverted")
	ErrStillPending      = errors.New("transaction still pending")
)

// PartialDepositError reports a deposit that failed after its approve was
// mined: the allowance is set but no funds moved into the vault.
type PartialDepositError struct {
	Approval *PendingTransaction
	Err      error
}

func (e *PartialDepositError) Error() string {
	return fmt.Sprintf("approve %s confirmed but deposit failed: %v", e.Approval.Hash.Hex(), e.Err)
}

func (e *PartialDepositError) Unwrap() []error {
	return []error{ErrPartialDeposit, e.Err}
}
