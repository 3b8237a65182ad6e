package types

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrSourceUnavailable is returned when a snapshot, referral or user source cannot be opened
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrMalformedRecord marks a single snapshot record that failed to parse
	ErrMalformedRecord = errors.New("malformed record")
	// ErrInvalidReferralStructure is returned when the referral table violates tax range or layer ordering
	ErrInvalidReferralStructure = errors.New("invalid referral structure")
	// ErrZeroWindowAggregate is a warning: no snapshots fall in the requested block range
	ErrZeroWindowAggregate = errors.New("no snapshots in block window")
	// ErrTransferBatchIncomplete is returned when at least one transfer of a batch was not confirmed
	ErrTransferBatchIncomplete = errors.New("transfer batch incomplete")
	// ErrRunInProgress is returned when another payout run holds the ledger lock
	ErrRunInProgress = errors.New("payout run already in progress")
	// ErrInvalidAddress is returned for addresses that are not 48 alphanumeric characters
	ErrInvalidAddress = errors.New("invalid address")
	// ErrInvalidWindow is returned when the requested end block lies before the start block
	ErrInvalidWindow = errors.New("invalid block window")
	// ErrPendingWindowMismatch is returned when a run asks for a different window or pool
	// than the unsettled window it has to retry
	ErrPendingWindowMismatch = errors.New("pending window mismatch")
)

// TransferFailure describes one transfer that did not succeed
type TransferFailure struct {
	User    string
	Address string
	Amount  decimal.Decimal
	Err     error
}

// TransferBatchIncompleteError carries every failed transfer of an aborted batch
type TransferBatchIncompleteError struct {
	Attempted int
	Failures  []TransferFailure
}

func (e *TransferBatchIncompleteError) Error() string {
	users := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		users = append(users, f.User)
	}
	return fmt.Sprintf("%s: %d of %d transfers failed (%s)",
		ErrTransferBatchIncomplete, len(e.Failures), e.Attempted, strings.Join(users, ", "))
}

func (e *TransferBatchIncompleteError) Is(target error) bool {
	return target == ErrTransferBatchIncomplete
}
