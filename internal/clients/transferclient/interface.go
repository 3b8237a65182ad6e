package transferclient

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

type Outcome int

const (
	Failure Outcome = iota
	Success
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Failure:
		return "failure"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Transfer is a single payout to execute
type Transfer struct {
	RunID      string
	StartBlock uint64
	EndBlock   uint64
	User       string
	Address    string
	Amount     decimal.Decimal
}

// IdempotencyKey identifies the payout of a window to an address. An aborted
// run retried for the same window reuses the keys of the transfers that went out.
func (t Transfer) IdempotencyKey() string {
	return fmt.Sprintf("%d-%d:%s", t.StartBlock, t.EndBlock, t.Address)
}

// Transferer executes payouts on chain. Any outcome other than Success, or a
// non nil error, means the transfer must be treated as not confirmed.
type Transferer interface {
	AttemptTransfer(ctx context.Context, transfer Transfer) (Outcome, error)
}
