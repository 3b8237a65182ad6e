package transferclient

import (
	"fmt"

	"github.com/delegate-rewards/referral-payout/internal/config"
)

// New builds the executor selected by cfg. dryRun always yields the mock executor.
func New(cfg *config.TransferConfig, dryRun bool) (Transferer, error) {
	if dryRun {
		return NewTransfererWithMetrics(NewMockClient(), config.TransferTypeMock), nil
	}

	switch cfg.Type {
	case config.TransferTypeMock:
		return NewTransfererWithMetrics(NewMockClient(), config.TransferTypeMock), nil
	case config.TransferTypeHTTP:
		return NewTransfererWithMetrics(NewHTTPClient(cfg), config.TransferTypeHTTP), nil
	default:
		return nil, fmt.Errorf("unknown transfer type %q", cfg.Type)
	}
}
