package transferclient

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// MockClient confirms every transfer without moving funds. Used for dry runs.
type MockClient struct {
	mu        sync.Mutex
	transfers []Transfer
}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) AttemptTransfer(ctx context.Context, transfer Transfer) (Outcome, error) {
	m.mu.Lock()
	m.transfers = append(m.transfers, transfer)
	m.mu.Unlock()

	log.Ctx(ctx).Info().
		Str("user", transfer.User).
		Str("address", transfer.Address).
		Stringer("amount", transfer.Amount).
		Msg("Mock transfer")
	return Success, nil
}

// Transfers returns every transfer attempted so far
func (m *MockClient) Transfers() []Transfer {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Transfer, len(m.transfers))
	copy(out, m.transfers)
	return out
}
