package services

import (
	"context"

	"github.com/delegate-rewards/referral-payout/internal/clients/transferclient"
	"github.com/delegate-rewards/referral-payout/internal/config"
	"github.com/delegate-rewards/referral-payout/internal/ledger"
	"github.com/delegate-rewards/referral-payout/internal/referral"
	"github.com/delegate-rewards/referral-payout/internal/snapshot"
	"github.com/delegate-rewards/referral-payout/internal/types"
	"github.com/delegate-rewards/referral-payout/internal/users"
	"github.com/jonboulle/clockwork"
)

type Service struct {
	cfg        *config.Config
	reader     *snapshot.Reader
	registry   *users.Registry
	graph      *referral.Graph
	ledger     *ledger.Ledger
	transferer transferclient.Transferer
	clock      clockwork.Clock
}

func NewService(
	cfg *config.Config,
	reader *snapshot.Reader,
	registry *users.Registry,
	graph *referral.Graph,
	ledger *ledger.Ledger,
	transferer transferclient.Transferer,
	clock clockwork.Clock,
) *Service {
	return &Service{
		cfg:        cfg,
		reader:     reader,
		registry:   registry,
		graph:      graph,
		ledger:     ledger,
		transferer: transferer,
		clock:      clock,
	}
}

func (s *Service) ResumePoint(ctx context.Context) (*uint64, error) {
	return s.ledger.ResumePoint(ctx)
}

func (s *Service) Records(ctx context.Context, limit int) ([]types.PayoutRecord, error) {
	return s.ledger.Records(ctx, limit)
}
