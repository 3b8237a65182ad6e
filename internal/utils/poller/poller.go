package poller

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

type Poller struct {
	name       string
	interval   time.Duration
	clock      clockwork.Clock
	quit       chan struct{}
	pollMethod func(ctx context.Context) error
}

func NewPoller(
	name string, interval time.Duration, clock clockwork.Clock, pollMethod func(ctx context.Context) error,
) *Poller {
	return &Poller{
		name:       name,
		interval:   interval,
		clock:      clock,
		quit:       make(chan struct{}),
		pollMethod: pollMethod,
	}
}

// Start polls once immediately and then on every tick until ctx is done or Stop is called
func (p *Poller) Start(ctx context.Context) {
	log := log.Ctx(ctx).With().Str("poller", p.name).Logger()

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	log.Info().Msgf("Starting poller with interval %s", p.interval)

	p.poll(ctx)
	for {
		select {
		case <-ticker.Chan():
			p.poll(ctx)
		case <-ctx.Done():
			log.Info().Msg("Poller stopped due to context cancellation")
			return
		case <-p.quit:
			log.Info().Msg("Poller stopped")
			return
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	log.Ctx(ctx).Debug().Str("poller", p.name).Msg("Executing poll method")
	if err := p.pollMethod(ctx); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("poller", p.name).Msg("Error polling")
	} else {
		log.Ctx(ctx).Debug().Str("poller", p.name).Msg("Poll method executed successfully")
	}
}

func (p *Poller) Stop() {
	close(p.quit)
}
