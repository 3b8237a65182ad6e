package services

import (
	"context"
	"fmt"
	"slices"

	"github.com/delegate-rewards/referral-payout/internal/observability/metrics"
	"github.com/delegate-rewards/referral-payout/internal/types"
	"github.com/rs/zerolog/log"
)

// runTracker follows a single payout run through its states
type runTracker struct {
	id    string
	state types.RunState
	// preview runs are not reported as payout runs
	record bool
}

func newRunTracker(id string, record bool) *runTracker {
	t := &runTracker{id: id, state: types.StateIdle, record: record}
	t.report()
	return t
}

func (t *runTracker) transition(ctx context.Context, next types.RunState) error {
	if !slices.Contains(types.QualifiedPreviousStates(next), t.state) {
		return fmt.Errorf("run %s: invalid state transition %s -> %s", t.id, t.state, next)
	}

	log.Ctx(ctx).Debug().
		Stringer("from", t.state).
		Stringer("to", next).
		Msg("Run state changed")
	t.state = next
	t.report()

	if t.record && next.IsTerminal() {
		metrics.RecordRunOutcome(next.String())
	}
	return nil
}

// abort moves a run that is not yet terminal to ABORTED
func (t *runTracker) abort(ctx context.Context) {
	if t.state.IsTerminal() || t.state == types.StateIdle {
		return
	}
	if err := t.transition(ctx, types.StateAborted); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("Failed to abort run")
	}
}

func (t *runTracker) report() {
	if !t.record {
		return
	}
	states := types.RunStates()
	all := make([]string, len(states))
	for i, s := range states {
		all[i] = s.String()
	}
	metrics.RecordRunState(t.state.String(), all)
}
