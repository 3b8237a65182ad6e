package types

import (
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRunState(t *testing.T) {
	for _, s := range RunStates() {
		assert.Equal(t, s == StateSettled || s == StateAborted, s.IsTerminal(), s.String())
	}

	assert.Empty(t, QualifiedPreviousStates(StateIdle))
	assert.Equal(t, []RunState{StateIdle}, QualifiedPreviousStates(StateAggregating))
	assert.Equal(t, []RunState{StateAwaitingTransferResult}, QualifiedPreviousStates(StateSettled))
	assert.False(t, slices.Contains(QualifiedPreviousStates(StateAborted), StateIdle))
	assert.False(t, slices.Contains(QualifiedPreviousStates(StateAborted), StateSettled))
}

func TestTransferBatchIncompleteError(t *testing.T) {
	err := fmt.Errorf("run 42: %w", &TransferBatchIncompleteError{
		Attempted: 3,
		Failures: []TransferFailure{
			{User: "bob", Amount: decimal.NewFromInt(1), Err: errors.New("timeout")},
			{User: "carol", Amount: decimal.NewFromInt(2), Err: errors.New("rejected")},
		},
	})

	assert.ErrorIs(t, err, ErrTransferBatchIncomplete)
	assert.NotErrorIs(t, err, ErrRunInProgress)
	assert.Contains(t, err.Error(), "2 of 3 transfers failed (bob, carol)")
}

func TestPayoutAddress(t *testing.T) {
	assert.Equal(t, "first", UserAccount{Name: "a", Addresses: []string{"first", "second"}}.PayoutAddress())
	assert.Empty(t, UserAccount{Name: "a"}.PayoutAddress())
}
