package types

// Enum values for the payout run state
type RunState string

const (
	StateIdle                   RunState = "IDLE"
	StateAggregating            RunState = "AGGREGATING"
	StateCalculating            RunState = "CALCULATING"
	StateAwaitingTransferResult RunState = "AWAITING_TRANSFER_RESULT"
	StateSettled                RunState = "SETTLED"
	StateAborted                RunState = "ABORTED"
)

func (s RunState) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition can happen from s
func (s RunState) IsTerminal() bool {
	return s == StateSettled || s == StateAborted
}

// QualifiedPreviousStates returns the states a run may transition from into s
func QualifiedPreviousStates(s RunState) []RunState {
	switch s {
	case StateAggregating:
		return []RunState{StateIdle}
	case StateCalculating:
		return []RunState{StateAggregating}
	case StateAwaitingTransferResult:
		return []RunState{StateCalculating}
	case StateSettled:
		return []RunState{StateAwaitingTransferResult}
	case StateAborted:
		return []RunState{StateAggregating, StateCalculating, StateAwaitingTransferResult}
	default:
		return nil
	}
}

// RunStates lists every run state in transition order
func RunStates() []RunState {
	return []RunState{
		StateIdle,
		StateAggregating,
		StateCalculating,
		StateAwaitingTransferResult,
		StateSettled,
		StateAborted,
	}
}
