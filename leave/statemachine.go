package leave

import "github.com/warp/leave-engine/generic"

// Effect is what a status transition does to the ledger.
type Effect int

const (
	EffectNone    Effect = iota // nothing was ever deducted
	EffectDebit                 // compute sandwich snapshot, debit max(0, snapshot - lop)
	EffectRestore               // restore max(0, snapshot - lop), clear snapshot
)

func (e Effect) String() string {
	switch e {
	case EffectDebit:
		return "debit"
	case EffectRestore:
		return "restore"
	default:
		return "none"
	}
}

// transitions lists every allowed (from -> to) pair with its ledger effect.
// Keying on the pair keeps duplicate writes of the same status from touching
// the ledger: approved -> approved is simply not in the table.
var transitions = map[Status]map[Status]Effect{
	StatusPending: {
		StatusApproved:  EffectDebit,
		StatusRejected:  EffectNone,
		StatusWithdrawn: EffectNone,
		StatusCancelled: EffectNone,
	},
	StatusApproved: {
		StatusWithdrawn: EffectRestore,
		StatusRejected:  EffectRestore,
		StatusCancelled: EffectRestore,
	},
}

// TransitionEffect returns the ledger effect of from -> to, or a
// *generic.TransitionError if the pair is not allowed.
func TransitionEffect(from, to Status) (Effect, error) {
	if effect, ok := transitions[from][to]; ok {
		return effect, nil
	}
	return EffectNone, &generic.TransitionError{From: string(from), To: string(to)}
}

// IsTerminal reports whether no further transition leaves s.
func IsTerminal(s Status) bool {
	return len(transitions[s]) == 0
}
