package matching

import "errors"

var (
	// ErrPairBlocked is returned for any transition attempted on a
	// blocked pair; blocked is absorbing.
	ErrPairBlocked = errors.New("pair is blocked")

	// ErrInvalidAction rejects actions outside the transition table
	ErrInvalidAction = errors.New("invalid match action")
)

// actorActions are the actions a member may record directly;
// mutual and expired are derived, never set by an actor.
var actorActions = map[MatchAction]bool{
	ActionLiked:      true,
	ActionSuperLiked: true,
	ActionDisliked:   true,
	ActionBlocked:    true,
}

// DeriveStatus computes the record status from the two actor actions.
// Blocked wins over everything; mutual holds iff both actions are
// positive; otherwise the initiator's own action drives the status.
func DeriveStatus(initiator, candidate MatchAction) MatchStatus {
	if initiator == ActionBlocked || candidate == ActionBlocked {
		return StatusBlocked
	}
	if initiator.Positive() && candidate.Positive() {
		return StatusMutual
	}
	switch initiator {
	case ActionLiked:
		return StatusLiked
	case ActionSuperLiked:
		return StatusSuperLiked
	case ActionDisliked:
		return StatusDisliked
	default:
		return StatusPending
	}
}

// DeriveCanCommunicate is true only for mutual pairs or an explicit
// premium unlock.
func DeriveCanCommunicate(status MatchStatus, premiumUnlock bool) bool {
	return status == StatusMutual || premiumUnlock
}

// ApplyInitiatorAction transitions the record for a new action by the
// initiator side, recomputing the derived fields. Last writer wins per
// actor field; blocked records reject further transitions.
func ApplyInitiatorAction(rec *MatchRecord, action MatchAction) error {
	if !actorActions[action] {
		return ErrInvalidAction
	}
	if rec.Status == StatusBlocked {
		return ErrPairBlocked
	}

	rec.InitiatorAction = action
	rec.Status = DeriveStatus(rec.InitiatorAction, rec.CandidateAction)
	rec.CanCommunicate = DeriveCanCommunicate(rec.Status, false)
	return nil
}

// IsMutualPair reports mutuality from the two recorded actions.
// Symmetric in its arguments.
func IsMutualPair(a, b MatchAction) bool {
	return a.Positive() && b.Positive()
}
