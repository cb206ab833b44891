package rfq

// transitions is the forward adjacency of the RFQ lifecycle DAG. Cancellation
// is handled separately: it is reachable from every non-terminal state.
var transitions = map[Status]Status{
	StatusDraft:           StatusSubmitted,
	StatusSubmitted:       StatusUnderReview,
	StatusUnderReview:     StatusInvited,
	StatusInvited:         StatusOffersPublished,
	StatusOffersPublished: StatusAccepted,
	StatusAccepted:        StatusInProduction,
	StatusInProduction:    StatusInspection,
	StatusInspection:      StatusShipped,
	StatusShipped:         StatusDelivered,
	StatusDelivered:       StatusClosed,
}

// Terminal reports whether no further transition is permitted.
func Terminal(s Status) bool {
	return s == StatusClosed || s == StatusCancelled
}

// ValidStatus reports whether s names a known lifecycle state.
func ValidStatus(s Status) bool {
	if s == StatusCancelled || s == StatusClosed {
		return true
	}
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether from -> to is adjacent in the lifecycle DAG.
// Re-entering the current state is handled by the caller as a no-op before
// this check.
func CanTransition(from, to Status) bool {
	if Terminal(from) {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	return transitions[from] == to
}
