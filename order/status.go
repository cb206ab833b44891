package order

// transitions is the forward adjacency of the order lifecycle DAG.
var transitions = map[Status]Status{
	StatusCreated:     StatusDepositPaid,
	StatusDepositPaid: StatusProduction,
	StatusProduction:  StatusInspection,
	StatusInspection:  StatusShipped,
	StatusShipped:     StatusDelivered,
	StatusDelivered:   StatusClosed,
}

// Terminal reports whether no further transition is permitted.
func Terminal(s Status) bool {
	return s == StatusClosed || s == StatusCancelled
}

// ValidStatus reports whether s names a known order state.
func ValidStatus(s Status) bool {
	if s == StatusCancelled || s == StatusClosed {
		return true
	}
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether from -> to is a legal lifecycle move.
// Cancellation is allowed only before delivery.
func CanTransition(from, to Status) bool {
	if Terminal(from) {
		return false
	}
	if to == StatusCancelled {
		return from != StatusDelivered
	}
	return transitions[from] == to
}
