package domain

const (
	DealStatusOpen = "open"
	DealStatusWon  = "won"
	DealStatusLost = "lost"
)

var knownDealStatuses = map[string]struct{}{
	DealStatusOpen: {},
	DealStatusWon:  {},
	DealStatusLost: {},
}

func IsKnownDealStatus(status string) bool {
	_, ok := knownDealStatuses[status]
	return ok
}

// IsClosedDealStatus reports whether a deal status is terminal.
// Closed deals accept no further stage moves and cannot be reopened.
func IsClosedDealStatus(status string) bool {
	return status == DealStatusWon || status == DealStatusLost
}
