package domain

// Activity types written by the engine itself. Manual entries (notes,
// calls, meetings) share the same table but come in through LogActivity.
const (
	ActivityTypeNote           = "note"
	ActivityTypeCall           = "call"
	ActivityTypeEmail          = "email"
	ActivityTypeMeeting        = "meeting"
	ActivityTypeTask           = "task"
	ActivityTypeDealCreated    = "deal_created"
	ActivityTypeDealUpdated    = "deal_updated"
	ActivityTypeDealWon        = "deal_won"
	ActivityTypeDealLost       = "deal_lost"
	ActivityTypeStatusChange   = "status_change"
	ActivityTypeSegmentAdded   = "segment_added"
	ActivityTypeSegmentRemoved = "segment_removed"
	ActivityTypeScoreUpdated   = "score_updated"
	ActivityTypeProfileUpdated = "profile_updated"
	ActivityTypeOther          = "other"
)

var knownActivityTypes = map[string]struct{}{
	ActivityTypeNote:           {},
	ActivityTypeCall:           {},
	ActivityTypeEmail:          {},
	ActivityTypeMeeting:        {},
	ActivityTypeTask:           {},
	ActivityTypeDealCreated:    {},
	ActivityTypeDealUpdated:    {},
	ActivityTypeDealWon:        {},
	ActivityTypeDealLost:       {},
	ActivityTypeStatusChange:   {},
	ActivityTypeSegmentAdded:   {},
	ActivityTypeSegmentRemoved: {},
	ActivityTypeScoreUpdated:   {},
	ActivityTypeProfileUpdated: {},
	ActivityTypeOther:          {},
}

func IsKnownActivityType(activityType string) bool {
	_, ok := knownActivityTypes[activityType]
	return ok
}
