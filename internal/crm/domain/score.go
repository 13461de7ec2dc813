package domain

const (
	// MinLeadScore and MaxLeadScore bound every contact's lead score.
	// Score mutations clamp into this range rather than failing.
	MinLeadScore = 0
	MaxLeadScore = 100
)

// ClampScore forces a candidate score into the valid lead score range.
func ClampScore(score int) int {
	if score < MinLeadScore {
		return MinLeadScore
	}
	if score > MaxLeadScore {
		return MaxLeadScore
	}
	return score
}
