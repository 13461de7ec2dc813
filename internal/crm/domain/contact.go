package domain

const (
	ContactStatusLead     = "lead"
	ContactStatusProspect = "prospect"
	ContactStatusCustomer = "customer"
	ContactStatusChurned  = "churned"
	ContactStatusInactive = "inactive"
)

var knownContactStatuses = map[string]struct{}{
	ContactStatusLead:     {},
	ContactStatusProspect: {},
	ContactStatusCustomer: {},
	ContactStatusChurned:  {},
	ContactStatusInactive: {},
}

func IsKnownContactStatus(status string) bool {
	_, ok := knownContactStatuses[status]
	return ok
}

const (
	ContactSourceWebsite      = "website"
	ContactSourceReferral     = "referral"
	ContactSourceSocialMedia  = "social_media"
	ContactSourceAdvertising  = "advertising"
	ContactSourceEvent        = "event"
	ContactSourceColdOutreach = "cold_outreach"
	ContactSourcePartnership  = "partnership"
	ContactSourceOrganic      = "organic"
	ContactSourceOther        = "other"
)

var knownContactSources = map[string]struct{}{
	ContactSourceWebsite:      {},
	ContactSourceReferral:     {},
	ContactSourceSocialMedia:  {},
	ContactSourceAdvertising:  {},
	ContactSourceEvent:        {},
	ContactSourceColdOutreach: {},
	ContactSourcePartnership:  {},
	ContactSourceOrganic:      {},
	ContactSourceOther:        {},
}

func IsKnownContactSource(source string) bool {
	_, ok := knownContactSources[source]
	return ok
}
