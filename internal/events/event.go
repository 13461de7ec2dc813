// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"cityguide_crm_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Contact Domain Events
// =============================================================================

// ContactCreated is published when a new contact is created.
type ContactCreated struct {
	BaseEvent
	ContactID uuid.UUID `json:"contactId"`
	Status    string    `json:"status"`
	Source    string    `json:"source"`
}

func (e ContactCreated) EventName() string { return "crm.contact.created" }

// ContactUpdated is published after any contact attribute mutation,
// including score changes. Dynamic segment membership is a function of
// contact state, so subscribers use this to drop cached member sets.
type ContactUpdated struct {
	BaseEvent
	ContactID uuid.UUID `json:"contactId"`
}

func (e ContactUpdated) EventName() string { return "crm.contact.updated" }

// ScoreChanged is published after a successful lead score mutation.
type ScoreChanged struct {
	BaseEvent
	ContactID      uuid.UUID  `json:"contactId"`
	PreviousScore  int        `json:"previousScore"`
	NewScore       int        `json:"newScore"`
	RequestedDelta int        `json:"requestedDelta"`
	RuleID         *uuid.UUID `json:"ruleId,omitempty"`
}

func (e ScoreChanged) EventName() string { return "crm.contact.score_changed" }

// =============================================================================
// Deal Domain Events
// =============================================================================

// DealStageChanged is published when an open deal moves to another stage.
type DealStageChanged struct {
	BaseEvent
	DealID      uuid.UUID  `json:"dealId"`
	ContactID   uuid.UUID  `json:"contactId"`
	FromStageID *uuid.UUID `json:"fromStageId,omitempty"`
	ToStageID   uuid.UUID  `json:"toStageId"`
}

func (e DealStageChanged) EventName() string { return "crm.deal.stage_changed" }

// DealClosed is published when a deal reaches a terminal status.
type DealClosed struct {
	BaseEvent
	DealID    uuid.UUID `json:"dealId"`
	ContactID uuid.UUID `json:"contactId"`
	Status    string    `json:"status"` // "won" or "lost"
	Value     float64   `json:"value"`
}

func (e DealClosed) EventName() string { return "crm.deal.closed" }

// =============================================================================
// Segment Domain Events
// =============================================================================

// SegmentMembershipChanged is published when a contact is explicitly added
// to or removed from a static segment.
type SegmentMembershipChanged struct {
	BaseEvent
	SegmentID uuid.UUID `json:"segmentId"`
	ContactID uuid.UUID `json:"contactId"`
	Added     bool      `json:"added"`
}

func (e SegmentMembershipChanged) EventName() string { return "crm.segment.membership_changed" }

// SegmentRulesChanged is published when a dynamic segment's rules are
// created or updated, invalidating any cached evaluation.
type SegmentRulesChanged struct {
	BaseEvent
	SegmentID uuid.UUID `json:"segmentId"`
}

func (e SegmentRulesChanged) EventName() string { return "crm.segment.rules_changed" }
