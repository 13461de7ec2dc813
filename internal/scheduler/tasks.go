package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskEngagementEvent = "crm.engagement_event"

const TaskOverdueSweep = "crm.tasks.overdue_sweep"

const TaskSegmentRefresh = "crm.segments.refresh"

type EngagementEventPayload struct {
	ContactID string `json:"contactId"`
	EventType string `json:"eventType"`
	EventKey  string `json:"eventKey"`
}

type SegmentRefreshPayload struct {
	SegmentID string `json:"segmentId"`
}

func NewEngagementEventTask(payload EngagementEventPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskEngagementEvent, data), nil
}

func ParseEngagementEventPayload(task *asynq.Task) (EngagementEventPayload, error) {
	var payload EngagementEventPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return EngagementEventPayload{}, err
	}
	return payload, nil
}

func NewOverdueSweepTask() *asynq.Task {
	return asynq.NewTask(TaskOverdueSweep, nil)
}

func NewSegmentRefreshTask(payload SegmentRefreshPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSegmentRefresh, data), nil
}

func ParseSegmentRefreshPayload(task *asynq.Task) (SegmentRefreshPayload, error) {
	var payload SegmentRefreshPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return SegmentRefreshPayload{}, err
	}
	return payload, nil
}
