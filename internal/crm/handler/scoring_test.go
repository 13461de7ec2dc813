package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cityguide_crm_backend/internal/scheduler"
	"cityguide_crm_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type fakeEngagementQueue struct {
	enqueued []scheduler.EngagementEventPayload
	err      error
}

func (f *fakeEngagementQueue) EnqueueEngagementEvent(_ context.Context, payload scheduler.EngagementEventPayload) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, payload)
	return nil
}

func newEngagementContext(t *testing.T, contactID, body string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/contacts/"+contactID+"/events", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = gin.Params{{Key: "id", Value: contactID}}
	return c, rec
}

func TestApplyEngagementEvent_QueuesWhenEnqueuerWired(t *testing.T) {
	queue := &fakeEngagementQueue{}
	h := New(nil, nil, nil, nil, nil, nil, validator.New())
	h.SetEngagementEnqueuer(queue)

	contactID := uuid.NewString()
	c, rec := newEngagementContext(t, contactID, `{"eventType":"email_opened","eventKey":"msg-42"}`)

	h.ApplyEngagementEvent(c)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(queue.enqueued) != 1 {
		t.Fatalf("expected 1 enqueued event, got %d", len(queue.enqueued))
	}
	got := queue.enqueued[0]
	if got.ContactID != contactID || got.EventType != "email_opened" || got.EventKey != "msg-42" {
		t.Fatalf("unexpected payload: %+v", got)
	}

	var body struct {
		Queued bool `json:"queued"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !body.Queued {
		t.Fatalf("expected queued response, got %s", rec.Body.String())
	}
}

func TestApplyEngagementEvent_RejectsInvalidBodyBeforeQueueing(t *testing.T) {
	queue := &fakeEngagementQueue{}
	h := New(nil, nil, nil, nil, nil, nil, validator.New())
	h.SetEngagementEnqueuer(queue)

	c, rec := newEngagementContext(t, uuid.NewString(), `{"eventType":""}`)

	h.ApplyEngagementEvent(c)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(queue.enqueued) != 0 {
		t.Fatalf("invalid request must not reach the queue, got %d events", len(queue.enqueued))
	}
}
