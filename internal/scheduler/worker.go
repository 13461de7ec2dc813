package scheduler

import (
	"context"
	"fmt"

	"cityguide_crm_backend/internal/crm/scoring"
	"cityguide_crm_backend/internal/crm/segments"
	"cityguide_crm_backend/internal/crm/tasks"
	"cityguide_crm_backend/internal/crm/transport"
	"cityguide_crm_backend/platform/config"
	"cityguide_crm_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// overdueSweepSpec drives the recurring overdue-task sweep.
const overdueSweepSpec = "@every 15m"

type Worker struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	scoring   *scoring.Service
	segments  *segments.Service
	tasks     *tasks.Service
	log       *logger.Logger
}

func NewWorker(cfg config.WorkerConfig, scoringSvc *scoring.Service, segmentsSvc *segments.Service, tasksSvc *tasks.Service, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetQueueConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	sched := asynq.NewScheduler(opt, nil)
	if _, err := sched.Register(overdueSweepSpec, NewOverdueSweepTask(), asynq.Queue(queue)); err != nil {
		return nil, err
	}

	mux := asynq.NewServeMux()
	w := &Worker{
		server:    server,
		scheduler: sched,
		mux:       mux,
		scoring:   scoringSvc,
		segments:  segmentsSvc,
		tasks:     tasksSvc,
		log:       log,
	}

	mux.HandleFunc(TaskEngagementEvent, w.handleEngagementEvent)
	mux.HandleFunc(TaskOverdueSweep, w.handleOverdueSweep)
	mux.HandleFunc(TaskSegmentRefresh, w.handleSegmentRefresh)

	return w, nil
}

func (w *Worker) handleEngagementEvent(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseEngagementEventPayload(task)
	if err != nil {
		return err
	}

	results, err := w.scoring.ApplyEngagementEvent(ctx, transport.EngagementEventRequest{
		ContactID: payload.ContactID,
		EventType: payload.EventType,
		EventKey:  payload.EventKey,
	})
	if err != nil {
		return err
	}

	applied := 0
	for _, r := range results {
		if r.Applied {
			applied++
		}
	}
	w.log.Info("processed engagement event",
		"contactId", payload.ContactID,
		"eventType", payload.EventType,
		"rulesApplied", applied)
	return nil
}

func (w *Worker) handleOverdueSweep(ctx context.Context, _ *asynq.Task) error {
	_, err := w.tasks.SweepOverdue(ctx)
	return err
}

func (w *Worker) handleSegmentRefresh(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseSegmentRefreshPayload(task)
	if err != nil {
		return err
	}

	segmentID, err := uuid.Parse(payload.SegmentID)
	if err != nil {
		return err
	}

	members, err := w.segments.EvaluateSegment(ctx, segmentID)
	if err != nil {
		return err
	}
	w.log.Info("refreshed segment", "segmentId", segmentID, "members", len(members))
	return nil
}

// Run serves the queue until ctx is cancelled. The recurring sweep
// registration runs alongside the consumers.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.scheduler.Shutdown()
		w.server.Shutdown()
	}()

	go func() {
		if err := w.scheduler.Run(); err != nil {
			w.log.Error("task scheduler stopped", "error", err)
		}
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("queue worker stopped", "error", err)
	}
}
