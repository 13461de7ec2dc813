// Package crm provides the CRM bounded context module: contacts,
// segments, lead scoring, the deal pipeline, activities and tasks.
package crm

import (
	"time"

	"cityguide_crm_backend/internal/crm/activity"
	"cityguide_crm_backend/internal/crm/contacts"
	"cityguide_crm_backend/internal/crm/handler"
	"cityguide_crm_backend/internal/crm/pipeline"
	"cityguide_crm_backend/internal/crm/repository"
	"cityguide_crm_backend/internal/crm/scoring"
	"cityguide_crm_backend/internal/crm/segments"
	"cityguide_crm_backend/internal/crm/tasks"
	"cityguide_crm_backend/internal/events"
	apphttp "cityguide_crm_backend/internal/http"
	"cityguide_crm_backend/internal/metrics"
	"cityguide_crm_backend/internal/scheduler"
	"cityguide_crm_backend/platform/config"
	"cityguide_crm_backend/platform/logger"
	"cityguide_crm_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const membershipCacheTTL = 5 * time.Minute

// Module is the CRM bounded context module implementing http.Module.
type Module struct {
	handler  *handler.Handler
	contacts *contacts.Service
	segments *segments.Service
	scoring  *scoring.Service
	pipeline *pipeline.Service
	activity *activity.Service
	tasks    *tasks.Service
}

// NewModule creates and initializes the CRM module. The redis client
// may be nil; segment evaluation then always recomputes from the store.
func NewModule(pool *pgxpool.Pool, eventBus events.Bus, redisClient *redis.Client, val *validator.Validator, cfg *config.Config, log *logger.Logger, m *metrics.Metrics) *Module {
	repo := repository.New(pool)

	var cache segments.MembershipCache
	if redisClient != nil {
		cache = segments.NewRedisMembershipCache(redisClient, membershipCacheTTL, log)
	}

	contactsSvc := contacts.New(repo, eventBus, log)
	segmentsSvc := segments.New(repo, cache, eventBus, log, m, segments.Config{
		ScanBatchSize: cfg.GetSegmentScanBatchSize(),
		ScanWorkers:   cfg.GetSegmentScanWorkers(),
	})
	segmentsSvc.RegisterInvalidation(eventBus)
	scoringSvc := scoring.New(repo, eventBus, log, m)
	pipelineSvc := pipeline.New(repo, eventBus, log, m)
	activitySvc := activity.New(repo, log, m)
	tasksSvc := tasks.New(repo, log, m)

	h := handler.New(contactsSvc, segmentsSvc, scoringSvc, pipelineSvc, activitySvc, tasksSvc, val)

	return &Module{
		handler:  h,
		contacts: contactsSvc,
		segments: segmentsSvc,
		scoring:  scoringSvc,
		pipeline: pipelineSvc,
		activity: activitySvc,
		tasks:    tasksSvc,
	}
}

// SetQueue wires the background queue producers: engagement events are
// accepted and scored by the worker, and rule changes warm the
// membership cache off the request path. Without a queue both happen
// inline.
func (m *Module) SetQueue(queue *scheduler.Client) {
	if queue == nil {
		return
	}
	m.handler.SetEngagementEnqueuer(queue)
	m.segments.SetRefreshScheduler(queue)
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "crm"
}

// Scoring returns the lead scoring service for background consumers.
func (m *Module) Scoring() *scoring.Service {
	return m.scoring
}

// Tasks returns the task service for background consumers.
func (m *Module) Tasks() *tasks.Service {
	return m.tasks
}

// Segments returns the segment service for background consumers.
func (m *Module) Segments() *segments.Service {
	return m.segments
}

// RegisterRoutes mounts CRM routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	crm := ctx.Protected.Group("/crm")

	crm.POST("/contacts", m.handler.CreateContact)
	crm.GET("/contacts", m.handler.ListContacts)
	crm.GET("/contacts/:id", m.handler.GetContact)
	crm.PUT("/contacts/:id", m.handler.UpdateContact)
	crm.DELETE("/contacts/:id", m.handler.DeleteContact)
	crm.GET("/contacts/:id/segments", m.handler.ListContactSegments)

	crm.POST("/segments", m.handler.CreateSegment)
	crm.GET("/segments", m.handler.ListSegments)
	crm.GET("/segments/:id", m.handler.GetSegment)
	crm.PUT("/segments/:id", m.handler.UpdateSegment)
	crm.DELETE("/segments/:id", m.handler.DeleteSegment)
	crm.GET("/segments/:id/contacts", m.handler.EvaluateSegment)
	crm.POST("/segments/:id/contacts", m.handler.BulkAddSegmentContacts)
	crm.POST("/segments/:id/contacts/:contactId", m.handler.AddSegmentContact)
	crm.DELETE("/segments/:id/contacts/:contactId", m.handler.RemoveSegmentContact)

	crm.POST("/contacts/:id/score", m.handler.ApplyScoreChange)
	crm.GET("/contacts/:id/score-history", m.handler.GetScoreHistory)
	crm.POST("/contacts/:id/events", m.handler.ApplyEngagementEvent)
	crm.GET("/score-rules", m.handler.ListScoreRules)
	crm.GET("/score-rules/:id", m.handler.GetScoreRule)

	crm.GET("/pipeline/stages", m.handler.ListPipelineStages)
	crm.GET("/pipeline/stats", m.handler.GetPipelineStats)
	crm.POST("/deals", m.handler.CreateDeal)
	crm.GET("/deals/board", m.handler.GetPipelineBoard)
	crm.GET("/deals", m.handler.ListDeals)
	crm.GET("/deals/:id", m.handler.GetDeal)
	crm.PUT("/deals/:id", m.handler.UpdateDeal)
	crm.POST("/deals/:id/move", m.handler.MoveDeal)
	crm.POST("/deals/:id/close", m.handler.CloseDeal)
	crm.GET("/deals/:id/history", m.handler.GetDealStageHistory)

	crm.POST("/activities", m.handler.LogActivity)
	crm.GET("/activities", m.handler.ListActivities)

	crm.POST("/tasks", m.handler.CreateTask)
	crm.GET("/tasks", m.handler.ListTasks)
	crm.GET("/tasks/overdue", m.handler.ListOverdueTasks)
	crm.GET("/tasks/upcoming", m.handler.ListUpcomingTasks)
	crm.GET("/tasks/:id", m.handler.GetTask)
	crm.PUT("/tasks/:id", m.handler.UpdateTask)
	crm.POST("/tasks/:id/complete", m.handler.CompleteTask)
	crm.POST("/tasks/:id/cancel", m.handler.CancelTask)

	// Score rule management is restricted to admins.
	adminGroup := ctx.Admin.Group("/crm")
	adminGroup.POST("/score-rules", m.handler.CreateScoreRule)
	adminGroup.PUT("/score-rules/:id", m.handler.UpdateScoreRule)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
