// Package scheduler generates reports for templates with an enabled schedule.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/zaryabnaqvi/InSoctor-sub000/internal/logging"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/messaging"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/metrics"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/models"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/service"
)

// Generator produces a report for a template on behalf of a user.
type Generator interface {
	Generate(ctx context.Context, userID, templateID string, req *models.GenerateReportRequest, trigger string) (*models.GeneratedReport, error)
}

// TemplateStore lists templates whose schedule is enabled.
type TemplateStore interface {
	ListScheduledTemplates(ctx context.Context) ([]*models.ReportTemplate, error)
}

// FailureEvent is published when a scheduled generation produces no report.
type FailureEvent struct {
	TemplateID string    `json:"template_id"`
	Owner      string    `json:"owner"`
	Error      string    `json:"error"`
	FailedAt   time.Time `json:"failed_at"`
}

// Scheduler keeps one timer per scheduled template and re-syncs the set
// every check interval.
type Scheduler struct {
	mu            sync.RWMutex
	generator     Generator
	store         TemplateStore
	publisher     service.Publisher
	logger        *logging.Logger
	running       bool
	stopChan      chan struct{}
	wg            sync.WaitGroup
	checkInterval time.Duration
	minInterval   time.Duration
	now           func() time.Time

	timers  map[string]*templateTimer
	metrics *Metrics
}

type templateTimer struct {
	templateID string
	version    int
	ticker     *time.Ticker
	stopChan   chan struct{}
}

// Metrics tracks scheduler activity.
type Metrics struct {
	mu            sync.RWMutex
	Runs          int64
	Failures      int64
	LastCheckTime time.Time
	LastRunTime   time.Time
}

// Config configures the scheduler.
type Config struct {
	CheckInterval time.Duration
	// MinInterval floors template intervals. Defaults to one minute.
	MinInterval time.Duration
	// Publisher receives failure events. Optional.
	Publisher service.Publisher
	Logger    *logging.Logger
}

func NewScheduler(generator Generator, store TemplateStore, cfg Config) *Scheduler {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.MinInterval == 0 {
		cfg.MinInterval = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}

	return &Scheduler{
		generator:     generator,
		store:         store,
		publisher:     cfg.Publisher,
		logger:        cfg.Logger.With(logging.Service("scheduler")),
		checkInterval: cfg.CheckInterval,
		minInterval:   cfg.MinInterval,
		now:           time.Now,
		timers:        make(map[string]*templateTimer),
		metrics:       &Metrics{},
	}
}

// Start begins the scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("report scheduler starting", "check_interval", s.checkInterval.String())

	s.wg.Add(1)
	go s.run(ctx)

	return nil
}

// Stop stops every timer and waits for in-flight generations.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler not running")
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	s.stopAllTimers()

	s.wg.Wait()
	s.logger.Info("report scheduler stopped")
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	s.syncTemplates(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.syncTemplates(ctx)
		}
	}
}

// syncTemplates starts timers for new schedules, restarts them when a
// template changed and drops the ones no longer scheduled.
func (s *Scheduler) syncTemplates(ctx context.Context) {
	s.metrics.mu.Lock()
	s.metrics.LastCheckTime = s.now()
	s.metrics.mu.Unlock()

	templates, err := s.store.ListScheduledTemplates(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list scheduled templates", logging.Error(err))
		return
	}

	active := make(map[string]bool, len(templates))
	for _, t := range templates {
		if t.Schedule == nil || !t.Schedule.Enabled {
			continue
		}
		active[t.ID] = true

		s.mu.Lock()
		existing, ok := s.timers[t.ID]
		if ok && existing.version != t.Version {
			existing.stop()
			delete(s.timers, t.ID)
			ok = false
		}
		s.mu.Unlock()

		if !ok {
			s.scheduleTemplate(ctx, t)
		}
	}

	s.mu.Lock()
	for id, timer := range s.timers {
		if !active[id] {
			timer.stop()
			delete(s.timers, id)
		}
	}
	s.mu.Unlock()
}

func (s *Scheduler) scheduleTemplate(ctx context.Context, t *models.ReportTemplate) {
	interval := t.Schedule.IntervalDuration()
	if interval < s.minInterval {
		s.logger.Warn("template schedule interval too short, using minimum",
			logging.TemplateID(t.ID),
			"interval", t.Schedule.Interval,
			"minimum", s.minInterval.String(),
		)
		interval = s.minInterval
	}
	lookback := t.Schedule.LookbackDuration()
	if lookback <= 0 {
		lookback = interval
	}

	timer := &templateTimer{
		templateID: t.ID,
		version:    t.Version,
		ticker:     time.NewTicker(interval),
		stopChan:   make(chan struct{}),
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		timer.ticker.Stop()
		return
	}
	s.timers[t.ID] = timer
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("scheduled template",
		logging.TemplateID(t.ID),
		"name", t.Name,
		"interval", interval.String(),
	)

	go s.runTemplate(ctx, timer, t.ID, t.CreatedBy, lookback)
}

func (s *Scheduler) runTemplate(ctx context.Context, timer *templateTimer, templateID, owner string, lookback time.Duration) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.stopChan:
			return
		case <-timer.ticker.C:
			s.generate(ctx, templateID, owner, lookback)
		}
	}
}

// generate runs one scheduled generation as the template owner over the
// trailing lookback window.
func (s *Scheduler) generate(ctx context.Context, templateID, owner string, lookback time.Duration) {
	now := s.now().UTC()

	s.metrics.mu.Lock()
	s.metrics.Runs++
	s.metrics.LastRunTime = now
	s.metrics.mu.Unlock()

	req := &models.GenerateReportRequest{
		DateRange: &models.DateRange{Start: now.Add(-lookback), End: now},
	}

	report, err := s.generator.Generate(ctx, owner, templateID, req, service.TriggerSchedule)
	if err != nil {
		s.metrics.mu.Lock()
		s.metrics.Failures++
		s.metrics.mu.Unlock()
		metrics.ScheduledRuns.WithLabelValues("error").Inc()

		s.logger.ErrorContext(ctx, "scheduled generation failed",
			logging.TemplateID(templateID),
			logging.UserID(owner),
			logging.Error(err),
		)
		s.publishFailure(ctx, FailureEvent{TemplateID: templateID, Owner: owner, Error: err.Error(), FailedAt: now})
		return
	}

	metrics.ScheduledRuns.WithLabelValues("success").Inc()
	s.logger.DebugContext(ctx, "scheduled generation finished",
		logging.TemplateID(templateID),
		logging.ReportID(report.ID),
	)
}

func (s *Scheduler) publishFailure(ctx context.Context, event FailureEvent) {
	if s.publisher == nil {
		return
	}
	data, err := json.Marshal(event)
	if err == nil {
		err = s.publisher.Publish(ctx, messaging.SubjectReportsScheduleFailed, data)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "failed to publish schedule failure", logging.Error(err))
	}
}

func (s *Scheduler) stopAllTimers() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, timer := range s.timers {
		timer.stop()
	}
	s.timers = make(map[string]*templateTimer)
}

func (tt *templateTimer) stop() {
	tt.ticker.Stop()
	close(tt.stopChan)
}

// GetMetrics returns a snapshot of scheduler metrics.
func (s *Scheduler) GetMetrics() map[string]interface{} {
	s.metrics.mu.RLock()
	defer s.metrics.mu.RUnlock()
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]interface{}{
		"runs":                s.metrics.Runs,
		"failures":            s.metrics.Failures,
		"last_check_time":     s.metrics.LastCheckTime.Format(time.RFC3339),
		"last_run_time":       s.metrics.LastRunTime.Format(time.RFC3339),
		"scheduled_templates": len(s.timers),
	}
}
