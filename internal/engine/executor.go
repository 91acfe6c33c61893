package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zaryabnaqvi/InSoctor-sub000/internal/logging"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/models"
)

const (
	DefaultMaxConcurrency = 4
	DefaultWidgetTimeout  = 30 * time.Second
)

// ExecutorConfig bounds widget fan-out.
type ExecutorConfig struct {
	MaxConcurrency int
	WidgetTimeout  time.Duration
}

// Executor runs every widget of a report concurrently and gathers the
// results in widget order. A widget failure never fails the run.
type Executor struct {
	planner        *Planner
	maxConcurrency int
	widgetTimeout  time.Duration
	logger         *logging.Logger
}

// NewExecutor creates an executor, applying defaults to zero config values.
func NewExecutor(planner *Planner, cfg ExecutorConfig, logger *logging.Logger) *Executor {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	if cfg.WidgetTimeout <= 0 {
		cfg.WidgetTimeout = DefaultWidgetTimeout
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Executor{
		planner:        planner,
		maxConcurrency: cfg.MaxConcurrency,
		widgetTimeout:  cfg.WidgetTimeout,
		logger:         logger,
	}
}

// Execute returns exactly one WidgetData per widget, in the same order.
// Failed, timed-out and cancelled widgets carry an error and empty data.
func (e *Executor) Execute(ctx context.Context, global []models.ReportFilter, widgets []models.WidgetConfig) []models.WidgetData {
	results := make([]models.WidgetData, len(widgets))

	var g errgroup.Group
	g.SetLimit(e.maxConcurrency)
	for i, w := range widgets {
		g.Go(func() error {
			results[i] = e.runWidget(ctx, global, w)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

type widgetResult struct {
	records []models.Record
	err     error
}

func (e *Executor) runWidget(ctx context.Context, global []models.ReportFilter, w models.WidgetConfig) models.WidgetData {
	out := models.WidgetData{
		WidgetID:   w.ID,
		WidgetType: w.Type,
		DataSource: w.DataSource,
		Data:       []models.Record{},
	}

	if err := ctx.Err(); err != nil {
		out.Error = fmt.Sprintf("cancelled: %v", err)
		return out
	}

	wctx, cancel := context.WithTimeout(ctx, e.widgetTimeout)
	defer cancel()

	done := make(chan widgetResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- widgetResult{err: fmt.Errorf("widget panicked: %v", p)}
			}
		}()
		records, err := e.planner.PlanWidget(wctx, global, w)
		done <- widgetResult{records: records, err: err}
	}()

	var res widgetResult
	select {
	case res = <-done:
	case <-wctx.Done():
		res.err = wctx.Err()
	}

	if res.err != nil {
		out.Error = e.describe(ctx, res.err)
		e.logger.WarnContext(ctx, "widget query failed",
			logging.WidgetID(w.ID),
			logging.DataSource(string(w.DataSource)),
			logging.Error(res.err),
		)
		return out
	}

	if res.records != nil {
		out.Data = res.records
	}
	return out
}

func (e *Executor) describe(parent context.Context, err error) string {
	switch {
	case parent.Err() != nil:
		return fmt.Sprintf("cancelled: %v", parent.Err())
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("timeout: widget exceeded %s", e.widgetTimeout)
	default:
		return err.Error()
	}
}
