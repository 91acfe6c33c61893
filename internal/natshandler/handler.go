// Package natshandler answers report generation requests arriving over NATS.
package natshandler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/zaryabnaqvi/InSoctor-sub000/internal/logging"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/messaging"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/models"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/service"
)

// DefaultRequestTimeout bounds one generation triggered over NATS.
const DefaultRequestTimeout = 2 * time.Minute

// Broker is the part of messaging.Client the handler needs.
type Broker interface {
	Publish(ctx context.Context, subject string, data []byte) error
	QueueSubscribe(subject, queue string, handler messaging.MessageHandler) (messaging.Subscription, error)
}

// Generator produces a report for a template on behalf of a user.
type Generator interface {
	Generate(ctx context.Context, userID, templateID string, req *models.GenerateReportRequest, trigger string) (*models.GeneratedReport, error)
}

// GenerateRequest is received on messaging.SubjectReportsGenerate.
type GenerateRequest struct {
	TemplateID string                `json:"template_id"`
	UserID     string                `json:"user_id"`
	Filters    []models.ReportFilter `json:"filters,omitempty"`
	DateRange  *models.DateRange     `json:"date_range,omitempty"`
}

// GenerateResponse is sent to the request's reply subject.
type GenerateResponse struct {
	Success       bool   `json:"success"`
	ReportID      string `json:"report_id,omitempty"`
	TotalRecords  int    `json:"total_records"`
	FailedWidgets int    `json:"failed_widgets"`
	TookMs        int64  `json:"took_ms"`
	Error         string `json:"error,omitempty"`
}

// Handler processes report generation requests.
type Handler struct {
	broker    Broker
	generator Generator
	logger    *logging.Logger
	timeout   time.Duration
	subs      []messaging.Subscription
}

func NewHandler(broker Broker, generator Generator, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		broker:    broker,
		generator: generator,
		logger:    logger.With(logging.Service("natshandler")),
		timeout:   DefaultRequestTimeout,
		subs:      make([]messaging.Subscription, 0),
	}
}

// Start subscribes to generation requests in the report worker queue group.
func (h *Handler) Start() error {
	sub, err := h.broker.QueueSubscribe(
		messaging.SubjectReportsGenerate,
		messaging.QueueReportWorkers,
		h.handleGenerate,
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", messaging.SubjectReportsGenerate, err)
	}
	h.subs = append(h.subs, sub)

	h.logger.Info("NATS handler started", "subject", messaging.SubjectReportsGenerate)
	return nil
}

// Stop unsubscribes from all subjects.
func (h *Handler) Stop() error {
	for _, sub := range h.subs {
		if err := sub.Unsubscribe(); err != nil {
			h.logger.Warn("failed to unsubscribe", "subject", sub.Subject(), logging.Error(err))
		}
	}
	h.subs = nil
	h.logger.Info("NATS handler stopped")
	return nil
}

func (h *Handler) handleGenerate(ctx context.Context, msg *messaging.Message) error {
	started := time.Now()

	var req GenerateRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		return h.reply(ctx, msg, GenerateResponse{Error: fmt.Sprintf("invalid request: %v", err)})
	}
	if req.TemplateID == "" || req.UserID == "" {
		return h.reply(ctx, msg, GenerateResponse{Error: "invalid request: template_id and user_id are required"})
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	report, err := h.generator.Generate(ctx, req.UserID, req.TemplateID, &models.GenerateReportRequest{
		Filters:   req.Filters,
		DateRange: req.DateRange,
	}, service.TriggerMessaging)
	if err != nil {
		h.logger.WarnContext(ctx, "generation request failed",
			logging.TemplateID(req.TemplateID),
			logging.UserID(req.UserID),
			logging.Error(err),
		)
		return h.reply(ctx, msg, GenerateResponse{Error: err.Error(), TookMs: time.Since(started).Milliseconds()})
	}

	return h.reply(ctx, msg, GenerateResponse{
		Success:       true,
		ReportID:      report.ID,
		TotalRecords:  report.Metadata.TotalRecords,
		FailedWidgets: report.Metadata.FailedWidgets,
		TookMs:        time.Since(started).Milliseconds(),
	})
}

// reply answers a request. Fire-and-forget requests have no reply subject.
func (h *Handler) reply(ctx context.Context, msg *messaging.Message, resp GenerateResponse) error {
	if msg.Reply == "" {
		return nil
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}
	return h.broker.Publish(context.WithoutCancel(ctx), msg.Reply, data)
}
