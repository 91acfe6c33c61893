package natshandler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zaryabnaqvi/InSoctor-sub000/internal/logging"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/messaging"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/models"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/service"
)

type fakeSubscription struct {
	subject      string
	unsubscribed bool
}

func (s *fakeSubscription) Unsubscribe() error {
	s.unsubscribed = true
	return nil
}

func (s *fakeSubscription) Subject() string { return s.subject }
func (s *fakeSubscription) IsValid() bool   { return !s.unsubscribed }

type published struct {
	subject string
	data    []byte
}

// fakeBroker captures the subscribed handler and published replies.
type fakeBroker struct {
	subject   string
	queue     string
	handler   messaging.MessageHandler
	sub       *fakeSubscription
	published []published
	subErr    error
}

func (b *fakeBroker) Publish(ctx context.Context, subject string, data []byte) error {
	b.published = append(b.published, published{subject: subject, data: data})
	return nil
}

func (b *fakeBroker) QueueSubscribe(subject, queue string, handler messaging.MessageHandler) (messaging.Subscription, error) {
	if b.subErr != nil {
		return nil, b.subErr
	}
	b.subject, b.queue, b.handler = subject, queue, handler
	b.sub = &fakeSubscription{subject: subject}
	return b.sub, nil
}

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, userID, templateID string, req *models.GenerateReportRequest, trigger string) (*models.GeneratedReport, error) {
	args := m.Called(ctx, userID, templateID, req, trigger)
	if r := args.Get(0); r != nil {
		return r.(*models.GeneratedReport), args.Error(1)
	}
	return nil, args.Error(1)
}

func startHandler(t *testing.T, gen Generator) (*Handler, *fakeBroker) {
	t.Helper()
	broker := &fakeBroker{}
	h := NewHandler(broker, gen, logging.Discard())
	require.NoError(t, h.Start())
	return h, broker
}

func deliver(t *testing.T, broker *fakeBroker, payload []byte) GenerateResponse {
	t.Helper()
	require.NotNil(t, broker.handler)
	err := broker.handler(context.Background(), &messaging.Message{
		Subject: messaging.SubjectReportsGenerate,
		Data:    payload,
		Reply:   "_INBOX.test",
	})
	require.NoError(t, err)
	require.Len(t, broker.published, 1)
	assert.Equal(t, "_INBOX.test", broker.published[0].subject)

	var resp GenerateResponse
	require.NoError(t, json.Unmarshal(broker.published[0].data, &resp))
	return resp
}

func TestHandler_StartStop(t *testing.T) {
	h, broker := startHandler(t, &MockGenerator{})
	assert.Equal(t, messaging.SubjectReportsGenerate, broker.subject)
	assert.Equal(t, messaging.QueueReportWorkers, broker.queue)

	require.NoError(t, h.Stop())
	assert.True(t, broker.sub.unsubscribed)
}

func TestHandler_StartFails(t *testing.T) {
	h := NewHandler(&fakeBroker{subErr: errors.New("nats: connection closed")}, &MockGenerator{}, logging.Discard())
	err := h.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), messaging.SubjectReportsGenerate)
}

func TestHandler_Generate(t *testing.T) {
	gen := &MockGenerator{}
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	gen.On("Generate", mock.Anything, "alice", "tpl-1",
		mock.MatchedBy(func(req *models.GenerateReportRequest) bool {
			return len(req.Filters) == 1 && req.Filters[0].Field == "severity" &&
				req.DateRange != nil && req.DateRange.Start.Equal(start)
		}),
		service.TriggerMessaging,
	).Return(&models.GeneratedReport{
		ID:       "rep-1",
		Metadata: models.ReportMetadata{TotalRecords: 42, FailedWidgets: 1},
	}, nil)

	_, broker := startHandler(t, gen)
	payload, err := json.Marshal(GenerateRequest{
		TemplateID: "tpl-1",
		UserID:     "alice",
		Filters:    []models.ReportFilter{{Field: "severity", Operator: models.OpEquals, Value: models.String("high")}},
		DateRange:  &models.DateRange{Start: start, End: end},
	})
	require.NoError(t, err)

	resp := deliver(t, broker, payload)
	assert.True(t, resp.Success)
	assert.Equal(t, "rep-1", resp.ReportID)
	assert.Equal(t, 42, resp.TotalRecords)
	assert.Equal(t, 1, resp.FailedWidgets)
	assert.Empty(t, resp.Error)
	gen.AssertExpectations(t)
}

func TestHandler_Errors(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		genErr    error
		wantError string
	}{
		{"malformed json", `{"template_id":`, nil, "invalid request"},
		{"missing user", `{"template_id":"tpl-1"}`, nil, "user_id"},
		{"missing template", `{"user_id":"alice"}`, nil, "template_id"},
		{"generation fails", `{"template_id":"tpl-1","user_id":"alice"}`, service.ErrAccessDenied, service.ErrAccessDenied.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &MockGenerator{}
			if tt.genErr != nil {
				gen.On("Generate", mock.Anything, "alice", "tpl-1", mock.Anything, service.TriggerMessaging).
					Return(nil, tt.genErr)
			}
			_, broker := startHandler(t, gen)

			resp := deliver(t, broker, []byte(tt.payload))
			assert.False(t, resp.Success)
			assert.Empty(t, resp.ReportID)
			assert.Contains(t, resp.Error, tt.wantError)
			gen.AssertExpectations(t)
		})
	}
}

func TestHandler_NoReplySubject(t *testing.T) {
	gen := &MockGenerator{}
	gen.On("Generate", mock.Anything, "alice", "tpl-1", mock.Anything, service.TriggerMessaging).
		Return(&models.GeneratedReport{ID: "rep-1"}, nil)
	_, broker := startHandler(t, gen)

	err := broker.handler(context.Background(), &messaging.Message{
		Subject: messaging.SubjectReportsGenerate,
		Data:    []byte(`{"template_id":"tpl-1","user_id":"alice"}`),
	})
	require.NoError(t, err)
	assert.Empty(t, broker.published)
	gen.AssertExpectations(t)
}
