package messaging

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClient is a minimal in-process Client.
type fakeClient struct {
	connected  bool
	requestErr error
	dropOnReq  bool
}

func (f *fakeClient) Publish(ctx context.Context, subject string, data []byte) error { return nil }

func (f *fakeClient) Request(ctx context.Context, subject string, data []byte, timeout time.Duration) (*Message, error) {
	if f.dropOnReq {
		f.connected = false
	}
	if f.requestErr != nil {
		return nil, f.requestErr
	}
	return &Message{Subject: subject, Data: []byte("pong")}, nil
}

func (f *fakeClient) Subscribe(subject string, handler MessageHandler) (Subscription, error) {
	return nil, nil
}

func (f *fakeClient) QueueSubscribe(subject, queue string, handler MessageHandler) (Subscription, error) {
	return nil, nil
}

func (f *fakeClient) Close() error      { return nil }
func (f *fakeClient) Drain() error      { return nil }
func (f *fakeClient) IsConnected() bool { return f.connected }

func TestCheckClientHealth(t *testing.T) {
	tests := []struct {
		name        string
		client      Client
		wantHealthy bool
		wantError   string
	}{
		{"nil client", nil, false, "client is nil"},
		{"disconnected", &fakeClient{connected: false}, false, "not connected"},
		{"connected", &fakeClient{connected: true}, true, ""},
		{"no responders", &fakeClient{connected: true, requestErr: errors.New("nats: no responders available for request")}, true, ""},
		{"dropped during ping", &fakeClient{connected: true, requestErr: errors.New("nats: connection closed"), dropOnReq: true}, false, "health check failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := CheckClientHealth(context.Background(), tt.client)
			assert.Equal(t, tt.wantHealthy, status.Healthy())
			if tt.wantError != "" {
				assert.Contains(t, status.Error, tt.wantError)
			}
		})
	}
}

func TestSubjects_FollowNamingConvention(t *testing.T) {
	for _, subject := range []string{
		SubjectReportsGenerated,
		SubjectReportsGenerate,
		SubjectReportsScheduleFailed,
	} {
		parts := strings.Split(subject, ".")
		assert.Len(t, parts, 3, "subject %q should be {domain}.{action}.{resource}", subject)
		assert.Equal(t, "reports", parts[0])
	}
}
