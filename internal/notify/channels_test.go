package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookChannel(t *testing.T) {
	var (
		got    Message
		header string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get("Idempotency-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	msg := Message{ID: uuid.New(), To: "ops@example.com", Subject: "Receipt INV-000001", Body: "Total: 1.00"}
	require.NoError(t, WebhookChannel{URL: srv.URL}.Send(context.Background(), msg))
	assert.Equal(t, msg, got)
	assert.Equal(t, msg.ID.String(), header)
}

func TestWebhookChannelRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := WebhookChannel{URL: srv.URL}.Send(context.Background(), Message{ID: uuid.New()})
	assert.ErrorContains(t, err, "502")
}

func TestSlackChannel(t *testing.T) {
	var channel, text string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat.postMessage", r.URL.Path)
		require.NoError(t, r.ParseForm())
		channel = r.FormValue("channel")
		text = r.FormValue("text")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"channel":"C0POS","ts":"1700000000.000100"}`))
	}))
	defer srv.Close()

	ch := NewSlackChannel("xoxb-test", "C0POS", slack.OptionAPIURL(srv.URL+"/"))
	err := ch.Send(context.Background(), Message{ID: uuid.New(), To: "+15550100", Subject: "Receipt INV-000002", Body: "Total: 2.00"})
	require.NoError(t, err)
	assert.Equal(t, "C0POS", channel)
	assert.Contains(t, text, "Receipt INV-000002")
	assert.Contains(t, text, "+15550100")
}

func TestSMTPChannelRejectsNonEmail(t *testing.T) {
	err := SMTPChannel{Host: "localhost", Port: 25, From: "pos@example.com"}.Send(context.Background(), Message{To: "+15550100"})
	assert.Error(t, err)
}

func TestNewChannel(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ChannelConfig
		wantErr bool
	}{
		{name: "default", cfg: ChannelConfig{}},
		{name: "log", cfg: ChannelConfig{Kind: "LOG"}},
		{name: "smtp", cfg: ChannelConfig{Kind: "smtp", SMTP: SMTPChannel{Host: "mail", From: "pos@example.com"}}},
		{name: "smtp missing host", cfg: ChannelConfig{Kind: "smtp"}, wantErr: true},
		{name: "webhook", cfg: ChannelConfig{Kind: "webhook", WebhookURL: "http://hooks.local"}},
		{name: "webhook missing url", cfg: ChannelConfig{Kind: "webhook"}, wantErr: true},
		{name: "slack", cfg: ChannelConfig{Kind: "slack", SlackToken: "t", SlackChannel: "c"}},
		{name: "slack missing channel", cfg: ChannelConfig{Kind: "slack", SlackToken: "t"}, wantErr: true},
		{name: "unknown", cfg: ChannelConfig{Kind: "pager"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch, err := NewChannel(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, ch)
		})
	}
}
