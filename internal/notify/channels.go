package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/slack-go/slack"
)

type LogChannel struct {
	Logger *log.Logger
}

func (c LogChannel) Send(_ context.Context, msg Message) error {
	logger := c.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("notify: to=%s subject=%q id=%s\n%s", msg.To, msg.Subject, msg.ID, msg.Body)
	return nil
}

type SMTPChannel struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// TLS dials with implicit TLS (SMTPS) instead of plain SMTP.
	TLS bool
}

func (c SMTPChannel) Send(ctx context.Context, msg Message) error {
	if !strings.Contains(msg.To, "@") {
		return fmt.Errorf("smtp: %q is not an email address", msg.To)
	}

	var body strings.Builder
	body.WriteString("From: " + c.From + "\r\n")
	body.WriteString("To: " + msg.To + "\r\n")
	body.WriteString("Subject: " + msg.Subject + "\r\n")
	body.WriteString("Message-ID: <" + msg.ID.String() + "@" + c.Host + ">\r\n")
	body.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	body.WriteString("\r\n")
	body.WriteString(msg.Body)

	addr := net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	var auth smtp.Auth
	if c.Username != "" {
		auth = smtp.PlainAuth("", c.Username, c.Password, c.Host)
	}

	if !c.TLS {
		if err := smtp.SendMail(addr, auth, c.From, []string{msg.To}, []byte(body.String())); err != nil {
			return fmt.Errorf("smtp: send: %w", err)
		}
		return nil
	}

	dialer := &tls.Dialer{Config: &tls.Config{ServerName: c.Host}}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp: connect: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, c.Host)
	if err != nil {
		return fmt.Errorf("smtp: client: %w", err)
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp: auth: %w", err)
		}
	}
	if err := client.Mail(c.From); err != nil {
		return fmt.Errorf("smtp: mail from: %w", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return fmt.Errorf("smtp: rcpt %s: %w", msg.To, err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp: data: %w", err)
	}
	if _, err := w.Write([]byte(body.String())); err != nil {
		return fmt.Errorf("smtp: write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp: close body: %w", err)
	}
	return client.Quit()
}

// WebhookChannel POSTs the message as JSON and treats any non-2xx reply as a
// failed attempt.
type WebhookChannel struct {
	URL    string
	Client *http.Client
}

func (c WebhookChannel) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("webhook: encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", msg.ID.String())

	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// SlackChannel posts every message to one channel; the recipient address is
// carried in the text.
type SlackChannel struct {
	client  *slack.Client
	channel string
}

func NewSlackChannel(token, channel string, opts ...slack.Option) *SlackChannel {
	return &SlackChannel{
		client:  slack.New(token, opts...),
		channel: channel,
	}
}

func (c *SlackChannel) Send(ctx context.Context, msg Message) error {
	text := fmt.Sprintf("*%s* (to %s)\n```%s```", msg.Subject, msg.To, msg.Body)
	if _, _, err := c.client.PostMessageContext(ctx, c.channel, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

type ChannelConfig struct {
	Kind         string
	SMTP         SMTPChannel
	WebhookURL   string
	SlackToken   string
	SlackChannel string
}

// NewChannel builds the channel named by cfg.Kind.
func NewChannel(cfg ChannelConfig) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", "log":
		return LogChannel{}, nil
	case "smtp":
		if cfg.SMTP.Host == "" || cfg.SMTP.From == "" {
			return nil, fmt.Errorf("smtp channel needs SMTP_HOST and SMTP_FROM")
		}
		if cfg.SMTP.Port == 0 {
			cfg.SMTP.Port = 587
		}
		return cfg.SMTP, nil
	case "webhook":
		if cfg.WebhookURL == "" {
			return nil, fmt.Errorf("webhook channel needs NOTIFY_WEBHOOK_URL")
		}
		return WebhookChannel{URL: cfg.WebhookURL}, nil
	case "slack":
		if cfg.SlackToken == "" || cfg.SlackChannel == "" {
			return nil, fmt.Errorf("slack channel needs SLACK_TOKEN and SLACK_CHANNEL")
		}
		return NewSlackChannel(cfg.SlackToken, cfg.SlackChannel), nil
	default:
		return nil, fmt.Errorf("unknown notification channel %q", cfg.Kind)
	}
}
