package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const SlackWebhookHost = "hooks.slack.com"

var (
	ErrMissingFields     = errors.New("missing required fields: webhookUrl and slackMessage")
	ErrInvalidWebhookURL = errors.New("webhook url is not a slack webhook url")
)

// DeliveryErrorKind separates transport failures from Slack rejecting the request
// and from Slack accepting it with an unexpected body.
type DeliveryErrorKind int

const (
	KindNetwork DeliveryErrorKind = iota + 1
	KindHTTPStatus
	KindPayload
)

func (k DeliveryErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindHTTPStatus:
		return "http_status"
	case KindPayload:
		return "payload"
	default:
		return "unknown"
	}
}

type DeliveryError struct {
	Kind       DeliveryErrorKind
	StatusCode int
	Status     string
	Body       string
	Message    string
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("slack webhook %s error: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("slack webhook %s error: %s", e.Kind, e.Message)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

type WebhookClient struct {
	httpClient *http.Client
}

func NewWebhookClient(httpClient *http.Client) *WebhookClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &WebhookClient{httpClient: httpClient}
}

// ValidateWebhookURL rejects anything that is not aimed at Slack's webhook host.
func ValidateWebhookURL(webhookURL string) error {
	if !strings.Contains(webhookURL, SlackWebhookHost) {
		return ErrInvalidWebhookURL
	}
	return nil
}

// Deliver posts message as JSON to webhookURL and returns Slack's response body.
// message may be raw JSON or any value encoding/json can marshal.
func (c *WebhookClient) Deliver(ctx context.Context, webhookURL string, message any) (string, error) {
	if webhookURL == "" || isEmptyMessage(message) {
		return "", ErrMissingFields
	}

	if err := ValidateWebhookURL(webhookURL); err != nil {
		return "", err
	}

	body, err := encodeMessage(message)
	if err != nil {
		return "", fmt.Errorf("failed to marshal Slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build Slack webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	slog.DebugContext(ctx, "forwarding slack webhook message", "payload_bytes", len(body))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &DeliveryError{
			Kind:    KindNetwork,
			Message: "Failed to connect to Slack. Please check the webhook URL.",
			Err:     err,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read Slack response: %w", err)
	}
	text := string(respBody)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.WarnContext(ctx, "slack webhook rejected message", "status", resp.StatusCode, "body", text)

		return "", &DeliveryError{
			Kind:       KindHTTPStatus,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       text,
			Message:    statusMessage(resp.StatusCode, resp.Status, text),
		}
	}

	// Slack webhooks answer a literal "ok" on success
	if text != "ok" {
		return text, &DeliveryError{
			Kind:       KindPayload,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       text,
			Message:    "Unexpected response from Slack",
		}
	}

	return text, nil
}

func statusMessage(code int, status, body string) string {
	switch {
	case code == http.StatusNotFound && strings.Contains(body, "no_service"):
		return "Invalid webhook URL. Please check that your Slack webhook URL is correct and active."
	case code == http.StatusForbidden:
		return "Access denied. Your webhook URL may be expired or missing permissions."
	case code == http.StatusBadRequest:
		return "Bad request. There may be an issue with the message format."
	default:
		return fmt.Sprintf("Slack API error: %s", status)
	}
}

func encodeMessage(message any) ([]byte, error) {
	if raw, ok := message.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(message)
}

func isEmptyMessage(message any) bool {
	if message == nil {
		return true
	}
	if raw, ok := message.(json.RawMessage); ok {
		trimmed := strings.TrimSpace(string(raw))
		return trimmed == "" || trimmed == "null" || trimmed == `""` || trimmed == "false" || trimmed == "0"
	}
	return false
}
