package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/builder-feedback/feedback-slack/internal/services"
	"github.com/builder-feedback/feedback-slack/internal/types"
	"github.com/builder-feedback/feedback-slack/internal/utils"
	"github.com/gin-gonic/gin"
)

// Deliverer forwards a message to a Slack incoming webhook.
type Deliverer interface {
	Deliver(ctx context.Context, webhookURL string, message any) (string, error)
}

type ProxyHandler struct {
	webhooks Deliverer
}

func NewProxyHandler(webhooks Deliverer) *ProxyHandler {
	return &ProxyHandler{webhooks: webhooks}
}

type proxyRequest struct {
	WebhookURL   string          `json:"webhookUrl"`
	SlackMessage json.RawMessage `json:"slackMessage"`
}

// Proxy relays a browser-built message to Slack, which does not allow cross-origin webhook calls.
func (h *ProxyHandler) Proxy(c *gin.Context) {
	ctx := c.Request.Context()

	if c.Request.Method != http.MethodPost {
		c.JSON(http.StatusMethodNotAllowed, types.Failure("Method not allowed. Use POST.", nil))
		return
	}

	// an empty body is a request with no fields, answered by the missing-fields check
	var req proxyRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		slog.ErrorContext(ctx, "slack proxy error", "error", err)
		c.JSON(http.StatusInternalServerError, types.Failure("Internal server error while sending to Slack", nil))
		return
	}

	var message any
	if len(req.SlackMessage) > 0 {
		message = req.SlackMessage
	}

	slackResponse, err := h.webhooks.Deliver(ctx, req.WebhookURL, message)
	if err == nil {
		slog.InfoContext(ctx, "message sent to slack", "webhook", utils.PartialURL(req.WebhookURL, 50))
		c.JSON(http.StatusOK, types.Success("Message sent to Slack successfully!", gin.H{
			"slackResponse": slackResponse,
			"webhookUrl":    utils.PartialURL(req.WebhookURL, 50),
		}))
		return
	}

	var deliveryErr *services.DeliveryError

	switch {
	case errors.Is(err, services.ErrMissingFields):
		c.JSON(http.StatusBadRequest, types.Failure("Missing required fields: webhookUrl and slackMessage", nil))
	case errors.Is(err, services.ErrInvalidWebhookURL):
		c.JSON(http.StatusBadRequest, types.Failure("Invalid webhook URL. Must be a valid Slack webhook URL.", nil))
	case errors.As(err, &deliveryErr):
		h.deliveryFailure(c, deliveryErr)
	default:
		slog.ErrorContext(ctx, "slack proxy error", "error", err)
		c.JSON(http.StatusInternalServerError, types.Failure("Internal server error while sending to Slack", nil))
	}
}

func (h *ProxyHandler) deliveryFailure(c *gin.Context, err *services.DeliveryError) {
	switch err.Kind {
	case services.KindNetwork:
		slog.WarnContext(c.Request.Context(), "could not reach slack", "error", err.Err)
		c.JSON(http.StatusServiceUnavailable, types.Failure(err.Message, nil))
	case services.KindHTTPStatus:
		c.JSON(http.StatusBadRequest, types.Failure(err.Message, gin.H{
			"slackError":      err.Body,
			"statusCode":      err.StatusCode,
			"originalMessage": err.Status,
		}))
	case services.KindPayload:
		c.JSON(http.StatusBadRequest, types.Failure(err.Message, gin.H{
			"slackResponse": err.Body,
		}))
	default:
		c.JSON(http.StatusInternalServerError, types.Failure("Internal server error while sending to Slack", nil))
	}
}
