package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/builder-feedback/feedback-slack/internal/models"
	"github.com/builder-feedback/feedback-slack/internal/services"
	"github.com/builder-feedback/feedback-slack/internal/store"
	"github.com/builder-feedback/feedback-slack/internal/types"
	"github.com/builder-feedback/feedback-slack/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/slack-go/slack"
)

const defaultChannel = "#general"

// SlackAPI is the part of the Slack Web API the handler talks to.
type SlackAPI interface {
	AuthorizeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*services.Installation, error)
	PostMessage(ctx context.Context, token, channel string, msg services.SlackMessage) error
}

type WebhookConfigRepository interface {
	Upsert(ctx context.Context, cfg *models.WebhookConfig) error
	Find(ctx context.Context, userID, service string) (*models.WebhookConfig, error)
	Deactivate(ctx context.Context, userID, service string) (int64, error)
}

type NotificationRepository interface {
	Record(ctx context.Context, n *models.Notification) error
	ListByUser(ctx context.Context, userID string, limit int) ([]models.Notification, error)
}

// StateSigner issues and checks the OAuth state parameter.
type StateSigner interface {
	GenerateState(userID string) (string, error)
	VerifyState(state string) (string, error)
}

type Broadcaster interface {
	Broadcast(userID, service, status string)
}

type SlackHandler struct {
	slack         SlackAPI
	configs       WebhookConfigRepository
	notifications NotificationRepository
	states        StateSigner
	hub           Broadcaster
	messages      *services.MessageBuilder
	commands      *services.CommandResponder
	baseURL       string
	signingSecret string
	now           func() time.Time
}

type SlackHandlerDeps struct {
	Slack         SlackAPI
	Configs       WebhookConfigRepository
	Notifications NotificationRepository
	States        StateSigner
	Hub           Broadcaster
	Messages      *services.MessageBuilder
	Commands      *services.CommandResponder
	BaseURL       string
	SigningSecret string
}

func NewSlackHandler(deps SlackHandlerDeps) *SlackHandler {
	return &SlackHandler{
		slack:         deps.Slack,
		configs:       deps.Configs,
		notifications: deps.Notifications,
		states:        deps.States,
		hub:           deps.Hub,
		messages:      deps.Messages,
		commands:      deps.Commands,
		baseURL:       deps.BaseURL,
		signingSecret: deps.SigningSecret,
		now:           time.Now,
	}
}

// Handle serves every method on the integration endpoint.
func (h *SlackHandler) Handle(c *gin.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(c.Request.Context(), "slack handler panicked", "panic", r)
			c.AbortWithStatusJSON(http.StatusInternalServerError, types.Failure("Internal server error", nil))
		}
	}()

	req, err := ParseSlackRequest(c.Request)
	if err != nil {
		slog.WarnContext(c.Request.Context(), "failed to parse slack request", "error", err)
		c.JSON(http.StatusBadRequest, types.Failure("Invalid request body", nil))
		return
	}

	switch req := req.(type) {
	case OAuthCallback:
		h.oauthCallback(c, req)
	case OAuthDenied:
		h.oauthDenied(c, req)
	case ConnectRequest:
		h.connect(c, req)
	case SlashCommandRequest:
		h.slashCommand(c, req)
	case NotificationRequest:
		h.notify(c, req)
	case DisconnectRequest:
		h.disconnect(c, req)
	case UnsupportedRequest:
		c.JSON(http.StatusMethodNotAllowed, types.Failure("Method not allowed", nil))
	default:
		panic(fmt.Sprintf("unhandled slack request %T", req))
	}
}

// ListNotifications returns the caller's most recent notification attempts.
func (h *SlackHandler) ListNotifications(c *gin.Context) {
	userID, err := utils.GetCurrentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, types.Failure("User not authenticated", nil))
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	notifications, err := h.notifications.ListByUser(c.Request.Context(), userID, limit)
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "failed to list notifications", "error", err)
		c.JSON(http.StatusInternalServerError, types.Failure("Failed to fetch notifications", nil))
		return
	}

	c.JSON(http.StatusOK, types.Success("Notifications retrieved", notifications))
}

func (h *SlackHandler) redirect(c *gin.Context, status string) {
	c.Redirect(http.StatusFound, utils.WithQuery(h.baseURL+"/integrations", "slack", status))
}

func (h *SlackHandler) oauthCallback(c *gin.Context, req OAuthCallback) {
	ctx := c.Request.Context()

	userID, err := h.states.VerifyState(req.State)
	if err != nil {
		slog.WarnContext(ctx, "rejected slack oauth callback with invalid state", "error", err)
		h.redirect(c, "error")
		return
	}

	inst, err := h.slack.ExchangeCode(ctx, req.Code)
	if err != nil {
		slog.ErrorContext(ctx, "slack oauth error", "user_id", userID, "error", err)
		h.redirect(c, "error")
		return
	}

	if inst.WebhookURL == "" {
		slog.WarnContext(ctx, "slack oauth response has no incoming webhook", "user_id", userID, "team_id", inst.TeamID)
	} else {
		cfg := &models.WebhookConfig{
			UserID:      userID,
			Service:     models.ServiceSlack,
			WebhookURL:  inst.WebhookURL,
			SecretToken: inst.AccessToken,
			Channel:     inst.Channel,
			TeamID:      inst.TeamID,
			TeamName:    inst.TeamName,
			Events:      models.EventsJSON(types.DefaultOAuthEvents),
			IsActive:    true,
		}

		if err := h.configs.Upsert(ctx, cfg); err != nil {
			slog.ErrorContext(ctx, "failed to save slack webhook config", "user_id", userID, "error", err)
			h.redirect(c, "error")
			return
		}
	}

	slog.InfoContext(ctx, "slack integration connected",
		"user_id", userID,
		"team_name", inst.TeamName,
		"slack_user", inst.UserName,
	)
	h.hub.Broadcast(userID, models.ServiceSlack, "connected")

	h.redirect(c, "connected")
}

func (h *SlackHandler) oauthDenied(c *gin.Context, req OAuthDenied) {
	slog.InfoContext(c.Request.Context(), "slack oauth was not authorized", "reason", req.Reason)
	h.redirect(c, "error")
}

func (h *SlackHandler) connect(c *gin.Context, req ConnectRequest) {
	// a signed-in caller can only start an install for themselves
	if sessionUserID, err := utils.GetCurrentUserID(c); err == nil {
		if req.UserID != "" && req.UserID != sessionUserID {
			slog.WarnContext(c.Request.Context(), "connect requested for another user", "user_id", req.UserID)
		}
		req.UserID = sessionUserID
	}

	if req.UserID == "" {
		c.JSON(http.StatusBadRequest, types.Failure("User ID is required", nil))
		return
	}

	state, err := h.states.GenerateState(req.UserID)
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "failed to sign oauth state", "error", err)
		c.JSON(http.StatusInternalServerError, types.Failure("Internal server error", nil))
		return
	}

	c.JSON(http.StatusOK, types.Success("OAuth URL generated", gin.H{
		"oauthUrl": h.slack.AuthorizeURL(state),
	}))
}

func (h *SlackHandler) slashCommand(c *gin.Context, req SlashCommandRequest) {
	ctx := c.Request.Context()

	if h.signingSecret == "" {
		slog.ErrorContext(ctx, "slash command received but SLACK_SIGNING_SECRET is not set")
		c.JSON(http.StatusInternalServerError, types.Failure("Slack signing secret not configured", nil))
		return
	}

	if err := verifySlackSignature(req.Header, req.Body, h.signingSecret); err != nil {
		slog.WarnContext(ctx, "slash command signature rejected", "error", err)
		c.JSON(http.StatusUnauthorized, types.Failure("Invalid Slack signature", nil))
		return
	}

	msg, err := h.commands.Respond(ctx, req.Command.Text)
	if err != nil {
		slog.ErrorContext(ctx, "slash command failed", "command", req.Command.Command, "text", req.Command.Text, "error", err)
		c.JSON(http.StatusOK, services.CommandErrorResponse())
		return
	}

	c.JSON(http.StatusOK, msg)
}

func verifySlackSignature(header http.Header, body []byte, secret string) error {
	sv, err := slack.NewSecretsVerifier(header, secret)
	if err != nil {
		return err
	}

	if _, err := sv.Write(body); err != nil {
		return err
	}

	return sv.Ensure()
}

func (h *SlackHandler) notify(c *gin.Context, req NotificationRequest) {
	ctx := c.Request.Context()

	if req.UserID == "" {
		c.JSON(http.StatusBadRequest, types.Failure("User ID is required", nil))
		return
	}

	cfg, err := h.configs.Find(ctx, req.UserID, models.ServiceSlack)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !cfg.IsActive) {
		c.JSON(http.StatusNotFound, types.Failure("Slack integration not found or inactive", nil))
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to load slack webhook config", "user_id", req.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, types.Failure("Internal server error", nil))
		return
	}

	record := &models.Notification{
		UserID:    req.UserID,
		Service:   models.ServiceSlack,
		EventType: req.Type,
		IdeaID:    req.Idea.ID,
	}

	if !cfg.HasEvent(req.Type) {
		record.Status = models.NotificationSkipped
		record.Message = "event type not enabled"
		h.record(ctx, record)
		c.JSON(http.StatusOK, types.Success("Event type not enabled for this integration", nil))
		return
	}

	action, ok := services.ActionForEvent(req.Type)
	if !ok {
		c.JSON(http.StatusBadRequest, types.Failure("Unsupported event type", nil))
		return
	}

	channel := cfg.Channel
	if channel == "" {
		channel = defaultChannel
	}

	msg := h.messages.FormatIdea(req.Idea, action)

	if err := h.slack.PostMessage(ctx, cfg.SecretToken, channel, msg); err != nil {
		slog.ErrorContext(ctx, "slack notification error", "user_id", req.UserID, "event", req.Type, "error", err)
		record.Status = models.NotificationFailed
		record.Message = err.Error()
		h.record(ctx, record)
		c.JSON(http.StatusInternalServerError, types.Failure("Failed to send Slack notification", nil))
		return
	}

	sentAt := h.now()
	record.Status = models.NotificationSent
	record.SentAt = &sentAt
	h.record(ctx, record)

	c.JSON(http.StatusOK, types.Success("Notification sent to Slack successfully", nil))
}

// record never fails the request; the log is best effort.
func (h *SlackHandler) record(ctx context.Context, n *models.Notification) {
	if err := h.notifications.Record(ctx, n); err != nil {
		slog.WarnContext(ctx, "failed to record notification", "user_id", n.UserID, "status", n.Status, "error", err)
	}
}

func (h *SlackHandler) disconnect(c *gin.Context, req DisconnectRequest) {
	ctx := c.Request.Context()

	if req.UserID == "" {
		c.JSON(http.StatusBadRequest, types.Failure("User ID is required", nil))
		return
	}

	rows, err := h.configs.Deactivate(ctx, req.UserID, models.ServiceSlack)
	if err != nil {
		slog.ErrorContext(ctx, "failed to disconnect slack", "user_id", req.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, types.Failure("Internal server error", nil))
		return
	}

	slog.InfoContext(ctx, "slack integration disconnected", "user_id", req.UserID, "rows", rows)
	h.hub.Broadcast(req.UserID, models.ServiceSlack, "disconnected")

	c.JSON(http.StatusOK, types.Success("Slack integration disconnected", nil))
}
