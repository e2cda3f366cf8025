package wizard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/builder-feedback/feedback-slack/internal/services"
	"github.com/builder-feedback/feedback-slack/internal/types"
)

type Step int

const (
	StepCreateApp Step = iota + 1
	StepConfigureOAuth
	StepSetupWebhook
	StepBotToken
	StepTestAndComplete
)

const stepCount = int(StepTestAndComplete)

var stepInfo = map[Step][2]string{
	StepCreateApp:       {"Create Slack App", "Set up your Slack application"},
	StepConfigureOAuth:  {"Configure OAuth", "Set permissions and scopes"},
	StepSetupWebhook:    {"Setup Webhook", "Configure incoming webhooks"},
	StepBotToken:        {"Add Bot Token", "Enable bot functionality"},
	StepTestAndComplete: {"Test & Complete", "Verify your configuration"},
}

func (s Step) Title() string       { return stepInfo[s][0] }
func (s Step) Description() string { return stepInfo[s][1] }

// Field names a Config value that Set can change.
type Field string

const (
	FieldAppName       Field = "appName"
	FieldClientID      Field = "clientId"
	FieldClientSecret  Field = "clientSecret"
	FieldSigningSecret Field = "signingSecret"
	FieldWebhookURL    Field = "webhookUrl"
	FieldChannelID     Field = "channelId"
	FieldBotToken      Field = "botToken"
)

// Events the wizard offers, with the label shown next to each.
var Events = []struct {
	Name  string
	Label string
}{
	{types.EventIdeaCreated, "New ideas submitted"},
	{types.EventIdeaUpdated, "Ideas status updated"},
	{types.EventIdeaVoted, "Ideas receive votes (milestones)"},
	{types.EventIdeaCommented, "New comments added"},
}

var (
	ErrUnknownField = errors.New("unknown wizard field")
	ErrNotFinalStep = errors.New("wizard can only complete from the last step")
	ErrCompleted    = errors.New("wizard already completed")
)

type Config struct {
	AppName       string
	ClientID      string
	ClientSecret  string
	SigningSecret string
	WebhookURL    string
	ChannelID     string
	BotToken      string
	Events        []string
}

func DefaultConfig() Config {
	return Config{
		AppName:   "Builder Feedback",
		ChannelID: "#general",
		Events:    []string{types.EventIdeaCreated, types.EventIdeaUpdated},
	}
}

// Deliverer sends a message to an incoming webhook.
type Deliverer interface {
	Deliver(ctx context.Context, webhookURL string, message any) (string, error)
}

// Result is what Complete hands back. A failed test message does not undo completion.
type Result struct {
	Config       Config
	TestSent     bool
	TestResponse string
	TestError    error
}

// Wizard walks a user through the five setup steps in order.
type Wizard struct {
	step              Step
	config            Config
	completed         bool
	requireWebhookURL bool

	deliverer Deliverer
	messages  *services.MessageBuilder
	now       func() time.Time
}

type Option func(*Wizard)

// WithoutWebhookURL lets step 3 pass with only a channel, for installs that rely on OAuth webhooks.
func WithoutWebhookURL() Option {
	return func(w *Wizard) {
		w.requireWebhookURL = false
	}
}

func WithClock(now func() time.Time) Option {
	return func(w *Wizard) {
		w.now = now
	}
}

func New(deliverer Deliverer, messages *services.MessageBuilder, opts ...Option) *Wizard {
	w := &Wizard{
		step:              StepCreateApp,
		config:            DefaultConfig(),
		requireWebhookURL: true,
		deliverer:         deliverer,
		messages:          messages,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Wizard) Step() Step { return w.step }

func (w *Wizard) StepCount() int { return stepCount }

func (w *Wizard) Completed() bool { return w.completed }

func (w *Wizard) RequiresWebhookURL() bool { return w.requireWebhookURL }

// Config returns a copy that callers may modify freely.
func (w *Wizard) Config() Config {
	cfg := w.config
	cfg.Events = slices.Clone(w.config.Events)
	return cfg
}

// CanProceed reports whether the current step has everything it needs.
func (w *Wizard) CanProceed() bool {
	if w.completed {
		return false
	}

	c := w.config

	switch w.step {
	case StepCreateApp:
		return c.AppName != ""
	case StepConfigureOAuth:
		return c.ClientID != "" && c.ClientSecret != "" && c.SigningSecret != ""
	case StepSetupWebhook:
		if w.requireWebhookURL && c.WebhookURL == "" {
			return false
		}
		return c.ChannelID != ""
	case StepBotToken:
		return c.BotToken != "" && len(c.Events) > 0
	case StepTestAndComplete:
		return true
	default:
		return false
	}
}

// Next advances one step and reports whether it moved.
func (w *Wizard) Next() bool {
	if !w.CanProceed() || int(w.step) >= stepCount {
		return false
	}
	w.step++
	return true
}

// Previous goes back one step and reports whether it moved.
func (w *Wizard) Previous() bool {
	if w.completed || w.step <= StepCreateApp {
		return false
	}
	w.step--
	return true
}

func (w *Wizard) Set(field Field, value string) error {
	if w.completed {
		return ErrCompleted
	}

	switch field {
	case FieldAppName:
		w.config.AppName = value
	case FieldClientID:
		w.config.ClientID = value
	case FieldClientSecret:
		w.config.ClientSecret = value
	case FieldSigningSecret:
		w.config.SigningSecret = value
	case FieldWebhookURL:
		w.config.WebhookURL = value
	case FieldChannelID:
		w.config.ChannelID = value
	case FieldBotToken:
		w.config.BotToken = value
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}

	return nil
}

// ToggleEvent adds or removes event. Adding an event already selected is a no-op.
func (w *Wizard) ToggleEvent(event string, checked bool) {
	if w.completed {
		return
	}

	if checked {
		if !slices.Contains(w.config.Events, event) {
			w.config.Events = append(w.config.Events, event)
		}
		return
	}

	w.config.Events = slices.DeleteFunc(w.config.Events, func(e string) bool {
		return e == event
	})
}

// Complete finishes the wizard from the last step and, when a webhook URL is
// configured, sends a test message to it.
func (w *Wizard) Complete(ctx context.Context) (Result, error) {
	if w.completed {
		return Result{}, ErrCompleted
	}
	if w.step != StepTestAndComplete {
		return Result{}, ErrNotFinalStep
	}

	w.completed = true
	result := Result{Config: w.Config()}

	if w.config.WebhookURL == "" || w.deliverer == nil {
		return result, nil
	}

	msg := w.messages.TestMessage(w.config.AppName, w.config.ChannelID, w.config.Events, w.now())

	resp, err := w.deliverer.Deliver(ctx, w.config.WebhookURL, msg)
	result.TestResponse = resp
	if err != nil {
		slog.WarnContext(ctx, "setup test message failed", "error", err)
		result.TestError = err
		return result, nil
	}

	result.TestSent = true
	return result, nil
}
