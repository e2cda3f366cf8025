package wizard

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/builder-feedback/feedback-slack/internal/utils"
	"github.com/joho/godotenv"
)

const backCommand = "back"

type prompt struct {
	field  Field
	label  string
	secret bool
}

var stepPrompts = map[Step][]prompt{
	StepCreateApp: {
		{field: FieldAppName, label: "App name"},
	},
	StepConfigureOAuth: {
		{field: FieldClientID, label: "Client ID"},
		{field: FieldClientSecret, label: "Client secret", secret: true},
		{field: FieldSigningSecret, label: "Signing secret", secret: true},
	},
	StepSetupWebhook: {
		{field: FieldWebhookURL, label: "Webhook URL"},
		{field: FieldChannelID, label: "Channel"},
	},
	StepBotToken: {
		{field: FieldBotToken, label: "Bot User OAuth Token", secret: true},
	},
}

// Runner drives a Wizard from line-oriented input, one prompt per field.
type Runner struct {
	wizard      *Wizard
	in          *bufio.Scanner
	out         io.Writer
	redirectURI string
}

func NewRunner(w *Wizard, in io.Reader, out io.Writer, redirectURI string) *Runner {
	return &Runner{wizard: w, in: bufio.NewScanner(in), out: out, redirectURI: redirectURI}
}

// Run prompts until the wizard completes. Typing "back" at any prompt returns to the previous step.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	r.printf("\n🚀 Slack integration setup\n")

	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		step := r.wizard.Step()
		r.printf("\nStep %d of %d: %s\n%s\n", step, r.wizard.StepCount(), step.Title(), step.Description())

		back, err := r.runStep(step)
		if err != nil {
			return Result{}, err
		}
		if back {
			r.wizard.Previous()
			continue
		}

		if step == StepTestAndComplete {
			return r.complete(ctx)
		}

		if !r.wizard.Next() {
			r.printf("⚠️  Please fill in the required fields to continue.\n")
		}
	}
}

func (r *Runner) runStep(step Step) (bool, error) {
	switch step {
	case StepConfigureOAuth:
		r.printf("Add this OAuth redirect URL to your Slack app: %s\n", r.redirectURI)
	case StepTestAndComplete:
		r.printSummary()
		answer, err := r.readLine("Send a test message and finish? [Y/n]")
		if err != nil {
			return false, err
		}
		return answer == backCommand || strings.EqualFold(answer, "n"), nil
	}

	cfg := r.wizard.Config()

	for _, p := range stepPrompts[step] {
		if p.field == FieldWebhookURL && !r.wizard.RequiresWebhookURL() {
			p.label += " (optional)"
		}

		answer, err := r.readLine(p.label + currentHint(fieldValue(cfg, p.field), p.secret))
		if err != nil {
			return false, err
		}
		if answer == backCommand {
			return true, nil
		}
		if answer == "" {
			continue
		}
		if err := r.wizard.Set(p.field, answer); err != nil {
			return false, err
		}
	}

	if step == StepBotToken {
		return r.promptEvents()
	}

	return false, nil
}

func (r *Runner) promptEvents() (bool, error) {
	r.printf("Choose which events will trigger Slack notifications:\n")
	for _, e := range Events {
		r.printf("  %-16s %s\n", e.Name, e.Label)
	}

	current := strings.Join(r.wizard.Config().Events, ",")
	answer, err := r.readLine("Events, comma separated [" + current + "]")
	if err != nil {
		return false, err
	}
	if answer == backCommand {
		return true, nil
	}
	if answer == "" {
		return false, nil
	}

	selected := map[string]bool{}
	for _, name := range strings.Split(answer, ",") {
		selected[strings.TrimSpace(name)] = true
	}

	for _, e := range Events {
		r.wizard.ToggleEvent(e.Name, selected[e.Name])
		delete(selected, e.Name)
	}
	for name := range selected {
		if name != "" {
			r.printf("⚠️  Ignoring unknown event %q\n", name)
		}
	}

	return false, nil
}

func (r *Runner) printSummary() {
	cfg := r.wizard.Config()

	r.printf("Configuration Summary:\n")
	r.printf("  App Name: %s\n", cfg.AppName)
	r.printf("  Channel:  %s\n", cfg.ChannelID)
	r.printf("  Events:   %d selected\n", len(cfg.Events))
	if cfg.WebhookURL != "" {
		r.printf("  Webhook:  %s\n", utils.PartialURL(cfg.WebhookURL, 40))
	}
}

func (r *Runner) complete(ctx context.Context) (Result, error) {
	result, err := r.wizard.Complete(ctx)
	if err != nil {
		return Result{}, err
	}

	switch {
	case result.TestSent:
		r.printf("✅ Test message sent to %s\n", result.Config.ChannelID)
	case result.TestError != nil:
		r.printf("❌ Test message failed: %v\n", result.TestError)
	}

	r.printf("✅ Slack integration configured\n")
	return result, nil
}

func (r *Runner) readLine(label string) (string, error) {
	r.printf("%s: ", label)

	if !r.in.Scan() {
		if err := r.in.Err(); err != nil {
			return "", fmt.Errorf("read input: %w", err)
		}
		return "", io.ErrUnexpectedEOF
	}

	return strings.TrimSpace(r.in.Text()), nil
}

func (r *Runner) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}

func currentHint(value string, secret bool) string {
	switch {
	case value == "":
		return ""
	case secret:
		return " [***]"
	default:
		return " [" + value + "]"
	}
}

func fieldValue(cfg Config, field Field) string {
	switch field {
	case FieldAppName:
		return cfg.AppName
	case FieldClientID:
		return cfg.ClientID
	case FieldClientSecret:
		return cfg.ClientSecret
	case FieldSigningSecret:
		return cfg.SigningSecret
	case FieldWebhookURL:
		return cfg.WebhookURL
	case FieldChannelID:
		return cfg.ChannelID
	case FieldBotToken:
		return cfg.BotToken
	default:
		return ""
	}
}

// EnvVars are the settings the server reads for a finished configuration.
func (c Config) EnvVars() map[string]string {
	return map[string]string{
		"SLACK_APP_NAME":       c.AppName,
		"SLACK_CLIENT_ID":      c.ClientID,
		"SLACK_CLIENT_SECRET":  c.ClientSecret,
		"SLACK_SIGNING_SECRET": c.SigningSecret,
		"SLACK_WEBHOOK_URL":    c.WebhookURL,
		"SLACK_CHANNEL_ID":     c.ChannelID,
		"SLACK_BOT_TOKEN":      c.BotToken,
		"SLACK_EVENTS":         strings.Join(c.Events, ","),
	}
}

// WriteEnv merges the configuration into the env file at path, keeping unrelated keys.
func WriteEnv(c Config, path string) error {
	env, err := godotenv.Read(path)
	if os.IsNotExist(err) {
		env = map[string]string{}
	} else if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	for k, v := range c.EnvVars() {
		if v != "" {
			env[k] = v
		}
	}

	if err := godotenv.Write(env, path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	return nil
}
