package services

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/builder-feedback/feedback-slack/internal/types"
	"github.com/slack-go/slack"
)

const (
	BrandColor  = "#7C3AED" // Builder.io purple
	BrandFooter = "Builder.io Feedback"
	FooterIcon  = "https://cdn.builder.io/api/v1/image/assets%2F24272629d2bd4d1a8956cce15af1b3dc%2F3eea6d7844d747569446ee85b9577557"

	maxDescriptionLength = 200
)

type IdeaAction string

const (
	ActionCreated   IdeaAction = "created"
	ActionUpdated   IdeaAction = "updated"
	ActionVoted     IdeaAction = "voted"
	ActionCommented IdeaAction = "commented"
)

var actionEmoji = map[IdeaAction]string{
	ActionCreated:   "💡",
	ActionUpdated:   "📝",
	ActionVoted:     "👍",
	ActionCommented: "💬",
}

var statusEmoji = map[string]string{
	"SUBMITTED":   "📋",
	"PLANNED":     "📅",
	"IN_PROGRESS": "⚡",
	"COMPLETED":   "✅",
	"REJECTED":    "❌",
}

// ActionForEvent maps an "idea_<action>" event name to its action.
func ActionForEvent(event string) (IdeaAction, bool) {
	action := IdeaAction(strings.TrimPrefix(event, "idea_"))
	_, ok := actionEmoji[action]
	if !ok || !strings.HasPrefix(event, "idea_") {
		return "", false
	}
	return action, true
}

// SlackMessage is the block and attachment payload shared by chat.postMessage and webhooks.
type SlackMessage struct {
	Text        string
	Blocks      []slack.Block
	Attachments []slack.Attachment
}

func (m SlackMessage) MsgOptions() []slack.MsgOption {
	opts := []slack.MsgOption{slack.MsgOptionBlocks(m.Blocks...)}
	if m.Text != "" {
		opts = append(opts, slack.MsgOptionText(m.Text, false))
	}
	if len(m.Attachments) > 0 {
		opts = append(opts, slack.MsgOptionAttachments(m.Attachments...))
	}
	return opts
}

func (m SlackMessage) WebhookMessage() *slack.WebhookMessage {
	return &slack.WebhookMessage{
		Text:        m.Text,
		Blocks:      &slack.Blocks{BlockSet: m.Blocks},
		Attachments: m.Attachments,
	}
}

func (m SlackMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.WebhookMessage())
}

type MessageBuilder struct {
	baseURL string
}

func NewMessageBuilder(baseURL string) *MessageBuilder {
	return &MessageBuilder{baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (b *MessageBuilder) IdeaURL(ideaID string) string {
	return fmt.Sprintf("%s/ideas/%s", b.baseURL, ideaID)
}

// FormatIdea renders an idea event; the output only depends on its inputs.
func (b *MessageBuilder) FormatIdea(idea types.Idea, action IdeaAction) SlackMessage {
	status := idea.Status
	if emoji, ok := statusEmoji[idea.Status]; ok {
		status = emoji + " " + idea.Status
	}

	tags := make([]string, 0, len(idea.Tags))
	for _, tag := range idea.Tags {
		tags = append(tags, "`"+tag+"`")
	}

	viewButton := slack.NewButtonBlockElement("view_idea", "", plainText("View Idea"))
	viewButton.URL = b.IdeaURL(idea.ID)

	voteButton := slack.NewButtonBlockElement("vote_idea", "", plainText("Vote"))
	voteButton.URL = b.IdeaURL(idea.ID)
	voteButton.Style = slack.StylePrimary

	blocks := []slack.Block{
		slack.NewHeaderBlock(
			plainText(fmt.Sprintf("%s New %s in Builder Feedback", actionEmoji[action], action)),
		),
		slack.NewSectionBlock(nil, []*slack.TextBlockObject{
			mrkdwn("*Title:*\n" + idea.Title),
			mrkdwn("*Status:*\n" + status),
			mrkdwn("*Author:*\n" + idea.Author.Name),
			mrkdwn("*Votes:*\n" + strconv.Itoa(idea.Votes)),
		}, nil),
		slack.NewSectionBlock(mrkdwn("*Description:*\n"+truncate(idea.Description, maxDescriptionLength)), nil, nil),
		slack.NewSectionBlock(mrkdwn("*Tags:* "+strings.Join(tags, " ")), nil, nil),
		slack.NewActionBlock("", viewButton, voteButton),
		slack.NewContextBlock("", mrkdwn(fmt.Sprintf("%s • %s", BrandFooter, idea.CreatedAt.Format("1/2/2006")))),
	}

	return SlackMessage{
		Text:   fmt.Sprintf("%s New %s in Builder Feedback: %s", actionEmoji[action], action, idea.Title),
		Blocks: blocks,
		Attachments: []slack.Attachment{{
			Color:      BrandColor,
			Footer:     BrandFooter,
			FooterIcon: FooterIcon,
			Ts:         json.Number(strconv.FormatInt(idea.CreatedAt.Unix(), 10)),
		}},
	}
}

// TestMessage is sent by the setup wizard to prove the webhook works.
func (b *MessageBuilder) TestMessage(appName, channel string, events []string, now time.Time) SlackMessage {
	return SlackMessage{
		Text: fmt.Sprintf("✅ %s is connected to Slack", appName),
		Blocks: []slack.Block{
			slack.NewHeaderBlock(plainText("🧪 Test message from " + appName)),
			slack.NewSectionBlock(nil, []*slack.TextBlockObject{
				mrkdwn("*Channel:*\n" + channel),
				mrkdwn(fmt.Sprintf("*Events:*\n%d selected", len(events))),
			}, nil),
			slack.NewSectionBlock(mrkdwn("Your Slack integration is set up. Notifications for new and updated ideas will appear here."), nil, nil),
			slack.NewContextBlock("", mrkdwn(fmt.Sprintf("%s • %s", BrandFooter, now.Format("1/2/2006")))),
		},
		Attachments: []slack.Attachment{{
			Color:      BrandColor,
			Footer:     BrandFooter,
			FooterIcon: FooterIcon,
			Ts:         json.Number(strconv.FormatInt(now.Unix(), 10)),
		}},
	}
}

func mrkdwn(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.MarkdownType, text, false, false)
}

func plainText(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.PlainTextType, text, true, false)
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
