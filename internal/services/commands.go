package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/slack-go/slack"
)

type IdeaMatch struct {
	Title string
	Votes int
}

type FeedbackStats struct {
	TotalIdeas int
	ThisWeek   int
	InProgress int
	Completed  int
}

// FeedbackQuerier answers slash command lookups against the host app's ideas.
type FeedbackQuerier interface {
	Search(ctx context.Context, term string) ([]IdeaMatch, error)
	Stats(ctx context.Context) (FeedbackStats, error)
}

// StaticQuerier returns fixed sample data; the idea store lives in the host app.
type StaticQuerier struct{}

func (StaticQuerier) Search(_ context.Context, _ string) ([]IdeaMatch, error) {
	return []IdeaMatch{
		{Title: "Dark mode for dashboard", Votes: 47},
		{Title: "Dark theme support", Votes: 23},
		{Title: "Mode switching UI", Votes: 12},
	}, nil
}

func (StaticQuerier) Stats(_ context.Context) (FeedbackStats, error) {
	return FeedbackStats{TotalIdeas: 157, ThisWeek: 12, InProgress: 8, Completed: 23}, nil
}

type CommandResponder struct {
	baseURL string
	querier FeedbackQuerier
}

func NewCommandResponder(baseURL string, querier FeedbackQuerier) *CommandResponder {
	if querier == nil {
		querier = StaticQuerier{}
	}
	return &CommandResponder{baseURL: strings.TrimSuffix(baseURL, "/"), querier: querier}
}

// Respond turns the text after the slash command into an ephemeral reply.
func (r *CommandResponder) Respond(ctx context.Context, text string) (*slack.Msg, error) {
	args := strings.Fields(text)

	var sub string
	if len(args) > 0 {
		sub = strings.ToLower(args[0])
	}

	switch sub {
	case "search":
		return r.search(ctx, strings.Join(args[1:], " "))
	case "stats":
		return r.stats(ctx)
	default:
		return r.help(), nil
	}
}

func (r *CommandResponder) search(ctx context.Context, term string) (*slack.Msg, error) {
	if term == "" {
		return &slack.Msg{
			ResponseType: slack.ResponseTypeEphemeral,
			Text:         "Please provide a search term. Usage: `/feedback search dark mode`",
		}, nil
	}

	matches, err := r.querier.Search(ctx, term)
	if err != nil {
		return nil, fmt.Errorf("search ideas: %w", err)
	}

	lines := make([]string, 0, len(matches))
	for _, m := range matches {
		lines = append(lines, fmt.Sprintf("• *%s* - %d votes", m.Title, m.Votes))
	}

	return &slack.Msg{
		ResponseType: slack.ResponseTypeEphemeral,
		Text:         fmt.Sprintf("🔍 Searching for ideas matching \"%s\"...", term),
		Blocks: slack.Blocks{BlockSet: []slack.Block{
			slack.NewSectionBlock(mrkdwn(fmt.Sprintf("Found %d ideas matching *\"%s\"*:", len(matches), term)), nil, nil),
			slack.NewSectionBlock(mrkdwn(strings.Join(lines, "\n")), nil, nil),
			slack.NewActionBlock("", linkButton("View All Results", r.baseURL+"/ideas?search="+url.QueryEscape(term))),
		}},
	}, nil
}

func (r *CommandResponder) stats(ctx context.Context) (*slack.Msg, error) {
	stats, err := r.querier.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("feedback stats: %w", err)
	}

	return &slack.Msg{
		ResponseType: slack.ResponseTypeEphemeral,
		Text:         "📊 Builder Feedback Stats",
		Blocks: slack.Blocks{BlockSet: []slack.Block{
			slack.NewSectionBlock(nil, []*slack.TextBlockObject{
				mrkdwn(fmt.Sprintf("*Total Ideas:*\n%d", stats.TotalIdeas)),
				mrkdwn(fmt.Sprintf("*This Week:*\n%d new", stats.ThisWeek)),
				mrkdwn(fmt.Sprintf("*In Progress:*\n%d ideas", stats.InProgress)),
				mrkdwn(fmt.Sprintf("*Completed:*\n%d ideas", stats.Completed)),
			}, nil),
			slack.NewActionBlock("", linkButton("View Dashboard", r.baseURL+"/")),
		}},
	}, nil
}

func (r *CommandResponder) help() *slack.Msg {
	return &slack.Msg{
		ResponseType: slack.ResponseTypeEphemeral,
		Text:         "🤖 Builder Feedback Commands",
		Blocks: slack.Blocks{BlockSet: []slack.Block{
			slack.NewSectionBlock(mrkdwn("*Available Commands:*\n\n"+
				"`/feedback search <term>` - Search for ideas\n"+
				"`/feedback stats` - View submission statistics\n"+
				"`/feedback help` - Show this help message"), nil, nil),
			slack.NewSectionBlock(mrkdwn("*Quick Links:*"), nil, nil),
			slack.NewActionBlock("",
				linkButton("Browse Ideas", r.baseURL+"/ideas"),
				linkButton("Submit Idea", r.baseURL+"/submit"),
			),
		}},
	}
}

// CommandErrorResponse is shown when a command fails; Slack still expects a 200.
func CommandErrorResponse() *slack.Msg {
	return &slack.Msg{
		ResponseType: slack.ResponseTypeEphemeral,
		Text:         "Sorry, there was an error processing your command. Please try again.",
	}
}

func linkButton(label, link string) *slack.ButtonBlockElement {
	btn := slack.NewButtonBlockElement("", "", slack.NewTextBlockObject(slack.PlainTextType, label, false, false))
	btn.URL = link
	return btn
}
