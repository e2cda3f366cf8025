package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/slack-go/slack"
)

const SlackAuthorizeURL = "https://slack.com/oauth/v2/authorize"

// OAuthScopes are requested when a user connects a workspace.
var OAuthScopes = []string{"incoming-webhook", "commands", "users:read"}

// Installation is what a successful OAuth exchange leaves us with.
type Installation struct {
	AccessToken string
	SlackUserID string
	UserName    string
	TeamID      string
	TeamName    string
	WebhookURL  string
	ChannelID   string
	Channel     string
}

type SlackService struct {
	clientID     string
	clientSecret string
	redirectURI  string
	apiURL       string
	httpClient   *http.Client
}

type SlackOption func(*SlackService)

// WithAPIURL points the Web API client at another base URL, e.g. a test server.
func WithAPIURL(apiURL string) SlackOption {
	return func(s *SlackService) {
		s.apiURL = apiURL
	}
}

func WithHTTPClient(c *http.Client) SlackOption {
	return func(s *SlackService) {
		s.httpClient = c
	}
}

func NewSlackService(clientID, clientSecret, redirectURI string, opts ...SlackOption) *SlackService {
	s := &SlackService{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURI:  redirectURI,
		apiURL:       slack.APIURL,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SlackService) client(token string) *slack.Client {
	return slack.New(token,
		slack.OptionAPIURL(s.apiURL),
		slack.OptionHTTPClient(s.httpClient),
	)
}

// AuthorizeURL builds the URL a user visits to install the app; state is echoed back on callback.
func (s *SlackService) AuthorizeURL(state string) string {
	return fmt.Sprintf("%s?client_id=%s&scope=%s&redirect_uri=%s&state=%s",
		SlackAuthorizeURL,
		url.QueryEscape(s.clientID),
		strings.Join(OAuthScopes, ","),
		url.QueryEscape(s.redirectURI),
		url.QueryEscape(state),
	)
}

// ExchangeCode trades an OAuth code for a token and looks up the installing user.
func (s *SlackService) ExchangeCode(ctx context.Context, code string) (*Installation, error) {
	resp, err := slack.GetOAuthV2ResponseContext(ctx, s.httpClient, s.clientID, s.clientSecret, code, s.redirectURI)
	if err != nil {
		return nil, fmt.Errorf("slack oauth exchange: %w", err)
	}

	if !resp.Ok {
		return nil, fmt.Errorf("slack oauth exchange: %s", resp.Error)
	}

	inst := &Installation{
		AccessToken: resp.AccessToken,
		SlackUserID: resp.AuthedUser.ID,
		TeamID:      resp.Team.ID,
		TeamName:    resp.Team.Name,
		WebhookURL:  resp.IncomingWebhook.URL,
		ChannelID:   resp.IncomingWebhook.ChannelID,
		Channel:     resp.IncomingWebhook.Channel,
	}

	user, err := s.client(resp.AccessToken).GetUserInfoContext(ctx, resp.AuthedUser.ID)
	if err != nil {
		return nil, fmt.Errorf("slack users.info: %w", err)
	}
	inst.UserName = user.RealName
	if inst.UserName == "" {
		inst.UserName = user.Name
	}

	slog.InfoContext(ctx, "slack oauth exchange completed", "team_id", inst.TeamID, "slack_user_id", inst.SlackUserID)

	return inst, nil
}

// PostMessage sends msg to channel with the workspace token stored at install time.
func (s *SlackService) PostMessage(ctx context.Context, token, channel string, msg SlackMessage) error {
	_, _, err := s.client(token).PostMessageContext(ctx, channel, msg.MsgOptions()...)
	if err != nil {
		return fmt.Errorf("slack chat.postMessage: %w", err)
	}
	return nil
}
