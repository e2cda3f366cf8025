package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/builder-feedback/feedback-slack/internal/types"
	"github.com/slack-go/slack"
)

const maxBodyBytes = 1 << 20

var ErrInvalidBody = errors.New("invalid request body")

// SlackRequest is one of the request shapes accepted by the integration endpoint.
// The set is closed: only types in this file implement it.
type SlackRequest interface {
	isSlackRequest()
}

// OAuthCallback is Slack redirecting back with an authorization code.
type OAuthCallback struct {
	Code  string
	State string
}

// OAuthDenied is Slack redirecting back after the user cancelled the install.
type OAuthDenied struct {
	Reason string
}

// ConnectRequest asks for the URL that starts the OAuth flow.
type ConnectRequest struct {
	UserID string
}

// SlashCommandRequest is a /feedback invocation posted by Slack.
type SlashCommandRequest struct {
	Command slack.SlashCommand
	Header  http.Header
	Body    []byte
}

// NotificationRequest is the host app reporting an idea event for a user.
type NotificationRequest struct {
	Type   string
	Idea   types.Idea
	UserID string
}

// DisconnectRequest turns a user's Slack integration off.
type DisconnectRequest struct {
	UserID string
}

// UnsupportedRequest is every other method and shape.
type UnsupportedRequest struct {
	Method string
}

func (OAuthCallback) isSlackRequest()       {}
func (OAuthDenied) isSlackRequest()         {}
func (ConnectRequest) isSlackRequest()      {}
func (SlashCommandRequest) isSlackRequest() {}
func (NotificationRequest) isSlackRequest() {}
func (DisconnectRequest) isSlackRequest()   {}
func (UnsupportedRequest) isSlackRequest()  {}

type postBody struct {
	Command     string          `json:"command"`
	Text        string          `json:"text"`
	SlackUserID string          `json:"user_id"`
	TeamID      string          `json:"team_id"`
	ChannelID   string          `json:"channel_id"`
	ResponseURL string          `json:"response_url"`
	Type        string          `json:"type"`
	Idea        json.RawMessage `json:"idea"`
	UserID      string          `json:"userId"`
}

// ParseSlackRequest classifies r by method and by which fields its query or body carries.
func ParseSlackRequest(r *http.Request) (SlackRequest, error) {
	switch r.Method {
	case http.MethodGet:
		return parseGet(r), nil
	case http.MethodPost:
		return parsePost(r)
	case http.MethodDelete:
		return parseDelete(r)
	default:
		return UnsupportedRequest{Method: r.Method}, nil
	}
}

func parseGet(r *http.Request) SlackRequest {
	query := r.URL.Query()

	switch {
	case query.Get("code") != "":
		return OAuthCallback{Code: query.Get("code"), State: query.Get("state")}
	case query.Get("error") != "":
		return OAuthDenied{Reason: query.Get("error")}
	case query.Get("action") == "connect":
		return ConnectRequest{UserID: query.Get("userId")}
	default:
		return UnsupportedRequest{Method: r.Method}
	}
}

func parsePost(r *http.Request) (SlackRequest, error) {
	raw, err := readBody(r)
	if err != nil {
		return nil, err
	}

	if isForm(r) {
		// SlashCommandParse reads the form from the body again
		r.Body = io.NopCloser(bytes.NewReader(raw))
		cmd, err := slack.SlashCommandParse(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidBody, err)
		}
		if cmd.Command == "" {
			return UnsupportedRequest{Method: r.Method}, nil
		}
		return SlashCommandRequest{Command: cmd, Header: r.Header.Clone(), Body: raw}, nil
	}

	var body postBody
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidBody, err)
		}
	}

	switch {
	case body.Command != "":
		return SlashCommandRequest{
			Command: slack.SlashCommand{
				Command:     body.Command,
				Text:        body.Text,
				UserID:      body.SlackUserID,
				TeamID:      body.TeamID,
				ChannelID:   body.ChannelID,
				ResponseURL: body.ResponseURL,
			},
			Header: r.Header.Clone(),
			Body:   raw,
		}, nil
	case body.Type != "":
		var idea types.Idea
		if len(body.Idea) > 0 && string(body.Idea) != "null" {
			if err := json.Unmarshal(body.Idea, &idea); err != nil {
				return nil, fmt.Errorf("%w: idea: %v", ErrInvalidBody, err)
			}
		}
		return NotificationRequest{Type: body.Type, Idea: idea, UserID: body.UserID}, nil
	default:
		return UnsupportedRequest{Method: r.Method}, nil
	}
}

func parseDelete(r *http.Request) (SlackRequest, error) {
	raw, err := readBody(r)
	if err != nil {
		return nil, err
	}

	var body struct {
		UserID string `json:"userId"`
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidBody, err)
		}
	}

	return DisconnectRequest{UserID: body.UserID}, nil
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}

	return raw, nil
}

func isForm(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/x-www-form-urlencoded"
}
