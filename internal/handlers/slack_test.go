package handlers_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/builder-feedback/feedback-slack/internal/auth"
	"github.com/builder-feedback/feedback-slack/internal/handlers"
	"github.com/builder-feedback/feedback-slack/internal/middleware"
	"github.com/builder-feedback/feedback-slack/internal/models"
	"github.com/builder-feedback/feedback-slack/internal/services"
	"github.com/builder-feedback/feedback-slack/internal/store"
	"github.com/builder-feedback/feedback-slack/internal/types"
)

const (
	baseURL       = "https://feedback.example.com"
	signingSecret = "8f742231b10e8888abcd99yyyzzz85a5"
	endpoint      = "/api/integrations/slack"
)

type apiResponse struct {
	Message string          `json:"message"`
	Error   bool            `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func decodeResponse(w *httptest.ResponseRecorder) apiResponse {
	var resp apiResponse
	ExpectWithOffset(1, json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
	return resp
}

func signSlackRequest(req *http.Request, secret string, body []byte) {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:" + ts + ":"))
	mac.Write(body)

	req.Header.Set("X-Slack-Request-Timestamp", ts)
	req.Header.Set("X-Slack-Signature", "v0="+hex.EncodeToString(mac.Sum(nil)))
}

var _ = Describe("SlackHandler", func() {
	var (
		ctx           context.Context
		router        *gin.Engine
		api           *mockSlackAPI
		hub           *recordingHub
		signer        *auth.Signer
		configs       *store.WebhookConfigStore
		notifications *store.NotificationStore
		secret        string
	)

	buildRouter := func() {
		h := handlers.NewSlackHandler(handlers.SlackHandlerDeps{
			Slack:         api,
			Configs:       configs,
			Notifications: notifications,
			States:        signer,
			Hub:           hub,
			Messages:      services.NewMessageBuilder(baseURL),
			Commands:      services.NewCommandResponder(baseURL, nil),
			BaseURL:       baseURL,
			SigningSecret: secret,
		})

		router = gin.New()
		router.Any(endpoint, h.Handle)
		router.GET(endpoint+"/notifications", func(c *gin.Context) {
			c.Set(types.ContextUserKey, middleware.AuthenticatedUser{ID: "u1"})
		}, h.ListNotifications)
		router.GET(endpoint+"/as-session", func(c *gin.Context) {
			c.Set(types.ContextUserKey, middleware.AuthenticatedUser{ID: "session-user"})
		}, h.Handle)
	}

	do := func(req *http.Request) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	jsonRequest := func(method string, body any) *http.Request {
		payload, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		req := httptest.NewRequest(method, endpoint, bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		return req
	}

	saveConfig := func(userID, channel string, active bool, events ...string) {
		Expect(configs.Upsert(ctx, &models.WebhookConfig{
			UserID:      userID,
			Service:     models.ServiceSlack,
			WebhookURL:  "https://hooks.slack.com/services/T1/B1/XYZ",
			SecretToken: "xoxb-" + userID,
			Channel:     channel,
			Events:      models.EventsJSON(events),
			IsActive:    active,
		})).To(Succeed())
	}

	BeforeEach(func() {
		ctx = context.Background()
		conn := newTestDB()
		configs = store.NewWebhookConfigStore(conn)
		notifications = store.NewNotificationStore(conn)
		api = &mockSlackAPI{}
		hub = &recordingHub{}
		secret = signingSecret

		var err error
		signer, err = auth.NewSigner("jwt-secret")
		Expect(err).NotTo(HaveOccurred())

		buildRouter()
	})

	Describe("OAuth callback", func() {
		installation := &services.Installation{
			AccessToken: "xoxb-installed",
			SlackUserID: "U1",
			UserName:    "Ada",
			TeamID:      "T1",
			TeamName:    "Acme",
			WebhookURL:  "https://hooks.slack.com/services/T1/B1/NEW",
			ChannelID:   "C1",
			Channel:     "#feedback",
		}

		callback := func(state string) *http.Request {
			return httptest.NewRequest(http.MethodGet, endpoint+"?code=the-code&state="+url.QueryEscape(state), nil)
		}

		BeforeEach(func() {
			api.exchangeCodeFn = func(context.Context, string) (*services.Installation, error) {
				return installation, nil
			}
		})

		It("stores the installation and redirects to the connected page", func() {
			state, err := signer.GenerateState("u1")
			Expect(err).NotTo(HaveOccurred())

			w := do(callback(state))

			Expect(w.Code).To(Equal(http.StatusFound))
			Expect(w.Header().Get("Location")).To(Equal(baseURL + "/integrations?slack=connected"))
			Expect(api.exchanged).To(Equal([]string{"the-code"}))

			cfg, err := configs.Find(ctx, "u1", models.ServiceSlack)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.IsActive).To(BeTrue())
			Expect(cfg.WebhookURL).To(Equal(installation.WebhookURL))
			Expect(cfg.SecretToken).To(Equal("xoxb-installed"))
			Expect(cfg.Channel).To(Equal("#feedback"))
			Expect(cfg.TeamName).To(Equal("Acme"))
			Expect(cfg.EventList()).To(Equal(types.DefaultOAuthEvents))

			Expect(hub.Events()).To(ConsistOf(broadcast{UserID: "u1", Service: "slack", Status: "connected"}))
		})

		It("reactivates a disconnected integration", func() {
			saveConfig("u1", "#old", false, "idea_created")
			state, err := signer.GenerateState("u1")
			Expect(err).NotTo(HaveOccurred())

			do(callback(state))

			cfg, err := configs.Find(ctx, "u1", models.ServiceSlack)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.IsActive).To(BeTrue())
			Expect(cfg.Channel).To(Equal("#feedback"))
		})

		It("rejects a forged state before spending the code", func() {
			w := do(callback("not-a-signed-state"))

			Expect(w.Code).To(Equal(http.StatusFound))
			Expect(w.Header().Get("Location")).To(Equal(baseURL + "/integrations?slack=error"))
			Expect(api.exchanged).To(BeEmpty())
		})

		It("redirects to the error page when the exchange fails", func() {
			api.exchangeCodeFn = func(context.Context, string) (*services.Installation, error) {
				return nil, errors.New("invalid_code")
			}
			state, err := signer.GenerateState("u1")
			Expect(err).NotTo(HaveOccurred())

			w := do(callback(state))

			Expect(w.Header().Get("Location")).To(Equal(baseURL + "/integrations?slack=error"))
			_, err = configs.Find(ctx, "u1", models.ServiceSlack)
			Expect(err).To(MatchError(store.ErrNotFound))
			Expect(hub.Events()).To(BeEmpty())
		})

		It("skips the upsert when Slack returns no incoming webhook", func() {
			api.exchangeCodeFn = func(context.Context, string) (*services.Installation, error) {
				return &services.Installation{AccessToken: "xoxb", TeamID: "T1"}, nil
			}
			state, err := signer.GenerateState("u1")
			Expect(err).NotTo(HaveOccurred())

			w := do(callback(state))

			Expect(w.Header().Get("Location")).To(Equal(baseURL + "/integrations?slack=connected"))
			_, err = configs.Find(ctx, "u1", models.ServiceSlack)
			Expect(err).To(MatchError(store.ErrNotFound))
		})

		It("redirects to the error page when the user cancels on Slack", func() {
			w := do(httptest.NewRequest(http.MethodGet, endpoint+"?error=access_denied", nil))

			Expect(w.Code).To(Equal(http.StatusFound))
			Expect(w.Header().Get("Location")).To(Equal(baseURL + "/integrations?slack=error"))
		})

		It("turns a panic into a 500", func() {
			api.exchangeCodeFn = func(context.Context, string) (*services.Installation, error) {
				panic("boom")
			}
			state, err := signer.GenerateState("u1")
			Expect(err).NotTo(HaveOccurred())

			w := do(callback(state))

			Expect(w.Code).To(Equal(http.StatusInternalServerError))
			Expect(decodeResponse(w).Message).To(Equal("Internal server error"))
		})
	})

	Describe("connect", func() {
		stateFrom := func(w *httptest.ResponseRecorder) string {
			var data struct {
				OAuthURL string `json:"oauthUrl"`
			}
			ExpectWithOffset(1, json.Unmarshal(decodeResponse(w).Data, &data)).To(Succeed())
			parsed, err := url.Parse(data.OAuthURL)
			ExpectWithOffset(1, err).NotTo(HaveOccurred())

			userID, err := signer.VerifyState(parsed.Query().Get("state"))
			ExpectWithOffset(1, err).NotTo(HaveOccurred())
			return userID
		}

		It("signs the state for the signed-in user, not the requested id", func() {
			w := do(httptest.NewRequest(http.MethodGet, endpoint+"/as-session?action=connect&userId=someone-else", nil))

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(stateFrom(w)).To(Equal("session-user"))
		})

		It("needs no userId when the caller is signed in", func() {
			w := do(httptest.NewRequest(http.MethodGet, endpoint+"/as-session?action=connect", nil))

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(stateFrom(w)).To(Equal("session-user"))
		})

		It("requires a user id", func() {
			w := do(httptest.NewRequest(http.MethodGet, endpoint+"?action=connect", nil))

			Expect(w.Code).To(Equal(http.StatusBadRequest))
			resp := decodeResponse(w)
			Expect(resp.Error).To(BeTrue())
			Expect(resp.Message).To(Equal("User ID is required"))
		})

		It("returns an authorize URL carrying a signed state for the user", func() {
			w := do(httptest.NewRequest(http.MethodGet, endpoint+"?action=connect&userId=u1", nil))

			Expect(w.Code).To(Equal(http.StatusOK))
			resp := decodeResponse(w)
			Expect(resp.Error).To(BeFalse())
			Expect(resp.Message).To(Equal("OAuth URL generated"))

			var data struct {
				OAuthURL string `json:"oauthUrl"`
			}
			Expect(json.Unmarshal(resp.Data, &data)).To(Succeed())
			parsed, err := url.Parse(data.OAuthURL)
			Expect(err).NotTo(HaveOccurred())

			userID, err := signer.VerifyState(parsed.Query().Get("state"))
			Expect(err).NotTo(HaveOccurred())
			Expect(userID).To(Equal("u1"))
		})
	})

	Describe("slash commands", func() {
		formRequest := func(text string) (*http.Request, []byte) {
			body := []byte(url.Values{
				"command":    {"/feedback"},
				"text":       {text},
				"user_id":    {"U1"},
				"team_id":    {"T1"},
				"channel_id": {"C1"},
			}.Encode())
			req := httptest.NewRequest(http.MethodPost, endpoint, bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			return req, body
		}

		It("answers signed commands with an ephemeral message", func() {
			req, body := formRequest("stats")
			signSlackRequest(req, signingSecret, body)

			w := do(req)

			Expect(w.Code).To(Equal(http.StatusOK))
			var msg map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &msg)).To(Succeed())
			Expect(msg["response_type"]).To(Equal("ephemeral"))
			Expect(msg["text"]).To(Equal("📊 Builder Feedback Stats"))
			Expect(msg).To(HaveKey("blocks"))
		})

		It("accepts JSON encoded commands", func() {
			payload := []byte(`{"command":"/feedback","text":"search"}`)
			req := httptest.NewRequest(http.MethodPost, endpoint, bytes.NewReader(payload))
			req.Header.Set("Content-Type", "application/json")
			signSlackRequest(req, signingSecret, payload)

			w := do(req)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(ContainSubstring("Please provide a search term"))
		})

		It("rejects commands with a bad signature", func() {
			req, body := formRequest("stats")
			signSlackRequest(req, "some-other-secret", body)

			w := do(req)

			Expect(w.Code).To(Equal(http.StatusUnauthorized))
		})

		It("rejects unsigned commands", func() {
			req, _ := formRequest("help")

			w := do(req)

			Expect(w.Code).To(Equal(http.StatusUnauthorized))
		})

		It("fails closed without a signing secret", func() {
			secret = ""
			buildRouter()
			req, body := formRequest("help")
			signSlackRequest(req, signingSecret, body)

			w := do(req)

			Expect(w.Code).To(Equal(http.StatusInternalServerError))
			Expect(decodeResponse(w).Message).To(Equal("Slack signing secret not configured"))
		})
	})

	Describe("notifications", func() {
		idea := map[string]any{
			"id":          "42",
			"title":       "Dark mode",
			"status":      "SUBMITTED",
			"author":      map[string]string{"name": "Ada"},
			"votes":       3,
			"description": "Please",
			"tags":        []string{"ui"},
			"createdAt":   "2024-03-05T12:00:00Z",
		}

		notify := func(eventType, userID string) *httptest.ResponseRecorder {
			return do(jsonRequest(http.MethodPost, map[string]any{
				"type":   eventType,
				"idea":   idea,
				"userId": userID,
			}))
		}

		It("requires a user id", func() {
			w := notify("idea_created", "")

			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(api.posted).To(BeEmpty())
		})

		It("returns 404 without a config", func() {
			w := notify("idea_created", "u1")

			Expect(w.Code).To(Equal(http.StatusNotFound))
			Expect(decodeResponse(w).Message).To(Equal("Slack integration not found or inactive"))
		})

		It("returns 404 for an inactive config", func() {
			saveConfig("u1", "#feedback", false, "idea_created")

			w := notify("idea_created", "u1")

			Expect(w.Code).To(Equal(http.StatusNotFound))
			Expect(api.posted).To(BeEmpty())
		})

		It("does not post events the user did not enable", func() {
			saveConfig("u1", "#feedback", true, "idea_created")

			w := notify("idea_voted", "u1")

			Expect(w.Code).To(Equal(http.StatusOK))
			resp := decodeResponse(w)
			Expect(resp.Error).To(BeFalse())
			Expect(resp.Message).To(Equal("Event type not enabled for this integration"))
			Expect(api.posted).To(BeEmpty())

			logged, err := notifications.ListByUser(ctx, "u1", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(logged).To(HaveLen(1))
			Expect(logged[0].Status).To(Equal(models.NotificationSkipped))
		})

		It("posts enabled events to the configured channel", func() {
			saveConfig("u1", "#feedback", true, "idea_created")

			w := notify("idea_created", "u1")

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(decodeResponse(w).Message).To(Equal("Notification sent to Slack successfully"))
			Expect(api.posted).To(HaveLen(1))
			Expect(api.posted[0].Token).To(Equal("xoxb-u1"))
			Expect(api.posted[0].Channel).To(Equal("#feedback"))
			Expect(api.posted[0].Message.Text).To(ContainSubstring("Dark mode"))

			logged, err := notifications.ListByUser(ctx, "u1", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(logged).To(HaveLen(1))
			Expect(logged[0].Status).To(Equal(models.NotificationSent))
			Expect(logged[0].IdeaID).To(Equal("42"))
			Expect(logged[0].SentAt).NotTo(BeNil())
		})

		It("falls back to #general when no channel was stored", func() {
			saveConfig("u1", "", true, "idea_created")

			notify("idea_created", "u1")

			Expect(api.posted).To(HaveLen(1))
			Expect(api.posted[0].Channel).To(Equal("#general"))
		})

		It("reports and records post failures", func() {
			saveConfig("u1", "#feedback", true, "idea_created")
			api.postMessageFn = func(context.Context, string, string, services.SlackMessage) error {
				return errors.New("channel_not_found")
			}

			w := notify("idea_created", "u1")

			Expect(w.Code).To(Equal(http.StatusInternalServerError))
			Expect(decodeResponse(w).Message).To(Equal("Failed to send Slack notification"))

			logged, err := notifications.ListByUser(ctx, "u1", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(logged[0].Status).To(Equal(models.NotificationFailed))
			Expect(logged[0].Message).To(ContainSubstring("channel_not_found"))
		})

		It("lists the caller's notification log", func() {
			saveConfig("u1", "#feedback", true, "idea_created")
			notify("idea_created", "u1")

			w := do(httptest.NewRequest(http.MethodGet, endpoint+"/notifications", nil))

			Expect(w.Code).To(Equal(http.StatusOK))
			var data []map[string]any
			Expect(json.Unmarshal(decodeResponse(w).Data, &data)).To(Succeed())
			Expect(data).To(HaveLen(1))
			Expect(data[0]["status"]).To(Equal("sent"))
			Expect(data[0]["eventType"]).To(Equal("idea_created"))
		})

		It("rejects malformed bodies", func() {
			req := httptest.NewRequest(http.MethodPost, endpoint, strings.NewReader(`{"type":`))
			req.Header.Set("Content-Type", "application/json")

			w := do(req)

			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("disconnect", func() {
		It("requires a user id", func() {
			w := do(jsonRequest(http.MethodDelete, map[string]string{}))

			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(decodeResponse(w).Message).To(Equal("User ID is required"))
		})

		It("deactivates the integration and notifies open dashboards", func() {
			saveConfig("u1", "#feedback", true, "idea_created")

			w := do(jsonRequest(http.MethodDelete, map[string]string{"userId": "u1"}))

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(decodeResponse(w).Message).To(Equal("Slack integration disconnected"))

			cfg, err := configs.Find(ctx, "u1", models.ServiceSlack)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.IsActive).To(BeFalse())
			Expect(hub.Events()).To(ConsistOf(broadcast{UserID: "u1", Service: "slack", Status: "disconnected"}))

			w = do(jsonRequest(http.MethodPost, map[string]any{"type": "idea_created", "userId": "u1"}))
			Expect(w.Code).To(Equal(http.StatusNotFound))
		})
	})

	DescribeTable("rejects everything else with 405",
		func(req func() *http.Request) {
			w := do(req())

			Expect(w.Code).To(Equal(http.StatusMethodNotAllowed))
			Expect(decodeResponse(w).Message).To(Equal("Method not allowed"))
		},
		Entry("PUT", func() *http.Request { return httptest.NewRequest(http.MethodPut, endpoint, nil) }),
		Entry("PATCH", func() *http.Request { return httptest.NewRequest(http.MethodPatch, endpoint, nil) }),
		Entry("GET without parameters", func() *http.Request { return httptest.NewRequest(http.MethodGet, endpoint, nil) }),
		Entry("POST without command or type", func() *http.Request {
			req := httptest.NewRequest(http.MethodPost, endpoint, strings.NewReader(`{}`))
			req.Header.Set("Content-Type", "application/json")
			return req
		}),
	)
})
