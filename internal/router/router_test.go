package router_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/builder-feedback/feedback-slack/db"
	"github.com/builder-feedback/feedback-slack/internal/auth"
	"github.com/builder-feedback/feedback-slack/internal/config"
	"github.com/builder-feedback/feedback-slack/internal/handlers"
	"github.com/builder-feedback/feedback-slack/internal/middleware"
	"github.com/builder-feedback/feedback-slack/internal/router"
	"github.com/builder-feedback/feedback-slack/internal/services"
	"github.com/builder-feedback/feedback-slack/internal/store"
)

var _ = Describe("NewRouter", func() {
	var (
		engine *gin.Engine
		signer *auth.Signer
	)

	BeforeEach(func() {
		cfg := config.Config{
			Env:            "test",
			BaseURL:        "https://feedback.example.com",
			JWTSecret:      "jwt-secret",
			AllowedOrigins: []string{"http://localhost:3000"},
		}

		conn, err := db.ConnectDatabase(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
		Expect(err).NotTo(HaveOccurred())
		Expect(db.MigrateDatabase(conn)).To(Succeed())
		sqlDB, err := conn.DB()
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(sqlDB.Close)

		signer, err = auth.NewSigner(cfg.JWTSecret)
		Expect(err).NotTo(HaveOccurred())

		hub := handlers.NewHub(cfg.AllowedOrigins)
		slackHandler := handlers.NewSlackHandler(handlers.SlackHandlerDeps{
			Slack:         services.NewSlackService("id", "secret", cfg.RedirectURI()),
			Configs:       store.NewWebhookConfigStore(conn),
			Notifications: store.NewNotificationStore(conn),
			States:        signer,
			Hub:           hub,
			Messages:      services.NewMessageBuilder(cfg.BaseURL),
			Commands:      services.NewCommandResponder(cfg.BaseURL, nil),
			BaseURL:       cfg.BaseURL,
		})

		engine = router.NewRouter(router.Deps{
			Config:   cfg,
			Signer:   signer,
			Slack:    slackHandler,
			Proxy:    handlers.NewProxyHandler(services.NewWebhookClient(nil)),
			Hub:      hub,
			Database: sqlDB,
		})
	})

	serve := func(req *http.Request) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		return w
	}

	It("reports health including the database", func() {
		w := serve(httptest.NewRequest(http.MethodGet, "/api/health", nil))

		Expect(w.Code).To(Equal(http.StatusOK))
		var body map[string]string
		Expect(json.Unmarshal(w.Body.Bytes(), &body)).To(Succeed())
		Expect(body["status"]).To(Equal("ok"))
	})

	It("tags responses with a request id", func() {
		w := serve(httptest.NewRequest(http.MethodGet, "/api/health", nil))
		Expect(w.Header().Get(middleware.RequestIDHeader)).NotTo(BeEmpty())

		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.Header.Set(middleware.RequestIDHeader, "req-123")
		w = serve(req)
		Expect(w.Header().Get(middleware.RequestIDHeader)).To(Equal("req-123"))
	})

	It("guards the notification log with a session token", func() {
		w := serve(httptest.NewRequest(http.MethodGet, "/api/integrations/slack/notifications", nil))
		Expect(w.Code).To(Equal(http.StatusUnauthorized))

		token, err := signer.GenerateJWT("u1", time.Hour)
		Expect(err).NotTo(HaveOccurred())
		req := httptest.NewRequest(http.MethodGet, "/api/integrations/slack/notifications", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		w = serve(req)

		Expect(w.Code).To(Equal(http.StatusOK))
	})

	It("routes every method of the integration endpoint to the handler", func() {
		w := serve(httptest.NewRequest(http.MethodPut, "/api/integrations/slack", nil))

		Expect(w.Code).To(Equal(http.StatusMethodNotAllowed))
	})

	It("lets the proxy answer non POST methods itself", func() {
		w := serve(httptest.NewRequest(http.MethodGet, "/api/slack-proxy", nil))

		Expect(w.Code).To(Equal(http.StatusMethodNotAllowed))
	})

	It("answers CORS preflights for allowed origins", func() {
		req := httptest.NewRequest(http.MethodOptions, "/api/slack-proxy", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)

		w := serve(req)

		Expect(w.Code).To(Equal(http.StatusNoContent))
		Expect(w.Header().Get("Access-Control-Allow-Origin")).To(Equal("http://localhost:3000"))
	})
})
