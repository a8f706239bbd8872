package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mukund1606/taxmann-project/internal/api/http/handlers"
	"github.com/mukund1606/taxmann-project/internal/auth"
	"github.com/mukund1606/taxmann-project/internal/config"
	"github.com/mukund1606/taxmann-project/internal/domain"
	"github.com/mukund1606/taxmann-project/internal/events"
	"github.com/mukund1606/taxmann-project/internal/observability"
	"github.com/mukund1606/taxmann-project/internal/repository"
	"github.com/mukund1606/taxmann-project/internal/service"
)

type stubPredictor struct{ category string }

func (s stubPredictor) Predict(context.Context, string) (string, error) {
	return s.category, nil
}

type testServer struct {
	app    *fiber.App
	stores repository.AccountStores
	cipher auth.PasswordCipher
}

func newTestServer(t *testing.T, limiter *auth.SignInLimiter) *testServer {
	t.Helper()
	cipher, err := auth.NewCTRCipher(bytes.Repeat([]byte{1}, config.EncryptionKeySize))
	require.NoError(t, err)

	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	stores := repository.NewMemoryAccountStores()
	tokens := auth.NewTokenManager("test-secret", time.Hour)

	authSvc := service.NewAuthService(service.AuthDependencies{
		Accounts: stores, Cipher: cipher, Tokens: tokens, Metrics: metrics, Logger: logger,
	})
	ticketSvc := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  repository.NewMemoryTicketRepository(),
		HistoryRepo: repository.NewMemoryTicketHistoryRepository(),
		Dispatcher:  events.NewInMemoryDispatcher(),
		Metrics:     metrics,
		Logger:      logger,
	})

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, 5*time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("support-desk", "test", nil),
		Session:        handlers.NewSessionHandler(authSvc, false),
		Tickets:        handlers.NewTicketsHandler(ticketSvc, stubPredictor{category: "Hardware"}),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		SignInLimiter:  limiter,
		Metrics:        metrics,
	})
	return &testServer{app: app, stores: stores, cipher: cipher}
}

func (s *testServer) seedAdmin(t *testing.T, email, password string) {
	t.Helper()
	encrypted, err := s.cipher.Encrypt(password)
	require.NoError(t, err)
	require.NoError(t, s.stores.Admins.Create(context.Background(), &domain.Account{
		Name: "Ops", Email: email, EncryptedPassword: encrypted,
	}))
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, envelope, *http.Response) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env, resp
}

func (s *testServer) signIn(t *testing.T, email, password string, role domain.Role) string {
	t.Helper()
	status, env, _ := s.do(t, http.MethodPost, "/auth/sign-in", "", map[string]any{
		"email": email, "password": password, "role": role,
	})
	require.Equal(t, http.StatusOK, status)
	var session struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &session))
	return session.Token
}

func TestRouter_TicketLifecycle(t *testing.T) {
	s := newTestServer(t, nil)
	s.seedAdmin(t, "ops@example.com", "admin-pass")

	status, env, _ := s.do(t, http.MethodPost, "/auth/register", "", map[string]any{
		"name": "Alice", "email": "alice@example.com", "password": "secret123",
	})
	require.Equal(t, http.StatusCreated, status)
	assert.NotContains(t, string(env.Data), "password")

	userToken := s.signIn(t, "alice@example.com", "secret123", domain.RoleUser)
	adminToken := s.signIn(t, "ops@example.com", "admin-pass", domain.RoleAdmin)

	status, env, _ = s.do(t, http.MethodPost, "/tickets", userToken, map[string]any{
		"title": "Printer jam", "description": "paper stuck", "category": "Hardware",
	})
	require.Equal(t, http.StatusCreated, status)
	var ticket struct {
		ID       string `json:"id"`
		Status   string `json:"status"`
		Priority string `json:"priority"`
		Content  []struct {
			AuthorID    string `json:"author_id"`
			Description string `json:"description"`
		} `json:"content"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &ticket))
	assert.Equal(t, "OPEN", ticket.Status)
	assert.Equal(t, "LOW", ticket.Priority)
	require.Len(t, ticket.Content, 1)

	status, env, _ = s.do(t, http.MethodPost, "/tickets", adminToken, map[string]any{
		"title": "Admin ticket", "description": "nope", "category": "Other",
	})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	status, _, _ = s.do(t, http.MethodPost, "/tickets/"+ticket.ID+"/replies", adminToken, map[string]any{"description": "on it"})
	assert.Equal(t, http.StatusCreated, status)

	status, env, _ = s.do(t, http.MethodPatch, "/tickets/"+ticket.ID+"/status", userToken, map[string]any{"status": "CLOSED"})
	assert.Equal(t, http.StatusForbidden, status)

	status, _, _ = s.do(t, http.MethodPatch, "/tickets/"+ticket.ID+"/priority", userToken, map[string]any{"priority": "HIGH"})
	assert.Equal(t, http.StatusOK, status)

	status, _, _ = s.do(t, http.MethodPatch, "/tickets/"+ticket.ID+"/status", adminToken, map[string]any{"status": "CLOSED"})
	assert.Equal(t, http.StatusOK, status)

	status, env, _ = s.do(t, http.MethodPost, "/tickets/"+ticket.ID+"/replies", userToken, map[string]any{"description": "hello?"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CONFLICT", env.Error.Code)

	status, _, _ = s.do(t, http.MethodPatch, "/tickets/"+ticket.ID+"/priority", adminToken, map[string]any{"priority": "LOW"})
	assert.Equal(t, http.StatusConflict, status)

	status, env, _ = s.do(t, http.MethodGet, "/tickets/"+ticket.ID+"/history", adminToken, nil)
	require.Equal(t, http.StatusOK, status)
	var history []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &history))
	assert.Len(t, history, 2)

	status, _, _ = s.do(t, http.MethodGet, "/tickets/"+ticket.ID+"/history", userToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, env, _ = s.do(t, http.MethodGet, "/tickets?status=CLOSED&page=1&rows=25", userToken, nil)
	require.Equal(t, http.StatusOK, status)
	var list struct {
		Items []map[string]any `json:"items"`
		Total int              `json:"total"`
		Rows  int              `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, 1, list.Total)
	assert.Equal(t, 25, list.Rows)
}

func TestRouter_SignInFailuresAreOpaque(t *testing.T) {
	s := newTestServer(t, nil)
	s.seedAdmin(t, "ops@example.com", "admin-pass")

	bodies := []any{
		map[string]any{"email": "ops@example.com", "password": "wrong-pass", "role": "ADMIN"},
		map[string]any{"email": "ops@example.com", "password": "admin-pass", "role": "USER"},
		map[string]any{"email": "ghost@example.com", "password": "admin-pass", "role": "ADMIN"},
		map[string]any{"email": "ops@example.com"},
	}
	for _, body := range bodies {
		status, env, _ := s.do(t, http.MethodPost, "/auth/sign-in", "", body)
		assert.Equal(t, http.StatusUnauthorized, status)
		require.NotNil(t, env.Error)
		assert.Equal(t, "INVALID_CREDENTIALS", env.Error.Code)
		assert.Equal(t, "Invalid Credentials", env.Error.Message)
		assert.Empty(t, env.Error.Details)
	}
}

func TestRouter_SessionCookieAndEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	s.seedAdmin(t, "ops@example.com", "admin-pass")

	_, _, resp := s.do(t, http.MethodPost, "/auth/sign-in", "", map[string]any{
		"email": "ops@example.com", "password": "admin-pass", "role": "ADMIN",
	})
	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == auth.SessionCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookie, Value: cookie.Value})
	res, err := s.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	status, env, _ := s.do(t, http.MethodGet, "/auth/session", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	status, _, _ = s.do(t, http.MethodGet, "/tickets", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestRouter_ListRejectsForeignUserID(t *testing.T) {
	s := newTestServer(t, nil)
	_, _, _ = s.do(t, http.MethodPost, "/auth/register", "", map[string]any{
		"name": "Alice", "email": "alice@example.com", "password": "secret123",
	})
	token := s.signIn(t, "alice@example.com", "secret123", domain.RoleUser)

	status, env, _ := s.do(t, http.MethodGet, "/tickets?user_id=someone-else", token, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	status, env, _ = s.do(t, http.MethodGet, "/tickets?sort=owner", token, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
}

func TestRouter_CategorySuggestion(t *testing.T) {
	s := newTestServer(t, nil)
	_, _, _ = s.do(t, http.MethodPost, "/auth/register", "", map[string]any{
		"name": "Alice", "email": "alice@example.com", "password": "secret123",
	})
	token := s.signIn(t, "alice@example.com", "secret123", domain.RoleUser)

	status, env, _ := s.do(t, http.MethodPost, "/tickets/category-suggestion", token, map[string]any{"text": "my monitor flickers"})
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"category":"Hardware"}`, string(env.Data))

	status, _, _ = s.do(t, http.MethodPost, "/tickets/category-suggestion", token, map[string]any{"text": "x"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRouter_SignInRateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s := newTestServer(t, auth.NewSignInLimiter(rdb, 2, time.Minute, zap.NewNop()))
	body := map[string]any{"email": "ghost@example.com", "password": "whatever1", "role": "USER"}

	for i := 0; i < 2; i++ {
		status, _, _ := s.do(t, http.MethodPost, "/auth/sign-in", "", body)
		assert.Equal(t, http.StatusUnauthorized, status)
	}
	status, env, resp := s.do(t, http.MethodPost, "/auth/sign-in", "", body)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "RATE_LIMITED", env.Error.Code)
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderRetryAfter))
}

func TestRouter_HealthMetricsAndRequestID(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "abc-123", resp.Header.Get(HeaderRequestID))

	status, _, _ := s.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, status)

	status, env, _ := s.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	resp, err = s.app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "http_requests_total")
}
