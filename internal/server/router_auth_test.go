package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/shipyard/internal/auth"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newAuthorizeTestHandler(t *testing.T, clock func() time.Time) (*httpHandler, *auth.SessionIssuer, *observer.ObservedLogs) {
	t.Helper()
	issuer, err := auth.NewSessionIssuer(auth.SessionIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		TokenTTL:      time.Minute,
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("failed to build issuer: %v", err)
	}
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{Issuer: issuer, CookieName: testCookieName})
	if err != nil {
		t.Fatalf("failed to build validator: %v", err)
	}
	core, logs := observer.New(zapcore.DebugLevel)
	return &httpHandler{issuer: issuer, sessions: validator, logger: zap.New(core)}, issuer, logs
}

func TestAuthorizeRequestLogsExpiredTokenAtInfoLevel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	current := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	handler, issuer, logs := newAuthorizeTestHandler(t, func() time.Time { return current })

	token, _, err := issuer.Issue("account-1", "ada@example.com")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	current = current.Add(time.Hour)

	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	request := httptest.NewRequest(http.MethodGet, "/profiles/me", http.NoBody)
	request.Header.Set("Authorization", "Bearer "+token)
	ctx.Request = request

	handler.authorizeRequest(ctx)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one log entry, got %d", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel {
		t.Fatalf("expected info level for expired token, got %s", entries[0].Level)
	}
	if entries[0].Message != "session validation failed" {
		t.Fatalf("unexpected log message: %q", entries[0].Message)
	}
}

func TestAuthorizeRequestLogsForgedTokenAtWarnLevel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _, logs := newAuthorizeTestHandler(t, nil)

	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	request := httptest.NewRequest(http.MethodGet, "/profiles/me", http.NoBody)
	request.AddCookie(&http.Cookie{Name: testCookieName, Value: "forged-token"})
	ctx.Request = request

	handler.authorizeRequest(ctx)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
	entries := logs.All()
	if len(entries) != 1 || entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected one warn entry, got %#v", entries)
	}
}

func TestAuthorizeRequestStoresAccountID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, issuer, _ := newAuthorizeTestHandler(t, nil)

	token, _, err := issuer.Issue("account-1", "ada@example.com")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	request := httptest.NewRequest(http.MethodGet, "/profiles/me", http.NoBody)
	request.AddCookie(&http.Cookie{Name: testCookieName, Value: token})
	ctx.Request = request

	handler.authorizeRequest(ctx)

	if ctx.IsAborted() {
		t.Fatalf("request must not be aborted")
	}
	if got := ctx.GetString(accountIDContextKey); got != "account-1" {
		t.Fatalf("unexpected account id %q", got)
	}
}
