package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/shipyard/internal/auth"
	"github.com/MarcoPoloResearchLab/shipyard/internal/database"
	"github.com/MarcoPoloResearchLab/shipyard/internal/profiles"
	"github.com/MarcoPoloResearchLab/shipyard/internal/search"
	"github.com/MarcoPoloResearchLab/shipyard/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"
)

const (
	testSigningSecret = "test-signing-secret"
	testCookieName    = "shipyard_session"
)

var databaseSequence atomic.Int64

type testEnvironment struct {
	handler    http.Handler
	issuer     *auth.SessionIssuer
	dispatcher *RealtimeDispatcher
	logs       *observer.ObservedLogs
}

type environmentOptions struct {
	store   profiles.Store
	search  SearchIndex
	limiter WriteLimiter
}

func newTestEnvironment(t *testing.T, configure ...func(*environmentOptions)) *testEnvironment {
	t.Helper()
	gin.SetMode(gin.TestMode)

	options := environmentOptions{}
	for _, option := range configure {
		option(&options)
	}

	dsn := fmt.Sprintf("file:server_%d?mode=memory&cache=shared", databaseSequence.Add(1))
	db, err := database.Open(dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	issuer, err := auth.NewSessionIssuer(auth.SessionIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to build issuer: %v", err)
	}
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{Issuer: issuer, CookieName: testCookieName})
	if err != nil {
		t.Fatalf("failed to build validator: %v", err)
	}

	accounts, err := users.NewService(users.ServiceConfig{
		Database: db,
		Hasher: func(password string) (string, error) {
			hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
			return string(hashed), err
		},
	})
	if err != nil {
		t.Fatalf("failed to build account service: %v", err)
	}

	store := options.store
	if store == nil {
		gormStore, err := profiles.NewGormStore(db)
		if err != nil {
			t.Fatalf("failed to build store: %v", err)
		}
		store = gormStore
	}
	dispatcher := NewRealtimeDispatcher()
	var clockTicks atomic.Int64
	profileService, err := profiles.NewService(profiles.ServiceConfig{
		Store: store,
		Clock: func() time.Time {
			return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC).Add(time.Duration(clockTicks.Add(1)) * time.Second)
		},
		IDProvider: profiles.NewUUIDProvider(),
		Logger:     logger,
		Notifier:   dispatcher,
	})
	if err != nil {
		t.Fatalf("failed to build profile service: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		SessionIssuer:     issuer,
		SessionValidator:  validator,
		Accounts:          accounts,
		Profiles:          profileService,
		Search:            options.search,
		Limiter:           options.limiter,
		Realtime:          dispatcher,
		HeartbeatInterval: time.Hour,
		Logger:            logger,
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}

	return &testEnvironment{handler: handler, issuer: issuer, dispatcher: dispatcher, logs: logs}
}

func (e *testEnvironment) token(t *testing.T, accountID string) string {
	t.Helper()
	token, _, err := e.issuer.Issue(accountID, accountID+"@example.com")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}

func (e *testEnvironment) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	e.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var decoded map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return decoded
}

func profilePayload(handle string) map[string]any {
	return map[string]any{
		"handle":      handle,
		"displayName": "Ada L.",
		"location":    "Remote",
	}
}

type stubSearch struct {
	result search.Result
	err    error
	query  search.Query
}

func (s *stubSearch) Search(_ context.Context, query search.Query) (search.Result, error) {
	s.query = query
	return s.result, s.err
}

type stubLimiter struct {
	allowed    bool
	retryAfter time.Duration
}

func (s stubLimiter) Allow(context.Context, string, string) (bool, error) {
	return s.allowed, nil
}

func (s stubLimiter) RetryAfter(context.Context, string, string) (time.Duration, error) {
	return s.retryAfter, nil
}

// brokenStore fails every call the way an unreachable database does.
type brokenStore struct{}

func (brokenStore) FindByOwner(context.Context, string) (profiles.Profile, error) {
	return profiles.Profile{}, fmt.Errorf("%w: connection refused", profiles.ErrUnavailable)
}

func (brokenStore) FindByHandle(context.Context, string) (profiles.Profile, error) {
	return profiles.Profile{}, fmt.Errorf("%w: connection refused", profiles.ErrUnavailable)
}

func (brokenStore) Create(context.Context, *profiles.Profile) error {
	return fmt.Errorf("%w: connection refused", profiles.ErrUnavailable)
}

func (brokenStore) Update(context.Context, *profiles.Profile) error {
	return fmt.Errorf("%w: connection refused", profiles.ErrUnavailable)
}

func (brokenStore) Upsert(context.Context, *profiles.Profile) (profiles.Profile, error) {
	return profiles.Profile{}, fmt.Errorf("%w: connection refused", profiles.ErrUnavailable)
}

func (brokenStore) ListAll(context.Context) iter.Seq2[profiles.Profile, error] {
	return func(yield func(profiles.Profile, error) bool) {
		yield(profiles.Profile{}, fmt.Errorf("%w: connection refused", profiles.ErrUnavailable))
	}
}
