package integration_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/shipyard/internal/auth"
	"github.com/MarcoPoloResearchLab/shipyard/internal/database"
	"github.com/MarcoPoloResearchLab/shipyard/internal/profiles"
	"github.com/MarcoPoloResearchLab/shipyard/internal/server"
	"github.com/MarcoPoloResearchLab/shipyard/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	sessionSigningSecret = "integration-secret"
	sessionCookieName    = "shipyard_session"
	jsonContentType      = "application/json"
)

func TestSignUpLoginAndPublishProfile(testContext *testing.T) {
	gin.SetMode(gin.TestMode)

	db, err := database.Open("file:integration?mode=memory&cache=shared", zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}

	issuer, err := auth.NewSessionIssuer(auth.SessionIssuerConfig{
		SigningSecret: []byte(sessionSigningSecret),
		TokenTTL:      time.Hour,
	})
	if err != nil {
		testContext.Fatalf("failed to construct session issuer: %v", err)
	}
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{Issuer: issuer, CookieName: sessionCookieName})
	if err != nil {
		testContext.Fatalf("failed to construct session validator: %v", err)
	}
	accounts, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		testContext.Fatalf("failed to build account service: %v", err)
	}
	store, err := profiles.NewGormStore(db)
	if err != nil {
		testContext.Fatalf("failed to build profile store: %v", err)
	}
	dispatcher := server.NewRealtimeDispatcher()
	profileService, err := profiles.NewService(profiles.ServiceConfig{
		Store:      store,
		IDProvider: profiles.NewUUIDProvider(),
		Logger:     zap.NewNop(),
		Notifier:   dispatcher,
	})
	if err != nil {
		testContext.Fatalf("failed to build profile service: %v", err)
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		SessionIssuer:    issuer,
		SessionValidator: validator,
		Accounts:         accounts,
		Profiles:         profileService,
		Realtime:         dispatcher,
		Logger:           zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}

	httpServer := httptest.NewServer(handler)
	testContext.Cleanup(httpServer.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		testContext.Fatalf("failed to build cookie jar: %v", err)
	}
	client := &http.Client{Jar: jar}

	post := func(method, path string, body any) *http.Response {
		encoded, err := json.Marshal(body)
		if err != nil {
			testContext.Fatalf("failed to encode body: %v", err)
		}
		request, err := http.NewRequest(method, httpServer.URL+path, bytes.NewReader(encoded))
		if err != nil {
			testContext.Fatalf("failed to build request: %v", err)
		}
		request.Header.Set("Content-Type", jsonContentType)
		response, err := client.Do(request)
		if err != nil {
			testContext.Fatalf("%s %s failed: %v", method, path, err)
		}
		testContext.Cleanup(func() {
			_ = response.Body.Close()
		})
		return response
	}
	decode := func(response *http.Response, target any) {
		if err := json.NewDecoder(response.Body).Decode(target); err != nil {
			testContext.Fatalf("failed to decode response: %v", err)
		}
	}

	if response := post(http.MethodPost, "/auth/signup", map[string]string{"email": "Ada@Example.com", "password": "analytical-engine"}); response.StatusCode != http.StatusCreated {
		testContext.Fatalf("unexpected signup status %d", response.StatusCode)
	}
	if response := post(http.MethodPost, "/auth/login", map[string]string{"email": "ada@example.com", "password": "analytical-engine"}); response.StatusCode != http.StatusOK {
		testContext.Fatalf("unexpected login status %d", response.StatusCode)
	}

	profile := map[string]any{
		"username": "ada",
		"fullName": "Ada Lovelace",
		"category": "Desarrollador",
		"skills":   "Rust, Go",
		"location": "London",
		"linkedin": "linkedin.com/in/ada",
	}
	created := post(http.MethodPost, "/profiles", profile)
	if created.StatusCode != http.StatusCreated {
		testContext.Fatalf("unexpected create status %d", created.StatusCode)
	}

	meResponse, err := client.Get(httpServer.URL + "/profiles/me")
	if err != nil {
		testContext.Fatalf("failed to load own profile: %v", err)
	}
	defer meResponse.Body.Close()
	var me struct {
		Exists  bool `json:"exists"`
		Profile struct {
			Handle      string   `json:"handle"`
			Role        string   `json:"role"`
			Tags        []string `json:"tags"`
			LinkedinURL string   `json:"linkedinUrl"`
		} `json:"profile"`
	}
	decode(meResponse, &me)
	if !me.Exists || me.Profile.Handle != "ada" || me.Profile.Role != "Developer" {
		testContext.Fatalf("unexpected own profile %#v", me)
	}
	if len(me.Profile.Tags) != 2 || me.Profile.LinkedinURL != "https://linkedin.com/in/ada" {
		testContext.Fatalf("unexpected normalized fields %#v", me.Profile)
	}

	listResponse, err := http.Get(httpServer.URL + "/profiles?role=Desarrollador&q=lovelace")
	if err != nil {
		testContext.Fatalf("failed to list profiles: %v", err)
	}
	defer listResponse.Body.Close()
	var listing struct {
		Items []struct {
			Handle string `json:"handle"`
		} `json:"items"`
	}
	decode(listResponse, &listing)
	if len(listing.Items) != 1 || listing.Items[0].Handle != "ada" {
		testContext.Fatalf("unexpected directory listing %#v", listing)
	}

	if response := post(http.MethodPost, "/auth/logout", map[string]string{}); response.StatusCode != http.StatusNoContent {
		testContext.Fatalf("unexpected logout status %d", response.StatusCode)
	}
	afterLogout, err := client.Get(httpServer.URL + "/profiles/me")
	if err != nil {
		testContext.Fatalf("failed to query after logout: %v", err)
	}
	defer afterLogout.Body.Close()
	if afterLogout.StatusCode != http.StatusUnauthorized {
		testContext.Fatalf("expected 401 after logout, got %d", afterLogout.StatusCode)
	}
}
