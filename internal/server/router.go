package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/shipyard/internal/auth"
	"github.com/MarcoPoloResearchLab/shipyard/internal/profiles"
	"github.com/MarcoPoloResearchLab/shipyard/internal/search"
	"github.com/MarcoPoloResearchLab/shipyard/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	accountIDContextKey      = "shipyard_account_id"
	defaultHeartbeatInterval = 25 * time.Second
	profileWriteAction       = "profile_write"
)

var (
	errMissingSessionIssuer    = errors.New("session issuer dependency required")
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingAccountService   = errors.New("account service dependency required")
	errMissingProfileService   = errors.New("profile service dependency required")
)

// AccountService registers and authenticates accounts.
type AccountService interface {
	SignUp(ctx context.Context, request users.SignUpRequest) (users.Account, error)
	Authenticate(ctx context.Context, email string, password string) (users.Account, error)
	Get(ctx context.Context, accountID string) (users.Account, error)
}

// SearchIndex answers full-text directory queries.
type SearchIndex interface {
	Search(ctx context.Context, query search.Query) (search.Result, error)
}

// WriteLimiter throttles profile writes per account.
type WriteLimiter interface {
	Allow(ctx context.Context, subject string, action string) (bool, error)
	RetryAfter(ctx context.Context, subject string, action string) (time.Duration, error)
}

// Dependencies wires the HTTP surface. Search, Limiter and Realtime are optional.
type Dependencies struct {
	SessionIssuer     *auth.SessionIssuer
	SessionValidator  *auth.SessionValidator
	Accounts          AccountService
	Profiles          *profiles.Service
	Search            SearchIndex
	Limiter           WriteLimiter
	Realtime          *RealtimeDispatcher
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

// NewHTTPHandler builds the gin router.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.SessionIssuer == nil {
		return nil, errMissingSessionIssuer
	}
	if deps.SessionValidator == nil {
		return nil, errMissingSessionValidator
	}
	if deps.Accounts == nil {
		return nil, errMissingAccountService
	}
	if deps.Profiles == nil {
		return nil, errMissingProfileService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		issuer:    deps.SessionIssuer,
		sessions:  deps.SessionValidator,
		accounts:  deps.Accounts,
		profiles:  deps.Profiles,
		search:    deps.Search,
		limiter:   deps.Limiter,
		realtime:  deps.Realtime,
		heartbeat: heartbeat,
		logger:    logger,
	}

	router.POST("/auth/signup", handler.handleSignUp)
	router.POST("/auth/login", handler.handleLogin)
	router.POST("/auth/logout", handler.handleLogout)
	router.GET("/auth/session", handler.authorizeRequest, handler.handleSession)

	router.GET("/profiles", handler.handleListProfiles)
	router.GET("/profiles/search", handler.handleSearchProfiles)
	router.GET("/profiles/stream", handler.handleProfileStream)

	protected := router.Group("/profiles")
	protected.Use(handler.authorizeRequest)
	protected.GET("/me", handler.handleGetOwnProfile)
	protected.POST("", handler.limitWrites, handler.handleCreateProfile)
	protected.PUT("/me", handler.limitWrites, handler.handleUpdateProfile)
	protected.PATCH("/me", handler.limitWrites, handler.handleUpsertProfile)

	router.GET("/profiles/:handle", handler.handleGetProfileByHandle)

	return router, nil
}

type httpHandler struct {
	issuer    *auth.SessionIssuer
	sessions  *auth.SessionValidator
	accounts  AccountService
	profiles  *profiles.Service
	search    SearchIndex
	limiter   WriteLimiter
	realtime  *RealtimeDispatcher
	heartbeat time.Duration
	logger    *zap.Logger
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Origin", "Accept"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = allowedOrigins
	}
	return cors.New(config)
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) || errors.Is(err, auth.ErrMissingSessionToken) {
			h.logger.Info("session validation failed", zap.Error(err))
		} else {
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(accountIDContextKey, claims.AccountID())
	c.Next()
}

func (h *httpHandler) limitWrites(c *gin.Context) {
	if h.limiter == nil {
		c.Next()
		return
	}
	accountID := c.GetString(accountIDContextKey)
	ctx := c.Request.Context()
	allowed, err := h.limiter.Allow(ctx, accountID, profileWriteAction)
	if err != nil {
		h.logger.Warn("rate limit check failed", zap.String("account_id", accountID), zap.Error(err))
		c.Next()
		return
	}
	if !allowed {
		if wait, err := h.limiter.RetryAfter(ctx, accountID, profileWriteAction); err == nil && wait > 0 {
			c.Header("Retry-After", formatSeconds(wait))
		}
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
		return
	}
	c.Next()
}
