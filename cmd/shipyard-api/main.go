package main

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/shipyard/internal/auth"
	"github.com/MarcoPoloResearchLab/shipyard/internal/config"
	"github.com/MarcoPoloResearchLab/shipyard/internal/database"
	"github.com/MarcoPoloResearchLab/shipyard/internal/logging"
	"github.com/MarcoPoloResearchLab/shipyard/internal/profiles"
	"github.com/MarcoPoloResearchLab/shipyard/internal/ratelimit"
	"github.com/MarcoPoloResearchLab/shipyard/internal/search"
	"github.com/MarcoPoloResearchLab/shipyard/internal/server"
	"github.com/MarcoPoloResearchLab/shipyard/internal/users"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
	envFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "shipyard-api",
		Short: "Shipyard profile directory service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Dotenv file loaded before reading the environment")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("allowed-origins", defaults.GetString("http.allowed_origins"), "Comma-separated CORS origins")
	cmd.PersistentFlags().String("database-dsn", defaults.GetString("database.dsn"), "SQLite path or postgres:// DSN")
	cmd.PersistentFlags().Int("session-ttl-minutes", defaults.GetInt("auth.session_ttl_minutes"), "Session lifetime in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().String("redis-address", defaults.GetString("redis.address"), "Redis address for write rate limiting")
	cmd.PersistentFlags().String("meili-host", defaults.GetString("search.meili_host"), "Meilisearch host for profile search")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "http.allowed_origins", "allowed-origins")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "auth.session_ttl_minutes", "session-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "redis.address", "redis-address")
	bindFlag(cmd, "search.meili_host", "meili-host")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.Open(appConfig.DatabaseDSN, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	sessionIssuer, err := auth.NewSessionIssuer(auth.SessionIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		TokenTTL:      appConfig.SessionTTL,
	})
	if err != nil {
		return err
	}
	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		Issuer:     sessionIssuer,
		CookieName: appConfig.CookieName,
	})
	if err != nil {
		return err
	}

	accounts, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		return err
	}

	dispatcher := server.NewRealtimeDispatcher()
	profileStore, err := profiles.NewGormStore(db)
	if err != nil {
		return err
	}
	serviceConfig := profiles.ServiceConfig{
		Store:      profileStore,
		Clock:      time.Now,
		IDProvider: profiles.NewUUIDProvider(),
		Logger:     logger,
		Notifier:   dispatcher,
	}

	dependencies := server.Dependencies{
		SessionIssuer:    sessionIssuer,
		SessionValidator: sessionValidator,
		Accounts:         accounts,
		Realtime:         dispatcher,
		AllowedOrigins:   appConfig.AllowedOrigins,
		Logger:           logger,
	}

	if appConfig.SearchEnabled() {
		index, err := search.Connect(appConfig.MeiliHost, appConfig.MeiliAPIKey, appConfig.SearchIndex, logger)
		if err != nil {
			return err
		}
		if err := index.EnsureSettings(ctx); err != nil {
			logger.Warn("search index settings not applied", zap.Error(err))
		}
		serviceConfig.Indexer = index
		dependencies.Search = index
	}

	if appConfig.RateLimitEnabled() {
		limiter, err := ratelimit.Connect(ctx, appConfig.RedisAddress, appConfig.RateLimitWindow)
		if err != nil {
			return err
		}
		defer limiter.Close()
		dependencies.Limiter = limiter
	}

	profileService, err := profiles.NewService(serviceConfig)
	if err != nil {
		return err
	}
	dependencies.Profiles = profileService

	handler, err := server.NewHTTPHandler(dependencies)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
