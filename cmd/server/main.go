package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/eldor47/glucosnap/auth"
	"github.com/eldor47/glucosnap/gate"
	"github.com/eldor47/glucosnap/internal/config"
	"github.com/eldor47/glucosnap/internal/db"
	"github.com/eldor47/glucosnap/server"
	"github.com/eldor47/glucosnap/token"
	tokenpostgres "github.com/eldor47/glucosnap/token/postgres"
	tokenrepofake "github.com/eldor47/glucosnap/token/repofake"
	"github.com/eldor47/glucosnap/users"
	userspostgres "github.com/eldor47/glucosnap/users/postgres"
	usersrepofake "github.com/eldor47/glucosnap/users/repofake"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
	log.Info().Msg("server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	cfg := config.New()
	if err := cfg.LoadDotEnv(os.Getwd); err != nil {
		return fmt.Errorf("loading .env: %w", err)
	}
	cfg.LoadEnv(os.Getenv)
	if err := cfg.ParseFlags(os.Args[1:]); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg)
	displayAppName(cfg.AppName)

	ctx := context.Background()

	var userRepo users.Repo
	var refreshRepo token.Repo
	if cfg.DatabaseDSN != "" {
		pool, err := db.ConnectAndMigrate(ctx, cfg.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer pool.Close()
		userRepo = userspostgres.NewUserRepo(pool)
		refreshRepo = tokenpostgres.NewRefreshTokenRepo(pool)
		logger.Info().Msg("using postgres repositories")
	} else {
		userRepo = usersrepofake.NewFakeUserRepo()
		refreshRepo = tokenrepofake.NewFakeRefreshTokenRepo()
		logger.Warn().Msg("no DATABASE_URI set, using in-memory repositories")
	}

	tokenManager := token.NewManager(
		cfg.SecretKey, cfg.Issuer, cfg.Audience, cfg.ClientID, refreshRepo,
		token.WithTokenExpiry(cfg.AccessTokenTTL, cfg.RefreshTokenTTL),
	)

	authOptions := []auth.Option{auth.WithLogger(logger)}
	verifiers := []gate.Verifier{
		gate.NewJWTVerifier(cfg.SecretKey, cfg.Issuer, cfg.Audience),
	}
	if len(cfg.GoogleClientIDs) > 0 {
		federatedVerifier, err := gate.NewFederatedVerifier(ctx, cfg.GoogleIssuer, cfg.GoogleClientIDs)
		if err != nil {
			return fmt.Errorf("federated verifier: %w", err)
		}
		authOptions = append(authOptions, auth.WithFederatedVerifier(federatedVerifier))
		verifiers = append(verifiers, federatedVerifier)
	}

	authService, err := auth.NewService(userRepo, tokenManager, authOptions...)
	if err != nil {
		return err
	}

	g := gate.New(verifiers,
		gate.WithLogger(logger),
		gate.WithCache(gate.NewResultCache(0)),
	)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.New(cfg, authService, g, userRepo, logger),
	}

	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("listen failed")
		}
	}()

	waitForStopSignal()
	return shutdown(srv)
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	if cfg.Environment == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	log.Logger = logger
	return logger
}

func displayAppName(appName string) {
	banner := figure.NewFigure(appName, "", true)
	banner.Print()
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
