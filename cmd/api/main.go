package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/shourk/messaging/backend/internal/auth"
	"github.com/shourk/messaging/backend/internal/config"
	"github.com/shourk/messaging/backend/internal/handler"
	"github.com/shourk/messaging/backend/internal/handler/realtime"
	"github.com/shourk/messaging/backend/internal/model/chat"
	chatService "github.com/shourk/messaging/backend/internal/service/chat"
	"github.com/shourk/messaging/backend/internal/service/dispatch"
	"github.com/shourk/messaging/backend/internal/service/presence"
	"github.com/shourk/messaging/backend/internal/service/session"
	"github.com/shourk/messaging/backend/internal/storage/badgerstore"
	"github.com/shourk/messaging/backend/internal/storage/mongostore"
	"github.com/shourk/messaging/backend/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.Init(cfg.Log.Env, cfg.Log.Level)
	if envErr != nil {
		logger.Debug().Err(envErr).Msg("no .env file, using system environment only")
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

// stores bundles the two store roles behind one backend.
type stores struct {
	messages chat.MessageStore
	sessions chat.SessionSource
	close    func() error
}

func openStores(ctx context.Context, cfg config.StoreConfig, log zerolog.Logger) (stores, error) {
	switch cfg.Driver {
	case config.DriverMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		s, err := mongostore.Connect(connectCtx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return stores{}, err
		}
		if err := s.EnsureIndexes(connectCtx); err != nil {
			log.Warn().Err(err).Msg("could not ensure message indexes")
		}
		log.Info().Str("database", cfg.MongoDatabase).Msg("using mongo store")
		return stores{
			messages: s,
			sessions: s,
			close:    func() error { return s.Close(context.Background()) },
		}, nil
	default:
		s, err := badgerstore.Open(cfg.BadgerPath, log)
		if err != nil {
			return stores{}, err
		}
		log.Info().Str("path", cfg.BadgerPath).Msg("using badger store")
		return stores{messages: s, sessions: s, close: s.Close}, nil
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	st, err := openStores(ctx, cfg.Store, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := st.close(); err != nil {
			logger.Error().Err(err).Msg("close store")
		}
	}()

	registry := presence.NewRegistry()
	dispatcher := dispatch.New(registry, log)
	registry.OnChange(dispatcher.BroadcastPresence)

	chatSvc := chatService.NewService(st.messages, session.NewGuard(st.sessions), dispatcher, registry, log)
	issuer := auth.NewIssuer(cfg.Auth.Secret, cfg.Auth.TokenTTL)

	router := handler.NewRouter(handler.Dependencies{
		ChatService: chatSvc,
		Registry:    registry,
		Verifier:    issuer,
		Realtime: realtime.Options{
			RequireToken:    cfg.Realtime.RequireToken,
			OutboxSize:      cfg.Realtime.OutboxSize,
			FramesPerSecond: cfg.Realtime.FramesPerSecond,
			FrameBurst:      cfg.Realtime.FrameBurst,
		},
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Log:            log,
	})

	return startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) error {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info().Str("addr", addr).Msg("messaging backend listening")
	return runServer(ctx, srv)
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
