package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"messenger/internal/app/notify"
	chatservice "messenger/internal/app/services/chat"
	"messenger/internal/app/uow"
	domainuser "messenger/internal/domain/user"
	"messenger/internal/infra/broker/kafka"
	"messenger/internal/infra/config"
	mongostore "messenger/internal/infra/db/mongo"
	ginserver "messenger/internal/infra/http/gin"
	"messenger/internal/infra/obs"
	redispresence "messenger/internal/infra/presence/redis"
	"messenger/internal/infra/security"
	"messenger/internal/infra/storage/memory"
	"messenger/internal/realtime"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := obs.NewLogger(getenv("APP_ENV", "dev"))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	app, cleanup, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{
		Ready:       app.ready,
		Connections: app.manager.SessionCount,
	}, app.handlers)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "storage", cfg.StorageMode, "presence", cfg.PresenceMode)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("HTTP server stopped")
}

type application struct {
	handlers ginserver.Handlers
	manager  *realtime.Manager
	ready    func() error
}

func buildApplication(ctx context.Context, cfg config.Config, logger *slog.Logger) (application, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	factory, users, readyChecks, err := buildStorage(ctx, cfg, logger, &cleanups)
	if err != nil {
		cleanup()
		return application{}, nil, err
	}

	presence, err := buildPresence(ctx, cfg, &cleanups)
	if err != nil {
		cleanup()
		return application{}, nil, err
	}

	notifier := buildNotifier(cfg, logger, &cleanups)

	conversationSvc := &chatservice.ConversationService{UoW: factory, Logger: logger}
	messageSvc := &chatservice.MessageService{UoW: factory, Logger: logger, EditWindow: cfg.EditWindow}
	readStateSvc := &chatservice.ReadStateService{UoW: factory, Logger: logger}

	identity := security.JWTResolver{Secret: []byte(cfg.JWTSecret)}

	manager := &realtime.Manager{
		Presence:      presence,
		Router:        realtime.NewRouter(),
		Identity:      identity,
		Conversations: conversationSvc,
		Messages:      messageSvc,
		ReadState:     readStateSvc,
		Notifier:      notifier,
		Logger:        logger,
	}

	authMW := ginserver.AuthMiddleware{Identity: identity, Users: users, Logger: logger}
	handlers := ginserver.Handlers{
		Chat: ginserver.ChatHandler{
			Conversations: conversationSvc,
			Messages:      messageSvc,
			ReadState:     readStateSvc,
			Realtime:      manager,
			Logger:        logger,
		},
		Presence: ginserver.PresenceHandler{
			Presence:  presence,
			ReadState: readStateSvc,
			Logger:    logger,
		},
		WS: &ginserver.WSHandler{
			Manager:          manager,
			Identity:         identity,
			HandshakeTimeout: cfg.HandshakeTimeout,
			Logger:           logger,
		},
		AuthMiddleware: authMW.Handle,
	}

	ready := func() error {
		for _, check := range readyChecks {
			if err := check(); err != nil {
				return err
			}
		}
		return nil
	}
	return application{handlers: handlers, manager: manager, ready: ready}, cleanup, nil
}

func buildStorage(ctx context.Context, cfg config.Config, logger *slog.Logger, cleanups *[]func()) (uow.Factory, domainuser.Reader, []func() error, error) {
	switch cfg.StorageMode {
	case "mongo":
		client, err := mongostore.New(cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, nil, nil, err
		}
		*cleanups = append(*cleanups, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Close(closeCtx)
		})
		conversations := mongostore.NewConversationRepository(client.DB)
		messages := mongostore.NewMessageRepository(client.DB)
		if err := conversations.EnsureIndexes(ctx); err != nil {
			return nil, nil, nil, err
		}
		if err := messages.EnsureIndexes(ctx); err != nil {
			return nil, nil, nil, err
		}
		users := mongostore.NewUserReader(client.DB)
		factory := mongostore.Factory{
			DB:               client.DB,
			ConversationRepo: conversations,
			MessageRepo:      messages,
			UserReader:       users,
		}
		check := func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return client.Ping(pingCtx)
		}
		return factory, users, []func() error{check}, nil
	default:
		users := memory.NewUserDirectory()
		if cfg.UserFixtures != "" {
			if err := loadUserFixtures(cfg.UserFixtures, users); err != nil {
				logger.Warn("user fixtures load failed", "path", cfg.UserFixtures, "error", err)
			}
		}
		factory := memory.Factory{
			ConversationRepo: memory.NewConversationRepository(),
			MessageRepo:      memory.NewMessageRepository(),
			UserReader:       users,
		}
		return factory, users, nil, nil
	}
}

func buildPresence(ctx context.Context, cfg config.Config, cleanups *[]func()) (realtime.PresenceStore, error) {
	if cfg.PresenceMode != "redis" {
		return realtime.NewMemoryPresence(), nil
	}
	store, err := redispresence.New(cfg.RedisURL, cfg.PresenceTTL)
	if err != nil {
		return nil, err
	}
	if err := store.Ping(ctx); err != nil {
		return nil, err
	}
	*cleanups = append(*cleanups, func() { _ = store.Close() })
	return store, nil
}

func buildNotifier(cfg config.Config, logger *slog.Logger, cleanups *[]func()) notify.Notifier {
	if len(cfg.KafkaBrokers) == 0 {
		return notify.LogNotifier{Logger: logger}
	}
	producer, err := kafka.NewProducer(cfg.KafkaBrokers, nil)
	if err != nil {
		logger.Warn("kafka unavailable, falling back to log notifier", "error", err)
		return notify.LogNotifier{Logger: logger}
	}
	*cleanups = append(*cleanups, func() { _ = producer.Close() })
	return &kafka.Notifier{Producer: producer, Topic: cfg.NotifyTopic}
}

func loadUserFixtures(path string, directory *memory.UserDirectory) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var fixtures []struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		Verified  bool   `json:"verified"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := json.Unmarshal(raw, &fixtures); err != nil {
		return err
	}
	for _, f := range fixtures {
		directory.Put(domainuser.User{
			ID:        domainuser.ID(f.ID),
			Name:      f.Name,
			Verified:  f.Verified,
			AvatarURL: f.AvatarURL,
		})
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
