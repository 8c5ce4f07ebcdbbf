package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/parley-chat/messaging-platform/internal/bus"
	"github.com/parley-chat/messaging-platform/internal/config"
	"github.com/parley-chat/messaging-platform/internal/handler"
	"github.com/parley-chat/messaging-platform/internal/hub"
	"github.com/parley-chat/messaging-platform/internal/middleware"
	"github.com/parley-chat/messaging-platform/internal/nats"
	"github.com/parley-chat/messaging-platform/internal/service"
	"github.com/parley-chat/messaging-platform/internal/store"
	"github.com/parley-chat/messaging-platform/pkg/logger"
	"github.com/parley-chat/messaging-platform/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting messaging platform",
		zap.String("port", cfg.ServerPort),
		zap.String("nats_url", cfg.NATSURL))

	ctx := context.Background()

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "messaging-platform", cfg.TracingEndpoint)
		if err != nil {
			log.Error("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	st, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	if err := st.Migrate(); err != nil {
		log.Fatal("failed to migrate database", zap.Error(err))
	}

	natsClient, err := nats.Connect(nats.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	var roomBus bus.Bus
	if err != nil {
		// Degrade to single-node fan-out rather than refusing to start.
		log.Error("failed to connect to NATS, using in-process bus", zap.Error(err))
		roomBus = bus.NewLocal()
	} else {
		defer natsClient.Close()
		roomBus = nats.NewRoomBus(natsClient)
	}

	authority := service.NewAuthority(st)
	messageService := service.NewMessageService(st, authority, roomBus, log)
	conversationService := service.NewConversationService(st, authority, messageService, roomBus, log)
	userService := service.NewUserService(st)

	roomHub := hub.New(authority, roomBus, log)
	if err := roomHub.Start(); err != nil {
		log.Fatal("failed to start hub", zap.Error(err))
	}
	defer roomHub.Stop()

	authHandler := handler.NewAuthHandler(userService, cfg.JWTSecret, cfg.SessionTTL, cfg.SecureCookies)
	conversationHandler := handler.NewConversationHandler(conversationService)
	messageHandler := handler.NewMessageHandler(messageService)
	healthHandler := handler.NewHealthHandler(st, natsClient)
	wsHandler := handler.NewWSHandler(roomHub, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS())
	r.Use(middleware.Logging(log))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", conversationHandler.List)
			r.Post("/", conversationHandler.CreateGroup)
			r.Post("/direct", conversationHandler.CreateDirect)
			r.Route("/{conversationID}", func(r chi.Router) {
				r.Get("/", conversationHandler.Get)
				r.Patch("/", conversationHandler.Update)
				r.Delete("/", conversationHandler.Delete)
				r.Post("/members", conversationHandler.AddMembers)
				r.Delete("/members", conversationHandler.RemoveMember)
				r.Patch("/members/role", conversationHandler.ChangeRole)
			})
		})

		r.Route("/messages", func(r chi.Router) {
			r.Post("/", messageHandler.Send)
			r.Get("/{conversationID}", messageHandler.Page)
			r.Delete("/{messageID}", messageHandler.Delete)
		})

		r.Get("/ws", wsHandler.Serve)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
	}

	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", zap.Error(err))
	}

	log.Info("server stopped")
}
