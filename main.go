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

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"restaurant-chat/internal/auth"
	"restaurant-chat/internal/chat"
	"restaurant-chat/internal/config"
	"restaurant-chat/internal/db"
	grpcclient "restaurant-chat/internal/grpc"
	"restaurant-chat/internal/handlers"
	"restaurant-chat/internal/logger"
	"restaurant-chat/internal/middleware"
	"restaurant-chat/internal/observability"
	"restaurant-chat/internal/rabbitmq"
	"restaurant-chat/internal/repositories"
	"restaurant-chat/internal/telemetry"
	"restaurant-chat/internal/ws"
)

const serviceName = "restaurant-chat"

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		tp, err := observability.InitTracer(ctx, serviceName, cfg.TracingEndpoint)
		if err != nil {
			log.Warn("tracing disabled", zap.Error(err))
		} else {
			defer func() { _ = tp.Shutdown(context.Background()) }()
		}
	}

	policy, err := chat.ParseMarkReadPolicy(cfg.MarkReadPolicy)
	if err != nil {
		return err
	}

	var database *sqlx.DB
	if cfg.StoreDriver == "postgres" || cfg.DirectoryMode == "postgres" {
		database, err = db.Connect(ctx, cfg.DBDSN, log)
		if err != nil {
			return err
		}
		defer database.Close()
	}

	store, err := buildStore(cfg, database)
	if err != nil {
		return err
	}

	directory, closeDirectory, err := buildDirectory(cfg, database)
	if err != nil {
		return err
	}
	defer closeDirectory()

	verifier, closeVerifier, err := buildVerifier(cfg)
	if err != nil {
		return err
	}
	defer closeVerifier()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, log)
	defer publisher.Close()
	emitter := telemetry.NewEmitter(publisher, serviceName, cfg.Environment, log)

	hub := ws.NewHub(log)
	coordinator := chat.NewCoordinator(store, directory, hub,
		chat.WithMarkReadPolicy(policy),
		chat.WithEvents(emitter),
		chat.WithLogger(log),
	)
	socket := ws.NewChatSocketHandler(hub, coordinator, verifier, emitter, log, cfg.WSSendBuffer)

	router := newRouter(cfg, log, verifier, coordinator, socket, hub)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info("starting server",
		zap.String("port", cfg.Port),
		zap.String("store", cfg.StoreDriver),
		zap.String("auth", cfg.AuthMode),
		zap.String("directory", cfg.DirectoryMode),
		zap.String("mark_read_policy", string(policy)),
		zap.String("publisher", rabbitmq.PublisherMode(publisher)),
		zap.String("publisher_noop_reason", rabbitmq.PublisherNoopReason(publisher)),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newRouter(cfg config.Config, log *zap.Logger, verifier auth.Verifier, coordinator *chat.Coordinator, socket *ws.ChatSocketHandler, hub *ws.Hub) *gin.Engine {
	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(
		gin.Recovery(),
		otelgin.Middleware(serviceName),
		middleware.RequestID(),
		middleware.RequestLogger(log),
		observability.HTTPMetricsMiddleware(),
		cors.New(cors.Config{
			AllowOrigins:     []string{cfg.FrontendURL},
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:     []string{"Authorization", "Content-Type", "X-Request-ID", "X-Device-Id"},
			ExposeHeaders:    []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
	)

	router.GET("/healthz", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", socket.Handle)
	handlers.RegisterDebugRoutes(router, hub, cfg.DebugRoutes)

	api := router.Group("/", middleware.AuthMiddleware(verifier))
	handlers.NewChatHandler(coordinator).Register(api)

	return router
}

func buildStore(cfg config.Config, database *sqlx.DB) (repositories.ChatRepository, error) {
	switch cfg.StoreDriver {
	case "postgres":
		return repositories.NewChatRepo(database), nil
	case "memory":
		return repositories.NewMemoryChatRepo(), nil
	}
	return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
}

func buildDirectory(cfg config.Config, database *sqlx.DB) (repositories.WaiterDirectory, func(), error) {
	switch cfg.DirectoryMode {
	case "postgres":
		return repositories.NewWaiterRepo(database), func() {}, nil
	case "memory":
		return repositories.NewMemoryWaiterDirectory(repositories.ParseWaiters(cfg.DirectoryWaiters)...), func() {}, nil
	case "grpc":
		conn, err := grpcclient.Dial(cfg.DirectoryGRPCAddr)
		if err != nil {
			return nil, nil, fmt.Errorf("dial directory grpc: %w", err)
		}
		return grpcclient.NewDirectoryClient(conn, cfg.GRPCTimeout), func() { _ = conn.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown DIRECTORY_MODE %q", cfg.DirectoryMode)
}

func buildVerifier(cfg config.Config) (auth.Verifier, func(), error) {
	switch cfg.AuthMode {
	case "jwt":
		return auth.NewJWTVerifier(cfg.JWTSecret), func() {}, nil
	case "grpc":
		conn, err := grpcclient.Dial(cfg.AccountGRPCAddr)
		if err != nil {
			return nil, nil, fmt.Errorf("dial account grpc: %w", err)
		}
		return grpcclient.NewAccountClient(conn, cfg.GRPCTimeout), func() { _ = conn.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown AUTH_MODE %q", cfg.AuthMode)
}
