package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/pesio-ai/be-p2p-workflow/internal/client"
	"github.com/pesio-ai/be-p2p-workflow/internal/config"
	"github.com/pesio-ai/be-p2p-workflow/internal/handler"
	"github.com/pesio-ai/be-p2p-workflow/internal/logger"
	"github.com/pesio-ai/be-p2p-workflow/internal/reasoning"
	"github.com/pesio-ai/be-p2p-workflow/internal/repository"
	"github.com/pesio-ai/be-p2p-workflow/internal/scheduler"
	"github.com/pesio-ai/be-p2p-workflow/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.Service.LogLevel,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting P2P Workflow Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Approval policies and analysis thresholds
	policies := service.DefaultPolicies()
	var reasoningOpts []reasoning.Option
	if cfg.Policies.File != "" {
		file, err := config.LoadPolicyFile(cfg.Policies.File)
		if err != nil {
			log.Fatal().Err(err).Str("file", cfg.Policies.File).Msg("Failed to load policy file")
		}
		policies = file.Policies
		if file.Thresholds != nil {
			reasoningOpts = append(reasoningOpts, reasoning.WithThresholds(*file.Thresholds))
		}
	}
	resolver, err := service.NewApprovalResolver(policies)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid approval policies")
	}
	log.Info().Int("policies", len(policies)).Msg("Approval policies loaded")

	workflowOpts := []service.Option{}

	// Audit log (optional)
	if cfg.Database.URL != "" {
		poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid DATABASE_URL")
		}
		poolCfg.MaxConns = cfg.Database.MaxConns
		db, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()

		auditRepo := repository.NewAuditRepository(db)
		if err := auditRepo.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to prepare audit schema")
		}
		workflowOpts = append(workflowOpts, service.WithAuditSink(auditRepo), service.WithAuditReader(auditRepo))
		log.Info().Msg("Database connection established")
	}

	// Workflow events (optional)
	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name(cfg.Service.Name))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer nc.Drain()

		workflowOpts = append(workflowOpts, service.WithEventPublisher(client.NewNotificationPublisher(nc, log.Logger)))
		log.Info().Str("url", cfg.NATS.URL).Msg("NATS connection established")
	}

	workflowService := service.NewWorkflowService(resolver, log, workflowOpts...)

	analysisOpts := []service.AnalysisOption{service.WithReasoningOptions(reasoningOpts...)}

	// Report cache (optional)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unreachable, report cache calls will fail open")
		}
		analysisOpts = append(analysisOpts, service.WithReportCache(repository.NewRedisReportCache(rdb, cfg.Redis.TTL)))
	}

	analysisService := service.NewAnalysisService(workflowService, log, analysisOpts...)

	// Overdue invoice sweep
	overdue, err := scheduler.NewOverdueScheduler(workflowService, cfg.Scheduler.OverdueSpec, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid OVERDUE_SCHEDULE")
	}
	if err := overdue.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start overdue scheduler")
	}

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(workflowService, analysisService, log)
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})
	httpHandler.RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler.Middleware(log.Logger, cfg.Server.WriteTimeout)(handler.CORS(cfg.Server.AllowedOrigins)(mux)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout + time.Second,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Start gRPC server
	grpcHandler := handler.NewGRPCHandler(workflowService, analysisService, log.Logger)

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(handler.LoggingInterceptor(log.Logger)))
	handler.RegisterAnalysisServiceServer(grpcServer, grpcHandler)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer) // Enable reflection for debugging

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create gRPC listener")
	}

	go func() {
		log.Info().Int("port", cfg.Server.GRPCPort).Msg("Starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Error().Err(err).Msg("gRPC server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	healthServer.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// Stop gRPC server gracefully
	grpcServer.GracefulStop()
	overdue.Stop(shutdownCtx)

	log.Info().Msg("Server stopped")
}
