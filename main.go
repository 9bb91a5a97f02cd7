package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"alumni-service/internal/auth"
	"alumni-service/internal/config"
	"alumni-service/internal/db"
	grpchealth "alumni-service/internal/grpc"
	"alumni-service/internal/handlers"
	"alumni-service/internal/middleware"
	"alumni-service/internal/observability"
	"alumni-service/internal/rabbitmq"
	"alumni-service/internal/repositories"
	"alumni-service/internal/services"
	"alumni-service/internal/telemetry"
	"alumni-service/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.OTelEndpoint, cfg.ServiceName, cfg.Environment)
	if err != nil {
		log.Printf("tracing disabled: %v", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	database, err := db.Connect(ctx, cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(rabbitmq.Options{URL: cfg.AMQPURL, Exchange: cfg.AMQPExchange, AppID: cfg.ServiceName})
	defer publisher.Close()
	log.Printf("event publisher mode=%s %s", rabbitmq.PublisherMode(publisher), rabbitmq.PublisherNoopReason(publisher))
	audit := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, cfg.ServiceName, cfg.Environment)

	groupRepo := repositories.NewGroupRepo(database)
	postRepo := repositories.NewGroupPostRepo(database)

	hub := ws.NewHub(publisher)
	groupService := services.NewGroupService(groupRepo, postRepo,
		services.WithEvents(publisher),
		services.WithFeed(hub),
		services.WithTimeout(cfg.DBTimeout),
	)

	verifier := auth.NewSupabaseVerifier(cfg.JWTSecret, cfg.JWTAudience, cfg.JWTIssuer)
	groupHandler := handlers.NewGroupHandler(groupService, audit)
	groupWS := ws.NewGroupWebSocketHandler(hub, groupService, verifier)

	router := gin.New()
	router.Use(gin.Recovery(), gin.Logger())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())
	router.Use(handlers.RequestID())

	authMiddleware := middleware.AuthMiddleware(verifier)
	optionalAuth := middleware.OptionalAuthMiddleware(verifier)

	router.POST("/groups", authMiddleware, groupHandler.CreateGroup)
	router.GET("/groups", groupHandler.ListGroups)
	router.GET("/groups/:group_id", optionalAuth, groupHandler.GetGroup)
	router.POST("/groups/:group_id/join", authMiddleware, groupHandler.JoinGroup)
	router.POST("/groups/:group_id/posts", authMiddleware, groupHandler.CreatePost)
	router.GET("/groups/:group_id/posts", authMiddleware, groupHandler.ListPosts)
	router.GET("/groups/:group_id/members", authMiddleware, groupHandler.ListMembers)

	router.GET("/ws/groups/:group_id", groupWS.Handle)

	handlers.RegisterOpsRoutes(router, database)
	handlers.RegisterDebugRoutes(router, audit, cfg.DebugRoutes)

	go groupService.RunOrphanRepair(ctx, cfg.OrphanRepairInterval, cfg.OrphanGroupGrace)

	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("failed to listen on grpc addr %s: %v", cfg.GRPCAddr, err)
	}
	healthServer := grpchealth.NewHealthServer(database, 0)
	go func() {
		if err := healthServer.Serve(ctx, grpcLis); err != nil {
			log.Printf("grpc server error: %v", err)
		}
	}()

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	go func() {
		log.Printf("http server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
}
