package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"helpdesk-service/internal/cache"
	"helpdesk-service/internal/clients"
	"helpdesk-service/internal/config"
	"helpdesk-service/internal/events"
	"helpdesk-service/internal/handlers"
	"helpdesk-service/internal/jobs"
	"helpdesk-service/internal/middleware"
	"helpdesk-service/internal/permissions"
	"helpdesk-service/internal/policies"
	"helpdesk-service/internal/repository"
	"helpdesk-service/internal/services"
	"helpdesk-service/internal/workflow"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)
	logger.SetLevel(logrus.InfoLevel)

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found, using system environment variables")
	}

	// Initialize configuration
	cfg := config.Load()

	// Initialize database
	db, err := config.InitDB(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database:", err)
	}

	// Initialize permission cache (optional - service works without Redis)
	permCache, err := cache.NewPermissionCache(cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword, cfg.RedisDB, cfg.CacheTTLSeconds)
	if err != nil {
		logger.Warnf("Permission cache unavailable, falling back to database: %v", err)
	}

	// Initialize event publisher (optional - service works without NATS)
	publisher := events.NewPublisher(logger)
	defer publisher.Close()

	// Initialize repositories
	rbacRepo := repository.NewRBACRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	emergencyRepo := repository.NewEmergencyRepository(db)
	ticketsRepo := repository.NewTicketsRepository(db)
	workflowRepo := repository.NewWorkflowRepository(db)

	// Initialize outbound clients
	notifier := clients.NewNotificationClient(cfg.NotificationServiceURL)
	aiClient := clients.NewAIClient(cfg.AIServiceURL)

	// Initialize permission resolution and policies
	permService := permissions.NewService(rbacRepo, emergencyRepo, permCache, logger)
	emergencyService := services.NewEmergencyAccessService(emergencyRepo, rbacRepo, auditRepo, permService, notifier, logger)
	auditWriter := policies.NewAuditWriter(auditRepo, logger)
	ticketPolicy := policies.NewTicketPolicy(permService, emergencyService)
	rolePolicy := policies.NewRolePolicy(permService, emergencyService)

	// Initialize services
	temporalService := services.NewTemporalAccessService(rbacRepo, auditRepo, permService, logger)
	roleService := services.NewRoleService(rbacRepo, auditRepo, permService, rolePolicy, auditWriter, publisher, logger)
	ticketService := services.NewTicketService(ticketsRepo, rbacRepo, auditRepo, ticketPolicy, auditWriter, publisher, cfg.DefaultSLAHours, logger)
	engine := workflow.NewEngine(workflowRepo, ticketsRepo, aiClient, notifier, logger)
	automationService := services.NewAutomationService(workflowRepo, ticketsRepo, engine, publisher, logger)

	// Initialize handlers
	handlers.ConfigurePagination(cfg.DefaultPageSize, cfg.MaxPageSize)
	rbacHandler := handlers.NewRBACHandler(roleService, temporalService, emergencyService, permService, auditRepo, logger)
	ticketsHandler := handlers.NewTicketsHandler(ticketService, logger)
	workflowHandler := handlers.NewWorkflowHandler(workflowRepo, ticketsRepo, auditRepo, engine, logger)
	healthHandler := handlers.NewHealthHandler(db, permCache, publisher, roleService)

	// Start background jobs
	jobCtx, jobCancel := context.WithCancel(context.Background())
	cleanupJob := jobs.NewCleanupJob(temporalService, emergencyService, logger)
	go cleanupJob.Start(jobCtx)

	automationJob := jobs.NewAutomationJob(automationService, cfg.AutoEscalationEnabled, logger)
	if err := automationJob.Start(jobCtx); err != nil {
		logger.Fatalf("Failed to start automation job: %v", err)
	}

	// Initialize Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS())

	// Health check endpoints (no auth required)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	api := router.Group("/api/v1")

	// Break-glass consumption authenticates by token, not JWT
	api.POST("/access/emergency/break-glass/consume", rbacHandler.ConsumeBreakGlass)

	api.Use(middleware.JWTAuth(cfg.JWTSecret))
	rbacMW := middleware.NewRBACMiddleware(permService, auditRepo, logger)

	// Role management endpoints
	{
		api.GET("/roles", rbacMW.RequirePermission("roles.view"), rbacHandler.ListRoles)
		api.PUT("/roles/:roleId/permissions", rbacMW.RequirePermission("roles.manage_permissions"), rbacHandler.SetRolePermissions)
		api.POST("/users/:userId/roles", rbacMW.RequirePermission("roles.assign"), rbacHandler.AssignRole)
		api.DELETE("/users/:userId/roles/:roleId", rbacMW.RequirePermission("roles.revoke"), rbacHandler.RevokeRole)
		api.GET("/users/:userId/permissions", rbacMW.RequireAnyPermission("roles.view", "users.view_all"), rbacHandler.GetEffectivePermissions)
	}

	// Temporal access endpoints
	{
		api.POST("/access/temporal/grants", rbacMW.RequirePermission("roles.assign"), rbacHandler.GrantTemporal)
		api.POST("/access/temporal/requests", rbacHandler.RequestTemporal) // any authenticated user may request
		api.GET("/access/temporal/requests", rbacMW.RequirePermission("roles.assign"), rbacHandler.ListPendingTemporal)
		api.POST("/access/temporal/requests/:requestId/approve", rbacMW.RequirePermission("roles.assign"), rbacHandler.ApproveTemporal)
		api.POST("/access/temporal/requests/:requestId/deny", rbacMW.RequirePermission("roles.assign"), rbacHandler.DenyTemporal)
	}

	// Emergency access endpoints
	{
		api.POST("/access/emergency/break-glass", rbacMW.RequirePermission("emergency.grant"), rbacHandler.GenerateBreakGlass)
		api.POST("/access/emergency/session", rbacHandler.RequestEmergency) // password re-verification is the gate
		api.GET("/access/emergency/stats", rbacMW.RequirePermission("emergency.view_stats"), rbacHandler.EmergencyStats)
	}

	// Audit endpoints
	api.GET("/audit", rbacMW.RequirePermission("audit.view"), rbacHandler.ListAudit)

	// Ticket endpoints; per-ticket scoping happens in the policy layer
	{
		api.POST("/tickets", ticketsHandler.CreateTicket)
		api.GET("/tickets", rbacMW.RequireAnyPermission("tickets.view_all", "tickets.view_department", "tickets.view_own"), ticketsHandler.ListTickets)
		api.GET("/tickets/:ticketId", ticketsHandler.GetTicket)
		api.PATCH("/tickets/:ticketId", ticketsHandler.UpdateTicket)
		api.POST("/tickets/:ticketId/assign", ticketsHandler.AssignTicket)
		api.POST("/tickets/:ticketId/close", ticketsHandler.CloseTicket)
	}

	// Workflow endpoints
	{
		api.POST("/workflows", rbacMW.RequirePermission("workflows.manage"), workflowHandler.CreateWorkflow)
		api.GET("/workflows", rbacMW.RequirePermission("workflows.view"), workflowHandler.ListWorkflows)
		api.GET("/workflows/:workflowId", rbacMW.RequirePermission("workflows.view"), workflowHandler.GetWorkflow)
		api.POST("/workflows/:workflowId/execute", rbacMW.RequirePermission("workflows.execute"), workflowHandler.ExecuteWorkflow)
		api.GET("/executions", rbacMW.RequirePermission("workflows.view"), workflowHandler.ListExecutions)
		api.GET("/executions/:executionId", rbacMW.RequirePermission("workflows.view"), workflowHandler.GetExecution)
		api.POST("/executions/:executionId/cancel", rbacMW.RequirePermission("workflows.execute"), workflowHandler.CancelExecution)
	}

	// Cache administration endpoints
	admin := api.Group("/admin")
	{
		admin.GET("/cache/stats", rbacMW.RequirePermission("admin.cache"), rbacHandler.CacheStats)
		admin.POST("/cache/warm/:userId", rbacMW.RequirePermission("admin.cache"), rbacHandler.WarmCache)
	}

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Infof("Helpdesk service starting on port %s", cfg.Port)
		if err := router.Run(":" + cfg.Port); err != nil {
			logger.Fatal("Failed to start server:", err)
		}
	}()

	// Wait for interrupt signal
	<-quit
	logger.Info("Shutting down server...")

	jobCancel()
	cleanupJob.Stop()
	automationJob.Stop()
	if permCache != nil {
		permCache.Close()
	}

	logger.Info("Server shutdown complete")
}
