package main

import (
	"os"

	"crm-backend/internal/approval"
	"crm-backend/internal/database"
	"crm-backend/internal/handler"
	"crm-backend/internal/middleware"
	"crm-backend/internal/repository"
	"crm-backend/internal/service"
	"crm-backend/internal/websocket"
	"crm-backend/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// @title           Expense Requisition API
// @version         1.0
// @description     Expense requisition submission and two-stage approval workflow.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	log := logger.FromEnv()
	defer log.Sync()

	if err := godotenv.Load("configs/.env"); err != nil {
		log.Info("No configs/.env file found or error loading it")
	}

	dbHost := os.Getenv("DB_HOST")
	dbPort := os.Getenv("DB_PORT")
	dbUser := os.Getenv("DB_USER")
	dbPassword := os.Getenv("DB_PASSWORD")
	dbName := os.Getenv("DB_NAME")
	dbSslMode := os.Getenv("DB_SSLMODE")

	if dbHost == "" {
		dbHost = "localhost"
	}
	if dbPort == "" {
		dbPort = "5432"
	}
	if dbUser == "" {
		dbUser = "postgres"
	}
	if dbPassword == "" {
		dbPassword = "postgres"
	}
	if dbName == "" {
		dbName = "postgres"
	}
	if dbSslMode == "" {
		dbSslMode = "disable"
	}

	dsn := "postgres://" + dbUser + ":" + dbPassword + "@" + dbHost + ":" + dbPort + "/" + dbName + "?sslmode=" + dbSslMode

	db, err := database.NewConnection(dsn)
	if err != nil {
		log.Fatal("Database connection failed", zap.Error(err))
	}
	log.Info("Connected to PostgreSQL successfully")

	// Set up WebSocket Hub
	wsHub := websocket.NewHub(log)
	go wsHub.Run()

	// Set up dependencies (Repository -> Service -> Handler)
	userRepo := repository.NewUserRepository(db)
	requisitionRepo := repository.NewRequisitionRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	txManager := repository.NewTransactionManager(db)

	engine := approval.NewEngine(approval.PolicyFromEnv())

	userService := service.NewUserService(userRepo)
	requisitionService := service.NewRequisitionService(requisitionRepo, userRepo, auditRepo, txManager, engine, wsHub, log)
	categoryService := service.NewCategoryService(categoryRepo, auditRepo, txManager)
	projectService := service.NewProjectService(projectRepo, auditRepo, txManager)
	auditService := service.NewAuditService(auditRepo)
	reportService := service.NewReportService(db)

	// Initialize Handlers
	userHandler := handler.NewUserHandler(userService)
	requisitionHandler := handler.NewRequisitionHandler(requisitionService)
	categoryHandler := handler.NewCategoryHandler(categoryService)
	projectHandler := handler.NewProjectHandler(projectService)
	auditHandler := handler.NewAuditHandler(auditService)
	reportHandler := handler.NewReportHandler(reportService)

	// Set up Gin Router
	router := gin.Default()

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://127.0.0.1:5173", "http://localhost:5174"} // Frontend URL
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "OK"})
	})

	// WebSocket endpoint
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, middleware.GetJWTSecret())
	})

	// Register API Routes
	userHandler.RegisterRoutes(router.Group(""))
	requisitionHandler.RegisterRoutes(router.Group(""))
	categoryHandler.RegisterRoutes(router.Group(""))
	projectHandler.RegisterRoutes(router.Group(""))
	auditHandler.RegisterRoutes(router.Group(""))
	reportHandler.RegisterRoutes(router.Group(""))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Info("Server listening", zap.String("port", port))
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Server failed", zap.Error(err))
	}
}
