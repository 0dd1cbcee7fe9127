package router

import (
	"net/http"

	"langschool_backend/internal/handlers"
	"langschool_backend/internal/metrics"
	"langschool_backend/internal/middleware"
	"langschool_backend/internal/services"
	"langschool_backend/pkg/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Dependencies are the services and settings the HTTP layer is built from.
type Dependencies struct {
	OfferingService    services.OfferingService
	ContactService     services.ContactService
	Metrics            *metrics.Metrics
	JWTSecret          []byte
	SafeIPs            []string
	CORSAllowedOrigins []string
}

// New builds the gin engine with global middleware, health and metrics
// endpoints, and all API routes.
func New(deps Dependencies) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestID())
	engine.Use(utils.GinLogger())
	engine.Use(deps.Metrics.GinMiddleware())

	config := cors.DefaultConfig()
	config.AllowOrigins = deps.CORSAllowedOrigins
	config.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Request-ID"}
	config.AllowCredentials = true
	engine.Use(cors.New(config))

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	engine.GET("/metrics", gin.WrapH(metrics.Handler()))

	Setup(engine, deps)
	return engine
}

// Setup initializes the routing for the application.
func Setup(engine *gin.Engine, deps Dependencies) {
	offeringHandler := handlers.NewOfferingHandler(deps.OfferingService)
	contactHandler := handlers.NewContactHandler(deps.ContactService)
	accountHandler := handlers.NewAccountEventHandler(deps.ContactService)

	apiV1 := engine.Group("/api/v1")

	// Public routes
	SetupPublicOfferingRoutes(apiV1, offeringHandler)
	SetupContactFormRoutes(apiV1, contactHandler)

	authenticated := apiV1.Group("")
	authenticated.Use(middleware.AuthMiddleware(deps.JWTSecret))
	{
		SetupOperatorOfferingRoutes(authenticated, offeringHandler)
		SetupContactRoutes(authenticated, contactHandler)
	}

	accountEvents := apiV1.Group("/accounts")
	accountEvents.Use(middleware.SafeIPsMiddleware(deps.SafeIPs), middleware.AuthMiddleware(deps.JWTSecret))
	SetupAccountEventRoutes(accountEvents, accountHandler)
}
