package router

import (
	"langschool_backend/internal/handlers"
	"langschool_backend/internal/middleware"
	"langschool_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// SetupPublicOfferingRoutes sets up the public catalogue routes.
func SetupPublicOfferingRoutes(apiGroup *gin.RouterGroup, offeringHandler *handlers.OfferingHandler) {
	offeringRoutes := apiGroup.Group("/offerings")
	{
		offeringRoutes.GET("", offeringHandler.ListOfferings)
		offeringRoutes.GET("/:slug", offeringHandler.GetOfferingBySlug)
	}
}

// SetupContactFormRoutes sets up the public contact form route.
func SetupContactFormRoutes(apiGroup *gin.RouterGroup, contactHandler *handlers.ContactHandler) {
	apiGroup.POST("/contact-form", contactHandler.SubmitContactForm)
}

// SetupOperatorOfferingRoutes sets up tax rate, offering and price management.
func SetupOperatorOfferingRoutes(authenticatedGroup *gin.RouterGroup, offeringHandler *handlers.OfferingHandler) {
	operator := authenticatedGroup.Group("")
	operator.Use(middleware.RoleAuthMiddleware(utils.RoleAdmin, utils.RoleStaff))
	{
		operator.POST("/tax-rates", offeringHandler.CreateTaxRate)
		operator.POST("/offerings", offeringHandler.CreateOffering)
		operator.POST("/offerings/:id/prices", offeringHandler.AddLineItem)
		operator.DELETE("/offerings/:id/prices/:priceId", offeringHandler.DeleteLineItem)
		operator.POST("/offerings/:id/price-summary", offeringHandler.RecomputePriceSummary)
		operator.POST("/price-summaries/recompute", offeringHandler.RecomputeAllPriceSummaries)
	}
}

// SetupContactRoutes sets up the authenticated contact routes.
func SetupContactRoutes(authenticatedGroup *gin.RouterGroup, contactHandler *handlers.ContactHandler) {
	contactRoutes := authenticatedGroup.Group("/contacts")
	{
		contactRoutes.GET("/me", contactHandler.GetMyContact)
		contactRoutes.PUT("/me", contactHandler.UpdateMyContactNames)
		contactRoutes.GET("/:id", middleware.RoleAuthMiddleware(utils.RoleAdmin, utils.RoleStaff), contactHandler.GetContactByID)
	}
}

// SetupAccountEventRoutes sets up the routes called by the account service.
func SetupAccountEventRoutes(accountGroup *gin.RouterGroup, accountHandler *handlers.AccountEventHandler) {
	accountGroup.Use(middleware.RoleAuthMiddleware(utils.RoleService, utils.RoleAdmin))
	{
		accountGroup.POST("/:id/created", accountHandler.AccountCreated)
		accountGroup.POST("/:id/email-changed", accountHandler.AccountEmailChanged)
	}
}
