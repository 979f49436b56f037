package router

import (
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/orderdesk-backend/internal/config"
	"github.com/ignatzorin/orderdesk-backend/internal/http/handlers"
	"github.com/ignatzorin/orderdesk-backend/internal/http/middleware"
	"github.com/ignatzorin/orderdesk-backend/internal/models"
)

// Handlers - набор хэндлеров, из которых собирается роутер.
type Handlers struct {
	Health        *handlers.HealthHandler
	Jobs          *handlers.JobHandler
	Payments      *handlers.PaymentHandler
	Gateway       *handlers.GatewayHandler
	Invoices      *handlers.InvoiceHandler
	Notifications *handlers.NotificationHandler
	Ledger        *handlers.LedgerHandler
}

func SetupRouter(cfg *config.Config, h Handlers, tokens middleware.AccessTokenParser) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", h.Health.Health)

	api := r.Group("/api")
	auth := middleware.AuthMiddleware(tokens)
	adminOnly := middleware.RequireRole(models.RoleAdmin)

	jobs := api.Group("/jobs", auth)
	{
		jobs.POST("", middleware.RequireRole(models.RoleClient, models.RoleAdmin), h.Jobs.CreateJob)
		jobs.GET("", h.Jobs.ListJobs)
		jobs.GET("/:id", middleware.UUIDValidator("id"), h.Jobs.GetJob)
		jobs.PATCH("/:id/status", middleware.UUIDValidator("id"), h.Jobs.UpdateStatus)
		jobs.PATCH("/:id/approve", middleware.UUIDValidator("id"), adminOnly, h.Jobs.Approve)
		jobs.PATCH("/:id/assign", middleware.UUIDValidator("id"), adminOnly, h.Jobs.Assign)
		jobs.POST("/:id/bids", middleware.UUIDValidator("id"), middleware.RequireRole(models.RoleFreelancer), h.Jobs.PlaceBid)
		jobs.GET("/:id/bids", middleware.UUIDValidator("id"), h.Jobs.ListBids)
		jobs.GET("/:id/attachments", middleware.UUIDValidator("id"), h.Jobs.ListAttachments)
		jobs.GET("/:id/payments", middleware.UUIDValidator("id"), h.Payments.ListJobPayments)
	}

	payments := api.Group("/payments", auth)
	{
		payments.GET("/:id", middleware.UUIDValidator("id"), h.Payments.GetPayment)
		payments.PATCH("/:id/confirm", middleware.UUIDValidator("id"), adminOnly, h.Payments.Confirm)
	}

	// Публичные callback'и шлюзов и клиентские вызовы под общим лимитом.
	gateway := api.Group("/payment-gateway", middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod))
	{
		gateway.POST("/callback", h.Gateway.Callback)
		gateway.POST("/card/webhook", h.Gateway.CardWebhook)

		gateway.POST("/initiate", auth, h.Gateway.Initiate)
		gateway.POST("/query", auth, h.Gateway.Query)
		gateway.POST("/card/verify", auth, h.Gateway.VerifyCard)
	}

	invoices := api.Group("/invoices", auth)
	{
		invoices.GET("", h.Invoices.ListInvoices)
		invoices.GET("/:id", middleware.UUIDValidator("id"), h.Invoices.GetInvoice)
	}

	notifications := api.Group("/notifications", auth)
	{
		notifications.GET("", h.Notifications.ListNotifications)
		notifications.GET("/unread/count", h.Notifications.CountUnread)
		notifications.PATCH("/read-all", h.Notifications.MarkAllAsRead)
		notifications.PATCH("/:id/read", middleware.UUIDValidator("id"), h.Notifications.MarkAsRead)
	}

	admin := api.Group("/admin", auth, adminOnly)
	{
		admin.POST("/balances/reconcile", h.Ledger.Reconcile)
	}

	return r
}
