package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"docstack/internal/config"
	"docstack/pkg/circuitbreaker"
	"docstack/pkg/logger"
)

func parseDurationOr(s, fallback string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

// SetupRouter wires the middleware chain and routes onto a Gin engine.
func SetupRouter(h *Handler, cfg *config.AppConfig) (*gin.Engine, error) {
	r := gin.Default()

	r.Use(RequestLog(logger.New("api_service", "", "")))
	if cfg.Middleware.RateLimiter.Enabled {
		limiter, err := NewRateLimiter(cfg.Middleware.RateLimiter)
		if err != nil {
			return nil, err
		}
		r.Use(RateLimit(limiter))
	}
	if cfg.Middleware.CircuitBreaker.Enabled {
		breaker := circuitbreaker.New(
			cfg.Middleware.CircuitBreaker.FailureThreshold,
			cfg.Middleware.CircuitBreaker.SuccessThreshold,
			parseDurationOr(cfg.Middleware.CircuitBreaker.Timeout, "30s"),
		)
		r.Use(CircuitBreak(breaker))
	}

	r.GET("/healthz", h.Healthz)

	authMiddleware := AuthMiddleware(cfg.Auth.JwtSecret)
	apiV1 := r.Group("/api/v1")
	apiV1.Use(authMiddleware)
	{
		orgs := apiV1.Group("/orgs")
		{
			orgs.POST("", h.CreateOrganization)
			orgs.GET("/:orgId", h.GetOrganization)
			orgs.POST("/:orgId/members", h.AddMember)
			orgs.POST("/:orgId/collections", h.CreateCollection)
			orgs.GET("/:orgId/collections", h.ListCollections)
			orgs.POST("/:orgId/chats", h.CreateChat)
			orgs.GET("/:orgId/chats", h.ListChats)
		}

		apiV1.PATCH("/memberships/:membershipId", h.SetMembershipStatus)

		collections := apiV1.Group("/collections")
		{
			collections.GET("/:collectionId", h.GetCollection)
			collections.GET("/:collectionId/stats", h.GetCollectionStats)
			collections.POST("/:collectionId/documents", h.UploadDocument)
			collections.GET("/:collectionId/documents", h.ListDocuments)
			collections.GET("/:collectionId/documents/:documentId", h.GetDocument)
			collections.POST("/:collectionId/documents/:documentId/index", h.ReindexDocument)
		}

		chats := apiV1.Group("/chats")
		{
			chats.GET("/:chatId", h.GetChat)
			chats.DELETE("/:chatId", h.DeleteChat)
			chats.GET("/:chatId/messages", h.ListMessages)
			chats.POST("/:chatId/messages", h.Ask)
			chats.GET("/:chatId/messages/:messageId/citations", h.ListCitations)
		}
	}

	return r, nil
}
