package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/documenso/documenso-sub011/internal/app"
	iauth "github.com/documenso/documenso-sub011/internal/auth"
	"github.com/documenso/documenso-sub011/internal/handlers"
	"github.com/documenso/documenso-sub011/internal/middleware"
	"github.com/documenso/documenso-sub011/internal/services"
)

// Dependencies carries everything the router needs wired up front.
type Dependencies struct {
	DB       *gorm.DB
	Config   *app.Config
	Sessions *iauth.SessionService

	Envelopes *services.EnvelopeService
	Sealer    *services.SealService
	Signing   *services.SigningService
	Direct    *services.DirectTemplateService
	Audit     *services.AuditService
	Gateway   *services.TokenGateway
}

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session service must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())
	if rl := deps.Config.Server.RateLimit; rl.Enabled {
		r.Use(middleware.RateLimit(rl.MaxRequests, rl.Window))
	}

	// Health endpoint (public)
	health := handlers.Health(deps.DB)
	r.GET("/health", health)
	r.GET("/api/health", health)

	authHandler, err := handlers.NewAuthHandler(deps.DB, deps.Sessions)
	if err != nil {
		return nil, err
	}
	envelopeHandler, err := handlers.NewEnvelopeHandler(deps.Envelopes, deps.Sealer)
	if err != nil {
		return nil, err
	}
	signingHandler, err := handlers.NewSigningHandler(deps.Gateway, deps.Signing)
	if err != nil {
		return nil, err
	}
	directHandler, err := handlers.NewDirectTemplateHandler(deps.Direct)
	if err != nil {
		return nil, err
	}
	auditHandler, err := handlers.NewAuditHandler(deps.Envelopes, deps.Audit)
	if err != nil {
		return nil, err
	}

	// Public auth routes
	auth := r.Group("/api/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
	}

	// Owner API: everything here is scoped to the session user.
	owner := r.Group("/api", middleware.RequireUser(deps.Sessions))
	{
		owner.GET("/auth/me", authHandler.Me)

		envelopes := owner.Group("/envelopes")
		{
			envelopes.POST("", envelopeHandler.Create)
			envelopes.GET("/:id", envelopeHandler.Get)
			envelopes.POST("/:id/distribute", envelopeHandler.Distribute)
			envelopes.POST("/:id/reseal", envelopeHandler.Reseal)
			envelopes.POST("/:id/recipients", envelopeHandler.AddRecipient)
			envelopes.POST("/:id/fields", envelopeHandler.AddField)
			envelopes.DELETE("/:id", envelopeHandler.Delete)
			envelopes.POST("/:id/direct-link", envelopeHandler.EnableDirectLink)
			envelopes.DELETE("/:id/direct-link", envelopeHandler.DisableDirectLink)
			envelopes.GET("/:id/audit", auditHandler.List)
		}
	}

	// Participant API: the token in the URL is the session. A logged-in
	// session is attached when present so ACCOUNT auth checks can pass.
	sign := r.Group("/api/sign", middleware.OptionalUser(deps.Sessions))
	{
		sign.GET("/:token", signingHandler.View)
		sign.POST("/:token/fields/:field_id", signingHandler.SignField)
		sign.DELETE("/:token/fields/:field_id", signingHandler.UnsignField)
		sign.POST("/:token/complete", signingHandler.Complete)
		sign.POST("/:token/reject", signingHandler.Reject)
	}

	// Direct template entry point (anonymous)
	r.POST("/api/direct/:token", middleware.OptionalUser(deps.Sessions), directHandler.Use)

	// Metrics endpoint
	if deps.Config.Monitoring.Prometheus.Enabled {
		endpoint := deps.Config.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
