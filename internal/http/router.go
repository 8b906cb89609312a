package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/otklabs/otk-auth/internal/config"
	"github.com/otklabs/otk-auth/internal/http/handler"
	httpmiddleware "github.com/otklabs/otk-auth/internal/http/middleware"
	"github.com/otklabs/otk-auth/internal/middleware"
	"github.com/otklabs/otk-auth/internal/namespace"
)

// NewRouter wires Gin routes and middleware. Namespace resolution applies
// only to the /api/:ns group, so it always runs before body validation and
// never gates /health.
func NewRouter(cfg config.Config, authHandler *handler.AuthHandler, resolver *namespace.Resolver, rateLimiter *middleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/health", authHandler.Health)
	r.GET("/", authHandler.Root)

	api := r.Group("/api/:ns")
	api.Use(httpmiddleware.Namespace(resolver))
	{
		api.POST("/register", authHandler.Register)
		api.POST("/login", authHandler.Login)
		api.POST("/logout", authHandler.Logout)
		api.POST("/verify-otp", authHandler.VerifyOTP)
		api.POST("/resend-otp", authHandler.ResendOTP)
		api.POST("/auth/google", authHandler.GoogleSignIn)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Route not found"})
	})

	return r
}
