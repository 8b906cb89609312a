package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/otklabs/otk-auth/internal/http/middleware"
	"github.com/otklabs/otk-auth/internal/namespace"
	"github.com/otklabs/otk-auth/internal/service"
)

// AuthHandler exposes the namespaced credential endpoints.
type AuthHandler struct {
	Auth     *service.AuthService
	Resolver *namespace.Resolver
}

// NewAuthHandler creates the handler set.
func NewAuthHandler(auth *service.AuthService, resolver *namespace.Resolver) *AuthHandler {
	return &AuthHandler{Auth: auth, Resolver: resolver}
}

// Health reports liveness.
func (h *AuthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Root returns a friendly route listing so the base URL never 404s.
func (h *AuthHandler) Root(c *gin.Context) {
	routes := gin.H{"health": "/health"}
	for _, tag := range h.Resolver.Tags() {
		routes[tag] = gin.H{
			"register": "/api/" + tag + "/register",
			"login":    "/api/" + tag + "/login",
			"logout":   "/api/" + tag + "/logout",
			"google":   "/api/" + tag + "/auth/google",
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "OTK auth service is running",
		"routes":  routes,
	})
}

// Register creates a local account and issues a verification code.
func (h *AuthHandler) Register(c *gin.Context) {
	nsCtx, ok := middleware.GetNamespaceContext(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invalid namespace"})
		return
	}

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
		FullName string `json:"fullName"`
		Fullname string `json:"fullname"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}

	// Clients historically sent the display name under several keys.
	name := req.FullName
	if strings.TrimSpace(name) == "" {
		name = req.Fullname
	}
	if strings.TrimSpace(name) == "" {
		name = req.Name
	}

	result, err := h.Auth.Register(c.Request.Context(), nsCtx, req.Email, req.Password, name)
	if err != nil {
		respondAuthError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// Login authenticates a local account and mints a session token.
func (h *AuthHandler) Login(c *gin.Context) {
	nsCtx, ok := middleware.GetNamespaceContext(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invalid namespace"})
		return
	}

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}

	result, err := h.Auth.Login(c.Request.Context(), nsCtx, req.Email, req.Password)
	if err != nil {
		respondAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Logout acknowledges the request; tokens are stateless.
func (h *AuthHandler) Logout(c *gin.Context) {
	nsCtx, ok := middleware.GetNamespaceContext(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invalid namespace"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": h.Auth.Logout(c.Request.Context(), nsCtx)})
}

// VerifyOTP consumes a verification code and activates the account.
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	nsCtx, ok := middleware.GetNamespaceContext(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invalid namespace"})
		return
	}

	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}

	result, err := h.Auth.VerifyOTP(c.Request.Context(), nsCtx, req.Email, req.Code)
	if err != nil {
		respondAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ResendOTP issues a fresh verification code.
func (h *AuthHandler) ResendOTP(c *gin.Context) {
	nsCtx, ok := middleware.GetNamespaceContext(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invalid namespace"})
		return
	}

	var req struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}

	message, err := h.Auth.ResendOTP(c.Request.Context(), nsCtx, req.Email)
	if err != nil {
		respondAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": message})
}

// GoogleSignIn exchanges a Google identity for an account and session token.
func (h *AuthHandler) GoogleSignIn(c *gin.Context) {
	nsCtx, ok := middleware.GetNamespaceContext(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invalid namespace"})
		return
	}

	var req struct {
		Email    string `json:"email"`
		Name     string `json:"name"`
		GoogleID string `json:"googleId"`
		IDToken  string `json:"idToken"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email from Google profile is required"})
		return
	}

	result, err := h.Auth.GoogleSignIn(c.Request.Context(), nsCtx, service.GoogleSignInInput{
		Email:    req.Email,
		Name:     req.Name,
		GoogleID: req.GoogleID,
		IDToken:  req.IDToken,
	})
	if err != nil {
		respondAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func respondAuthError(c *gin.Context, err error) {
	var authErr *service.AuthError
	if errors.As(err, &authErr) {
		c.JSON(authErr.Status, gin.H{"error": authErr.Message})
		return
	}
	zap.L().Error("unexpected error", zap.Error(err), zap.String("path", c.Request.URL.Path))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}
