package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/otklabs/otk-auth/internal/namespace"
)

const ginNamespaceContextKey = "namespaceContext"

type namespaceContextKey struct{}

// Namespace resolves the :ns path parameter and stores the namespace context
// in both Gin and request contexts. Unknown tags abort with 404 before any
// body validation runs.
func Namespace(resolver *namespace.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		nsCtx, ok := resolver.Resolve(c.Param("ns"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Invalid namespace"})
			return
		}

		ctx := context.WithValue(c.Request.Context(), namespaceContextKey{}, nsCtx)
		c.Request = c.Request.WithContext(ctx)
		c.Set(ginNamespaceContextKey, nsCtx)

		c.Next()
	}
}

// GetNamespaceContext extracts the resolved namespace from a Gin context.
func GetNamespaceContext(c *gin.Context) (*namespace.Context, bool) {
	value, ok := c.Get(ginNamespaceContextKey)
	if !ok {
		return nil, false
	}
	nsCtx, ok := value.(*namespace.Context)
	return nsCtx, ok
}

// NamespaceFromContext extracts the namespace from a standard context.
func NamespaceFromContext(ctx context.Context) (*namespace.Context, bool) {
	value := ctx.Value(namespaceContextKey{})
	if value == nil {
		return nil, false
	}
	nsCtx, ok := value.(*namespace.Context)
	return nsCtx, ok
}
