package middleware

import (
	"context"
	"net/http"

	"github.com/allclear/allclear/backend/go-services/internal/database"
	"github.com/gin-gonic/gin"
)

// StoreSelector picks the database target for a request context.
type StoreSelector interface {
	Select(ctx context.Context, readOnly bool) (context.Context, database.Handle)
}

// StoreRouting sends safe methods to the replica and everything else to the primary.
func StoreRouting(sel StoreSelector) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, _ := sel.Select(c.Request.Context(), readOnly(c.Request.Method))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func readOnly(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
