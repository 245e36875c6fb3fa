package middleware

import (
	"net/http"
	"strings"

	"github.com/allclear/allclear/backend/go-services/internal/apperr"
	"github.com/allclear/allclear/backend/go-services/internal/authz"
	"github.com/allclear/allclear/backend/go-services/pkg/logger"
	"github.com/gin-gonic/gin"
)

// SessionOptions configures SessionMiddleware.
type SessionOptions struct {
	// Header carries the session id.
	Header string
	// Public paths may be called without a session.
	Public []string
	// PublicPrefixes are path prefixes that may be called without a session.
	PublicPrefixes []string
	// RegisterPath only accepts registration sessions.
	RegisterPath string
}

func (o SessionOptions) public(path string) bool {
	for _, p := range o.Public {
		if path == p {
			return true
		}
	}
	for _, p := range o.PublicPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// SessionMiddleware resolves the session header and binds the session to the request context.
//
// Requests without a header are rejected unless the path is public. The
// register path requires a registration session; every other non-public path
// requires a session that is not a registration session.
func SessionMiddleware(gate *authz.Gate, opts SessionOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		id := strings.TrimSpace(c.GetHeader(opts.Header))
		if id == "" {
			if !opts.public(path) {
				AbortWithError(c, apperr.NotAuthenticated("Session ID is required."))
				return
			}
			c.Next()
			return
		}

		ctx, s, err := gate.Bind(c.Request.Context(), id)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.Request = c.Request.WithContext(ctx)

		switch {
		case path == opts.RegisterPath:
			if !s.IsRegistration() {
				AbortWithError(c, apperr.NotAuthenticated("Requires a Registration Session."))
				return
			}
		case s.IsRegistration() && !opts.public(path):
			AbortWithError(c, apperr.NotAuthenticated("Requires a Non-registration Session."))
			return
		}
		c.Next()
	}
}

// AbortWithError writes err as a JSON error with the status of its class.
// Server-side failures are logged and reported without detail.
func AbortWithError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		logger.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		msg = http.StatusText(status)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
