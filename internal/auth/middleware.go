package auth

import (
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	HeaderAPIKey = "X-API-Key"

	// ContextKeyAuthorized is the gin context key mirroring the request context flag.
	ContextKeyAuthorized = "authorized"
)

// Middleware resolves the request credential and attaches the authorization
// flag to the request context. It never aborts: refusing the call is up to
// the handler, which checks the flag before touching any state.
func Middleware(a *Authenticator, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := a.Verify(credentialFrom(c))
		authorized := err == nil
		if err != nil && a.Enabled() {
			logger.Debug("Request not authorized",
				slog.String("path", c.Request.URL.Path),
				slog.String("client_ip", c.ClientIP()),
				slog.Any("error", err),
			)
		}

		c.Set(ContextKeyAuthorized, authorized)
		c.Request = c.Request.WithContext(WithAuthorized(c.Request.Context(), authorized))
		c.Next()
	}
}

func credentialFrom(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return strings.TrimSpace(c.GetHeader(HeaderAPIKey))
}
