package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/taskhive/backend/internal/model"
	"github.com/taskhive/backend/internal/service"
)

const authUserKey = "auth_user"

// RequireAuth extracts the access token from its cookie, classifies
// the failure mode, and attaches the resolved user to the context.
// Every rejection is a 401 with a machine-readable code so the client
// can branch deterministically.
func RequireAuth(svc *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		accessToken, err := c.Cookie(accessCookieName)
		if err != nil || accessToken == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, model.ErrorResponse{
				Message: "Access token not provided",
				Code:    model.CodeAccessTokenMissing,
			})
			return
		}

		user, err := svc.AuthenticateAccessToken(c.Request.Context(), accessToken)
		if err != nil {
			c.Abort()
			writeAuthError(c, err)
			return
		}

		c.Set(authUserKey, user)
		c.Next()
	}
}

func GetAuthUser(c *gin.Context) *model.SafeUser {
	if value, ok := c.Get(authUserKey); ok {
		if user, ok := value.(*model.SafeUser); ok {
			return user
		}
	}
	return nil
}

// CORSMiddleware allows the configured origins with credentials, which
// the cookie-based auth flow depends on.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	originMap := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		originMap[trimmed] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			if _, ok := originMap[origin]; ok {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
				c.Header("Access-Control-Allow-Credentials", "true")
				c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")
				c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
