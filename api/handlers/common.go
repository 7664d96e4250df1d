// Package handlers provides HTTP API request handlers.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sentinelshield/realtime/internal/gateway"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// sendError sends an error response with the appropriate status code.
func sendError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

const claimsKey = "sessionClaims"

// RequireToken verifies the Authorization bearer token and stores the
// asserted identity in the request context.
func RequireToken(auth *gateway.TokenAuthority) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			sendError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing bearer token")
			c.Abort()
			return
		}
		claims, err := auth.Verify(token)
		if err != nil {
			sendError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token")
			c.Abort()
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// getClaims extracts the verified identity from the request context.
func getClaims(c *gin.Context) (gateway.SessionClaims, bool) {
	v, exists := c.Get(claimsKey)
	if !exists {
		return gateway.SessionClaims{}, false
	}
	claims, ok := v.(gateway.SessionClaims)
	return claims, ok
}
