package middleware

import (
	"net/http"
	"strings"

	"seatly/internal/shared/config"
	"seatly/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
)

// Context keys set by SessionAuth
const (
	CtxSessionID  = "session_id"
	CtxCustomerID = "customer_id"
	CtxRole       = "role"
)

// SessionAuth verifies the signed session token minted by the external identity
// service (or the built-in development issuer). The engine only extracts the
// session, customer and role claims it needs for hold ownership and checkout.
func SessionAuth(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Error(c, http.StatusUnauthorized, "Authorization header is required", nil)
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Error(c, http.StatusUnauthorized, "authorization header format must be Bearer {token}", nil)
			c.Abort()
			return
		}

		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(cfg.Session.Secret), nil
		})

		if err != nil || !token.Valid {
			response.Error(c, http.StatusUnauthorized, "invalid or expired session token", nil)
			c.Abort()
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			response.Error(c, http.StatusUnauthorized, "malformed session claims", nil)
			c.Abort()
			return
		}

		sessionID, _ := claims["session_id"].(string)
		if sessionID == "" {
			response.Error(c, http.StatusUnauthorized, "session token carries no session_id", nil)
			c.Abort()
			return
		}

		c.Set(CtxSessionID, sessionID)
		if customerID, ok := claims["customer_id"].(string); ok {
			c.Set(CtxCustomerID, customerID)
		}
		if role, ok := claims["role"].(string); ok {
			c.Set(CtxRole, role)
		}

		c.Next()
	}
}

// RequireRole checks that the session carries the required role
func RequireRole(requiredRole string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get(CtxRole)
		if !exists {
			response.Error(c, http.StatusUnauthorized, "role not found in session", nil)
			c.Abort()
			return
		}

		if role.(string) != requiredRole {
			response.Error(c, http.StatusForbidden, "Insufficient permissions", nil)
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequireOperator guards venue-operator endpoints (seat base-status changes)
func RequireOperator() gin.HandlerFunc {
	return RequireRole("operator")
}

// SessionID returns the authenticated session id from the gin context
func SessionID(c *gin.Context) string {
	if v, ok := c.Get(CtxSessionID); ok {
		return v.(string)
	}
	return ""
}

// CustomerID returns the authenticated customer id from the gin context
func CustomerID(c *gin.Context) string {
	if v, ok := c.Get(CtxCustomerID); ok {
		return v.(string)
	}
	return ""
}
