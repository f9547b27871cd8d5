package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"verifyflow.backend/pkg/jwt"
	"verifyflow.backend/pkg/logger"
)

const (
	// AuthorizationHeader is the header key for authorization
	AuthorizationHeader = "Authorization"
	// BearerPrefix is the prefix for bearer tokens
	BearerPrefix = "Bearer "
	// SubjectIDKey is the context key for the caller id
	SubjectIDKey = "subjectId"
	// RoleKey is the context key for the caller role
	RoleKey = "role"
)

// TokenValidator checks bearer tokens
type TokenValidator interface {
	ValidateToken(tokenString string) (*jwt.Claims, error)
}

// AuthMiddleware authenticates the bearer token and stores the caller in
// the gin context.
func AuthMiddleware(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(AuthorizationHeader)
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":  "UNAUTHORIZED",
				"error": "Authorization header is required",
			})
			return
		}

		if !strings.HasPrefix(authHeader, BearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":  "UNAUTHORIZED",
				"error": "Invalid authorization format. Use: Bearer <token>",
			})
			return
		}

		tokenString := strings.TrimPrefix(authHeader, BearerPrefix)
		claims, err := validator.ValidateToken(tokenString)
		if err != nil {
			logger.Warn(c.Request.Context(), "Rejected bearer token",
				zap.String("path", c.Request.URL.Path),
				zap.Error(err),
			)
			message := "Invalid token"
			if errors.Is(err, jwt.ErrExpiredToken) {
				message = "Token has expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":  "UNAUTHORIZED",
				"error": message,
			})
			return
		}

		c.Set(SubjectIDKey, claims.SubjectID)
		c.Set(RoleKey, claims.Role)
		c.Next()
	}
}

// GetSubjectID returns the authenticated caller id
func GetSubjectID(c *gin.Context) (uuid.UUID, bool) {
	v, exists := c.Get(SubjectIDKey)
	if !exists {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// GetRole returns the authenticated caller role
func GetRole(c *gin.Context) (string, bool) {
	v, exists := c.Get(RoleKey)
	if !exists {
		return "", false
	}
	role, ok := v.(string)
	return role, ok
}

// RequireRole creates a middleware that requires one of roles
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole, exists := GetRole(c)
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":  "UNAUTHORIZED",
				"error": "User role not found",
			})
			return
		}

		for _, role := range roles {
			if userRole == role {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"code":  "FORBIDDEN",
			"error": "Insufficient permissions",
		})
	}
}
