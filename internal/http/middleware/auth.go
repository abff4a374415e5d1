package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Context ключи для gin.Context.
const (
	ContextUserIDKey = "userID"
	ContextRoleKey   = "role"
)

// AccessParser проверяет access токен и возвращает пользователя и его роль.
type AccessParser interface {
	ParseAccess(token string) (uuid.UUID, string, error)
}

// AuthMiddleware проверяет JWT access токен из заголовка Authorization.
func AuthMiddleware(tokens AccessParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "требуется авторизация", "code": "UNAUTHORIZED"})
			return
		}

		userID, role, err := tokens.ParseAccess(strings.TrimPrefix(auth, "Bearer "))
		if err != nil || userID == uuid.Nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "токен невалиден", "code": "UNAUTHORIZED"})
			return
		}

		c.Set(ContextUserIDKey, userID)
		c.Set(ContextRoleKey, role)
		c.Next()
	}
}

// RequireRole пропускает только пользователей с одной из перечисленных ролей.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ContextRoleKey)
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "недостаточно прав", "code": "FORBIDDEN"})
	}
}
