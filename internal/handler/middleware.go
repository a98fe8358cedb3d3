package handler

import (
	"net/http"
	"strings"

	"story-engine/internal/authutils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Ключи контекста Gin для результата аутентификации.
const (
	ctxUserIDKey      = "userID"
	ctxServiceNameKey = "serviceName"
)

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", false
	}
	return parts[1], true
}

// RequireUserAuth проверяет пользовательский JWT и кладет userID в контекст.
// Запросы без валидного токена отклоняются с 401.
func RequireUserAuth(verifier *authutils.JWTVerifier, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, APIError{Message: "Authorization header missing or malformed"})
			return
		}

		claims, err := verifier.VerifyToken(c.Request.Context(), tokenString)
		if err != nil {
			logger.Debug("User token rejected", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, APIError{Message: "Invalid or expired token"})
			return
		}

		c.Set(ctxUserIDKey, claims.UserID)
		c.Next()
	}
}

// OptionalUserAuth извлекает userID из токена, если он есть и валиден.
// Гостевые запросы проходят дальше с uuid.Nil; невалидный токен при этом
// отклоняется, а не трактуется как гость - иначе истекшая сессия молча
// теряла бы серверный прогресс.
func OptionalUserAuth(verifier *authutils.JWTVerifier, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			c.Set(ctxUserIDKey, uuid.Nil)
			c.Next()
			return
		}

		claims, err := verifier.VerifyToken(c.Request.Context(), tokenString)
		if err != nil {
			logger.Debug("Token present but rejected on guest-capable route", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, APIError{Message: "Invalid or expired token"})
			return
		}

		c.Set(ctxUserIDKey, claims.UserID)
		c.Next()
	}
}

// RequireServiceAuth проверяет межсервисный JWT для внутренних маршрутов.
func RequireServiceAuth(verifier *authutils.JWTVerifier, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, APIError{Message: "Authorization header missing or malformed"})
			return
		}

		claims, err := verifier.VerifyServiceToken(c.Request.Context(), tokenString)
		if err != nil {
			logger.Warn("Inter-service token rejected", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, APIError{Message: "Invalid service token"})
			return
		}

		c.Set(ctxServiceNameKey, claims.ServiceName)
		c.Next()
	}
}

// userIDFromContext возвращает userID, положенный auth middleware.
// На гостевых маршрутах это uuid.Nil.
func userIDFromContext(c *gin.Context) uuid.UUID {
	val, exists := c.Get(ctxUserIDKey)
	if !exists {
		return uuid.Nil
	}
	userID, ok := val.(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return userID
}
