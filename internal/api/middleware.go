package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"

	"docstack/internal/config"
	"docstack/internal/identity"
	"docstack/internal/models"
	"docstack/pkg/circuitbreaker"
	"docstack/pkg/logger"
	"docstack/pkg/ratelimiter"
)

const contextUserKey = "userID"

// AuthMiddleware verifies the Bearer JWT and stores the caller's user id in
// the request context. Token issuance happens outside this service; the
// subject claim carries the user id.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "malformed authorization header"})
			c.Abort()
			return
		}

		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(jwtSecret), nil
		})
		if err != nil || !token.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token claims"})
			c.Abort()
			return
		}
		sub, _ := claims["sub"].(string)
		userID, err := identity.Parse[identity.UserID](sub)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token subject"})
			c.Abort()
			return
		}

		c.Set(contextUserKey, userID)
		c.Next()
	}
}

// RequestLog emits one structured line per request in the log-collector
// shape, with the caller's user id when AuthMiddleware resolved one.
func RequestLog(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		entry := log.WithRequest(models.RequestInfo{
			Method:     c.Request.Method,
			Path:       c.Request.URL.Path,
			RemoteAddr: c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
		})
		payload := map[string]interface{}{"status": c.Writer.Status()}
		if userID, ok := callerID(c); ok {
			payload["user_id"] = string(userID)
		}
		entry.WithPayload(payload).Info("request completed")
	}
}

// callerID reads the authenticated user id set by AuthMiddleware.
func callerID(c *gin.Context) (identity.UserID, bool) {
	v, ok := c.Get(contextUserKey)
	if !ok {
		return "", false
	}
	id, ok := v.(identity.UserID)
	return id, ok
}

// NewRateLimiter builds the configured rate-limiting algorithm.
func NewRateLimiter(cfg config.RateLimiterConfig) (ratelimiter.Limiter, error) {
	window, err := time.ParseDuration(cfg.FixedWindow.Window)
	if err != nil || window <= 0 {
		window = time.Minute
	}
	switch cfg.Algorithm {
	case "fixedWindow", "":
		return ratelimiter.NewFixedWindow(cfg.FixedWindow.Limit, window), nil
	case "tokenBucket":
		return ratelimiter.NewTokenBucket(cfg.TokenBucket.Rate, cfg.TokenBucket.Capacity), nil
	case "leakyBucket":
		return ratelimiter.NewLeakyBucket(cfg.TokenBucket.Rate, cfg.TokenBucket.Capacity), nil
	case "slidingWindowLog":
		return ratelimiter.NewSlidingLog(cfg.FixedWindow.Limit, window), nil
	case "slidingWindowCounter":
		return ratelimiter.NewSlidingCounter(cfg.FixedWindow.Limit, window, cfg.FixedWindow.NumBuckets), nil
	default:
		return nil, fmt.Errorf("unknown rate limiter algorithm '%s'", cfg.Algorithm)
	}
}

// RateLimit rejects requests the limiter disallows.
func RateLimit(limiter ratelimiter.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// CircuitBreak trips on consecutive 5xx responses and sheds load while open.
func CircuitBreak(breaker *circuitbreaker.Breaker) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := breaker.Execute(func() error {
			c.Next()
			if status := c.Writer.Status(); status >= http.StatusInternalServerError {
				return fmt.Errorf("server error: status code %d", status)
			}
			return nil
		})
		if errors.Is(err, circuitbreaker.ErrOpen) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
			c.Abort()
		}
	}
}
