package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/fleetops/backoffice/internal/auth"
	"github.com/fleetops/backoffice/internal/db"
	"github.com/fleetops/backoffice/internal/models"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	UserContextKey   contextKey = "user"
	DeviceContextKey contextKey = "device"
)

// AuthMiddleware provides JWT authentication middleware for back-office routes.
type AuthMiddleware struct {
	authService *auth.Service
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(authService *auth.Service) *AuthMiddleware {
	return &AuthMiddleware{
		authService: authService,
	}
}

// Authenticate validates JWT tokens and adds user context
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip authentication for certain endpoints
		if shouldSkipAuth(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		// Extract token from Authorization header
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		// Validate token
		claims, err := m.authService.ValidateToken(authHeader)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		// Add user context to request
		ctx := context.WithValue(r.Context(), UserContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole middleware checks if the user has the required role
func (m *AuthMiddleware) RequireRole(requiredRole models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := r.Context().Value(UserContextKey).(*models.Claims)
			if !ok {
				http.Error(w, "User context not found", http.StatusUnauthorized)
				return
			}

			if claims.Role != requiredRole && claims.Role != models.RoleAdmin {
				http.Error(w, "Insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetUserFromContext extracts user claims from request context
func GetUserFromContext(ctx context.Context) (*models.Claims, bool) {
	claims, ok := ctx.Value(UserContextKey).(*models.Claims)
	return claims, ok
}

// GetDeviceFromContext extracts the authenticated device IMEI from request context.
func GetDeviceFromContext(ctx context.Context) (string, bool) {
	imei, ok := ctx.Value(DeviceContextKey).(string)
	return imei, ok
}

// shouldSkipAuth determines if authentication should be skipped for a given path
func shouldSkipAuth(path string) bool {
	skipPaths := []string{
		"/health",
		"/metrics",
	}

	for _, skipPath := range skipPaths {
		if strings.HasPrefix(path, skipPath) {
			return true
		}
	}
	return false
}

// DeviceAuthMiddleware authenticates field-device uplinks via per-device API
// keys. Keys are stored as bcrypt hashes; successful checks are cached in
// redis so a chatty device does not pay the bcrypt cost on every uplink.
type DeviceAuthMiddleware struct {
	authService *auth.Service
	credentials db.DeviceCredentialCollection
	cache       *redis.Client
	cacheTTL    time.Duration
}

// NewDeviceAuthMiddleware creates a device authentication middleware. The
// redis client is optional; with a nil cache every request hits bcrypt.
func NewDeviceAuthMiddleware(authService *auth.Service, credentials db.DeviceCredentialCollection, cache *redis.Client, cacheTTL time.Duration) *DeviceAuthMiddleware {
	if cacheTTL == 0 {
		cacheTTL = 5 * time.Minute
	}
	return &DeviceAuthMiddleware{
		authService: authService,
		credentials: credentials,
		cache:       cache,
		cacheTTL:    cacheTTL,
	}
}

// Authenticate validates the X-Device-Id and X-Api-Key headers and adds the
// device IMEI to the request context.
func (m *DeviceAuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		imei := r.Header.Get("X-Device-Id")
		apiKey := r.Header.Get("X-Api-Key")
		if imei == "" || apiKey == "" {
			http.Error(w, "Device credentials required", http.StatusUnauthorized)
			return
		}

		if !m.checkCredentials(r.Context(), imei, apiKey) {
			http.Error(w, "Invalid device credentials", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), DeviceContextKey, imei)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *DeviceAuthMiddleware) checkCredentials(ctx context.Context, imei, apiKey string) bool {
	digest := sha256.Sum256([]byte(apiKey))
	fingerprint := hex.EncodeToString(digest[:])
	cacheKey := "device:auth:" + imei

	if m.cache != nil {
		cached, err := m.cache.Get(ctx, cacheKey).Result()
		if err == nil {
			return cached == fingerprint
		}
		if err != redis.Nil {
			logrus.WithError(err).Warn("Device auth cache lookup failed")
		}
	}

	cred, err := m.credentials.FindDeviceCredentialByIMEI(ctx, imei)
	if err != nil {
		logrus.WithError(err).WithField("imei", imei).Error("Device credential lookup failed")
		return false
	}
	if cred == nil {
		return false
	}

	if !m.authService.CheckAPIKey(apiKey, cred.KeyHash) {
		return false
	}

	if m.cache != nil {
		if err := m.cache.Set(ctx, cacheKey, fingerprint, m.cacheTTL).Err(); err != nil {
			logrus.WithError(err).Warn("Device auth cache store failed")
		}
	}
	return true
}

// RateLimitMiddleware provides basic rate limiting
type RateLimitMiddleware struct {
	requests map[string][]int64 // subject -> timestamps
	mu       sync.RWMutex       // Mutex for thread-safe access
}

// NewRateLimitMiddleware creates a new rate limiting middleware
func NewRateLimitMiddleware() *RateLimitMiddleware {
	return &RateLimitMiddleware{
		requests: make(map[string][]int64),
	}
}

// RateLimit applies rate limiting keyed by the authenticated device, falling
// back to the client IP for unauthenticated routes.
func (m *RateLimitMiddleware) RateLimit(maxRequests int, windowSeconds int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject := rateLimitSubject(r)

			// Clean old requests outside the window
			now := time.Now().Unix()
			windowStart := now - int64(windowSeconds)

			// Use write lock for map operations
			m.mu.Lock()

			if timestamps, exists := m.requests[subject]; exists {
				var validTimestamps []int64
				for _, ts := range timestamps {
					if ts >= windowStart {
						validTimestamps = append(validTimestamps, ts)
					}
				}
				m.requests[subject] = validTimestamps
			}

			// Check if rate limit exceeded
			if len(m.requests[subject]) >= maxRequests {
				m.mu.Unlock()
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			// Add current request
			m.requests[subject] = append(m.requests[subject], now)

			// Release lock
			m.mu.Unlock()

			next.ServeHTTP(w, r)
		})
	}
}

// rateLimitSubject picks the bucket a request counts against.
func rateLimitSubject(r *http.Request) string {
	if imei, ok := GetDeviceFromContext(r.Context()); ok {
		return "device:" + imei
	}
	return "ip:" + getClientIP(r)
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	// Check for forwarded headers first
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.Split(ip, ",")[0]
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}

	// Fall back to remote address
	ip := r.RemoteAddr
	if colonIndex := strings.LastIndex(ip, ":"); colonIndex != -1 {
		ip = ip[:colonIndex]
	}
	return ip
}
