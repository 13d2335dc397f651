package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/fleetops/backoffice/internal/auth"
	"github.com/fleetops/backoffice/internal/models"
)

func newTestAuthService() *auth.Service {
	return auth.NewService("test-secret", time.Hour)
}

func TestAuthMiddleware_Authenticate(t *testing.T) {
	authService := newTestAuthService()
	middleware := NewAuthMiddleware(authService)

	// Test successful authentication
	t.Run("valid token", func(t *testing.T) {
		userID := primitive.NewObjectID().Hex()
		token, _ := authService.GenerateToken(userID, "testuser", models.RoleAdmin)

		req := httptest.NewRequest("GET", "/api/v1/thermometers", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
			claims, ok := GetUserFromContext(r.Context())
			assert.True(t, ok)
			assert.Equal(t, "testuser", claims.Username)
			assert.Equal(t, models.RoleAdmin, claims.Role)
		})

		middleware.Authenticate(handler).ServeHTTP(w, req)
		assert.True(t, handlerCalled)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	// Test missing authorization header
	t.Run("missing authorization header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/thermometers", nil)
		w := httptest.NewRecorder()

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
		})

		middleware.Authenticate(handler).ServeHTTP(w, req)
		assert.False(t, handlerCalled)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	// Test invalid token
	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/thermometers", nil)
		req.Header.Set("Authorization", "Bearer invalid-token")
		w := httptest.NewRecorder()

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
		})

		middleware.Authenticate(handler).ServeHTTP(w, req)
		assert.False(t, handlerCalled)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	// Test skip auth paths
	t.Run("skip auth path", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/health", nil)
		w := httptest.NewRecorder()

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
		})

		middleware.Authenticate(handler).ServeHTTP(w, req)
		assert.True(t, handlerCalled)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestAuthMiddleware_RequireRole(t *testing.T) {
	authService := newTestAuthService()
	middleware := NewAuthMiddleware(authService)

	// Test admin can access manager endpoint
	t.Run("admin accessing manager endpoint", func(t *testing.T) {
		token, _ := authService.GenerateToken(primitive.NewObjectID().Hex(), "admin", models.RoleAdmin)

		req := httptest.NewRequest("GET", "/api/v1/devices/keys", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
		})

		// Add authentication first
		authHandler := middleware.Authenticate(middleware.RequireRole(models.RoleManager)(handler))
		authHandler.ServeHTTP(w, req)
		assert.True(t, handlerCalled)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	// Test manager cannot access admin endpoint
	t.Run("manager accessing admin endpoint", func(t *testing.T) {
		token, _ := authService.GenerateToken(primitive.NewObjectID().Hex(), "manager", models.RoleManager)

		req := httptest.NewRequest("POST", "/api/v1/devices/keys", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
		})

		authHandler := middleware.Authenticate(middleware.RequireRole(models.RoleAdmin)(handler))
		authHandler.ServeHTTP(w, req)
		assert.False(t, handlerCalled)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

type fakeCredentialStore struct {
	credentials map[string]*models.DeviceCredential
	err         error
	lookups     int
}

func (s *fakeCredentialStore) UpsertDeviceCredential(ctx context.Context, credential models.DeviceCredential) error {
	if s.credentials == nil {
		s.credentials = make(map[string]*models.DeviceCredential)
	}
	s.credentials[credential.IMEI] = &credential
	return nil
}

func (s *fakeCredentialStore) FindDeviceCredentialByIMEI(ctx context.Context, imei string) (*models.DeviceCredential, error) {
	s.lookups++
	if s.err != nil {
		return nil, s.err
	}
	return s.credentials[imei], nil
}

func TestDeviceAuthMiddleware_Authenticate(t *testing.T) {
	authService := newTestAuthService()

	key := "field-device-key"
	hash, _ := authService.HashAPIKey(key)
	store := &fakeCredentialStore{
		credentials: map[string]*models.DeviceCredential{
			"350000000000001": {IMEI: "350000000000001", KeyHash: hash},
		},
	}
	middleware := NewDeviceAuthMiddleware(authService, store, nil, 0)

	t.Run("valid credentials", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/v1/telemetry/temperature", nil)
		req.Header.Set("X-Device-Id", "350000000000001")
		req.Header.Set("X-Api-Key", key)
		w := httptest.NewRecorder()

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
			imei, ok := GetDeviceFromContext(r.Context())
			assert.True(t, ok)
			assert.Equal(t, "350000000000001", imei)
		})

		middleware.Authenticate(handler).ServeHTTP(w, req)
		assert.True(t, handlerCalled)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing headers", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/v1/telemetry/temperature", nil)
		w := httptest.NewRecorder()

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
		})

		middleware.Authenticate(handler).ServeHTTP(w, req)
		assert.False(t, handlerCalled)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong key", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/v1/telemetry/temperature", nil)
		req.Header.Set("X-Device-Id", "350000000000001")
		req.Header.Set("X-Api-Key", "wrong-key")
		w := httptest.NewRecorder()

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
		})

		middleware.Authenticate(handler).ServeHTTP(w, req)
		assert.False(t, handlerCalled)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown device", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/v1/telemetry/temperature", nil)
		req.Header.Set("X-Device-Id", "359999999999999")
		req.Header.Set("X-Api-Key", key)
		w := httptest.NewRecorder()

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
		})

		middleware.Authenticate(handler).ServeHTTP(w, req)
		assert.False(t, handlerCalled)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("store error rejects", func(t *testing.T) {
		broken := &fakeCredentialStore{err: errors.New("connection reset")}
		brokenMiddleware := NewDeviceAuthMiddleware(authService, broken, nil, 0)

		req := httptest.NewRequest("POST", "/api/v1/telemetry/temperature", nil)
		req.Header.Set("X-Device-Id", "350000000000001")
		req.Header.Set("X-Api-Key", key)
		w := httptest.NewRecorder()

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
		})

		brokenMiddleware.Authenticate(handler).ServeHTTP(w, req)
		assert.False(t, handlerCalled)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	middleware := NewRateLimitMiddleware()

	t.Run("rate limit not exceeded", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/thermometers", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		w := httptest.NewRecorder()

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
		})

		rateLimitHandler := middleware.RateLimit(5, 60)(handler)
		rateLimitHandler.ServeHTTP(w, req)
		assert.True(t, handlerCalled)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("rate limit exceeded", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/thermometers", nil)
		req.RemoteAddr = "192.168.1.2:12345"
		w := httptest.NewRecorder()

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
		})

		rateLimitHandler := middleware.RateLimit(1, 60)(handler)

		// First request should succeed
		rateLimitHandler.ServeHTTP(w, req)
		assert.True(t, handlerCalled)
		assert.Equal(t, http.StatusOK, w.Code)

		// Second request should be rate limited
		w = httptest.NewRecorder()
		handlerCalled = false
		rateLimitHandler.ServeHTTP(w, req)
		assert.False(t, handlerCalled)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
	})

	t.Run("devices count against separate buckets", func(t *testing.T) {
		handlerCalled := 0
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled++
		})
		rateLimitHandler := middleware.RateLimit(1, 60)(handler)

		for _, imei := range []string{"350000000000010", "350000000000011"} {
			req := httptest.NewRequest("POST", "/api/v1/telemetry/odometer", nil)
			req.RemoteAddr = "192.168.1.3:12345"
			ctx := context.WithValue(req.Context(), DeviceContextKey, imei)
			w := httptest.NewRecorder()
			rateLimitHandler.ServeHTTP(w, req.WithContext(ctx))
			assert.Equal(t, http.StatusOK, w.Code)
		}
		assert.Equal(t, 2, handlerCalled)
	})
}

func TestGetUserFromContext(t *testing.T) {
	claims := &models.Claims{
		UserID:   "test-id",
		Username: "testuser",
		Role:     models.RoleAdmin,
	}

	ctx := context.WithValue(context.Background(), UserContextKey, claims)

	retrievedClaims, ok := GetUserFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, claims.UserID, retrievedClaims.UserID)
	assert.Equal(t, claims.Username, retrievedClaims.Username)
	assert.Equal(t, claims.Role, retrievedClaims.Role)

	// Test with no user in context
	emptyCtx := context.Background()
	_, ok = GetUserFromContext(emptyCtx)
	assert.False(t, ok)
}
