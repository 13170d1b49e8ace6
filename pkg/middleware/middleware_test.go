package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value.(string)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func TestRequestID_GeneratesNew(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	headerID := w.Header().Get(RequestIDHeader)
	if headerID == "" {
		t.Error("Expected X-Request-ID header to be set")
	}
	if headerID != w.Body.String() {
		t.Errorf("Header ID (%s) should match body ID (%s)", headerID, w.Body.String())
	}
}

func TestRequestID_UsesExisting(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(RequestIDHeader, "existing-id")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Body.String() != "existing-id" {
		t.Errorf("Expected existing-id, got %s", w.Body.String())
	}
}

func TestAuth(t *testing.T) {
	cfg := AuthConfig{Secret: "test-secret", Issuer: "polyphonica"}

	r := gin.New()
	r.GET("/me", Auth(cfg), func(c *gin.Context) {
		id := GetIdentity(c)
		c.String(http.StatusOK, id.UserID+"|"+id.Role)
	})
	r.GET("/staff", Auth(cfg), RequireStaff(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	userToken, err := SignToken(cfg, Identity{UserID: "u1", Email: "a@example.com", Role: RoleUser}, time.Hour)
	require.NoError(t, err)
	staffToken, err := SignToken(cfg, Identity{UserID: "s1", Role: RoleStaff}, time.Hour)
	require.NoError(t, err)
	foreignToken, err := SignToken(AuthConfig{Secret: "other"}, Identity{UserID: "x"}, time.Hour)
	require.NoError(t, err)
	expired, err := SignToken(cfg, Identity{UserID: "u1"}, -time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		token  string
		status int
		body   string
	}{
		{"missing token", "/me", "", http.StatusUnauthorized, ""},
		{"valid user", "/me", userToken, http.StatusOK, "u1|user"},
		{"wrong secret", "/me", foreignToken, http.StatusUnauthorized, ""},
		{"expired", "/me", expired, http.StatusUnauthorized, ""},
		{"user on staff route", "/staff", userToken, http.StatusForbidden, ""},
		{"staff on staff route", "/staff", staffToken, http.StatusNoContent, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	cfg := AuthConfig{Secret: "test-secret"}
	r := gin.New()
	r.GET("/tickets", OptionalAuth(cfg), func(c *gin.Context) {
		c.String(http.StatusOK, "caller="+GetIdentity(c).UserID)
	})
	token, err := SignToken(cfg, Identity{UserID: "u1"}, time.Hour)
	require.NoError(t, err)

	serve := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/tickets", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, "caller=", serve("").Body.String(), "guests pass through")
	assert.Equal(t, "caller=u1", serve("Bearer "+token).Body.String())
	assert.Equal(t, http.StatusUnauthorized, serve("Bearer nonsense").Code)
}

func TestIdempotency_ReplaysStoredResponse(t *testing.T) {
	rdb := newFakeRedis()
	calls := 0

	r := gin.New()
	r.POST("/checkout", Idempotency(DefaultIdempotencyConfig(rdb)), func(c *gin.Context) {
		calls++
		c.JSON(http.StatusCreated, gin.H{"call": calls})
	})

	send := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(body))
		req.Header.Set(IdempotencyKeyHeader, "key-1")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	first := send(`{"qty":1}`)
	second := send(`{"qty":1}`)

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	reused := send(`{"qty":2}`)
	assert.Equal(t, http.StatusUnprocessableEntity, reused.Code)
}

func TestIdempotency_DoesNotStoreServerErrors(t *testing.T) {
	rdb := newFakeRedis()
	calls := 0

	r := gin.New()
	r.POST("/checkout", Idempotency(DefaultIdempotencyConfig(rdb)), func(c *gin.Context) {
		calls++
		c.Status(http.StatusBadGateway)
	})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(`{}`))
		req.Header.Set(IdempotencyKeyHeader, "key-2")
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	assert.Equal(t, 2, calls)
}

func TestIdempotency_MissingKey(t *testing.T) {
	cfg := DefaultIdempotencyConfig(newFakeRedis())

	r := gin.New()
	r.POST("/optional", Idempotency(cfg), func(c *gin.Context) { c.Status(http.StatusOK) })

	strict := *cfg
	strict.RequireKey = true
	r.POST("/strict", Idempotency(&strict), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/optional", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/strict", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
