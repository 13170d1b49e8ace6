package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/polyphonica/booking/pkg/response"
	"github.com/redis/go-redis/v9"
)

const (
	// IdempotencyKeyHeader is the header name for idempotency key
	IdempotencyKeyHeader = "X-Idempotency-Key"
	// IdempotencyKeyPrefix namespaces records in Redis
	IdempotencyKeyPrefix = "idempotency:"
)

// IdempotencyStatus represents the status of an idempotency record
type IdempotencyStatus string

const (
	StatusProcessing IdempotencyStatus = "processing"
	StatusCompleted  IdempotencyStatus = "completed"
)

// IdempotencyRecord stores the state of an idempotent request
type IdempotencyRecord struct {
	Status       IdempotencyStatus `json:"status"`
	RequestHash  string            `json:"request_hash"`
	ResponseCode int               `json:"response_code"`
	ResponseBody string            `json:"response_body"`
	CreatedAt    time.Time         `json:"created_at"`
}

// RedisClient is the subset of Redis the middleware needs
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// IdempotencyConfig holds configuration for idempotency middleware
type IdempotencyConfig struct {
	Redis RedisClient
	// TTL for completed records
	TTL time.Duration
	// ProcessingTTL bounds how long an in-flight marker blocks retries
	ProcessingTTL time.Duration
	// RequireKey rejects requests without the header instead of passing them through
	RequireKey bool
}

// DefaultIdempotencyConfig keeps completed checkouts for the length of a hold window
func DefaultIdempotencyConfig(rdb RedisClient) *IdempotencyConfig {
	return &IdempotencyConfig{
		Redis:         rdb,
		TTL:           30 * time.Minute,
		ProcessingTTL: 60 * time.Second,
	}
}

// Idempotency replays the stored response for a repeated X-Idempotency-Key.
// Redis errors fail open. 5xx responses are not stored so the client may retry.
func Idempotency(config *IdempotencyConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyKeyHeader)
		if key == "" {
			if config.RequireKey {
				c.AbortWithStatusJSON(http.StatusBadRequest, response.ErrorBody("MISSING_IDEMPOTENCY_KEY", "X-Idempotency-Key header is required"))
				return
			}
			c.Next()
			return
		}

		var body []byte
		if c.Request.Body != nil {
			body, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
		}
		hash := requestHash(c, body)
		redisKey := IdempotencyKeyPrefix + key
		ctx := c.Request.Context()

		existing, err := getRecord(ctx, config.Redis, redisKey)
		if err != nil && !errors.Is(err, redis.Nil) {
			c.Next()
			return
		}
		if existing != nil {
			replay(c, existing, hash)
			return
		}

		record := &IdempotencyRecord{Status: StatusProcessing, RequestHash: hash, CreatedAt: time.Now()}
		if !setRecordNX(ctx, config.Redis, redisKey, record, config.ProcessingTTL) {
			if existing, _ = getRecord(ctx, config.Redis, redisKey); existing != nil {
				replay(c, existing, hash)
				return
			}
		}

		rw := &capturingWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = rw
		c.Next()

		status := rw.Status()
		if status >= 500 {
			config.Redis.Del(ctx, redisKey)
			return
		}

		record.Status = StatusCompleted
		record.ResponseCode = status
		record.ResponseBody = rw.body.String()
		if data, err := json.Marshal(record); err == nil {
			config.Redis.Set(ctx, redisKey, string(data), config.TTL)
		}
	}
}

func replay(c *gin.Context, rec *IdempotencyRecord, hash string) {
	switch {
	case rec.RequestHash != hash:
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, response.ErrorBody("IDEMPOTENCY_KEY_REUSED", "Idempotency key already used with a different request"))
	case rec.Status == StatusProcessing:
		c.AbortWithStatusJSON(http.StatusConflict, response.ErrorBody("REQUEST_IN_PROGRESS", "A request with this idempotency key is already being processed"))
	default:
		c.Data(rec.ResponseCode, "application/json; charset=utf-8", []byte(rec.ResponseBody))
		c.Abort()
	}
}

type capturingWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *capturingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func requestHash(c *gin.Context, body []byte) string {
	h := sha256.New()
	h.Write([]byte(c.Request.Method))
	h.Write([]byte(c.Request.URL.Path))
	if userID, ok := GetUserID(c); ok {
		h.Write([]byte(userID))
	}
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func getRecord(ctx context.Context, rdb RedisClient, key string) (*IdempotencyRecord, error) {
	raw, err := rdb.Get(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	var record IdempotencyRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func setRecordNX(ctx context.Context, rdb RedisClient, key string, record *IdempotencyRecord, ttl time.Duration) bool {
	data, err := json.Marshal(record)
	if err != nil {
		return false
	}
	ok, err := rdb.SetNX(ctx, key, string(data), ttl).Result()
	return err == nil && ok
}
