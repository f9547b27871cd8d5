package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"verifyflow.backend/pkg/logger"
)

const (
	IdempotencyHeader       = "Idempotency-Key"
	IdempotencyReplayHeader = "X-Idempotency-Hit"
	// LockDuration is the time we hold the lock while processing
	LockDuration = 30 * time.Second
	// RetentionDuration is how long we keep the response
	RetentionDuration = 24 * time.Hour

	processingMarker = "processing"
)

type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

type cachedResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// IdempotencyMiddleware replays the stored response for a repeated
// Idempotency-Key from the same caller. Concurrent duplicates get 409.
// Requests proceed without caching when Redis is unavailable.
func IdempotencyMiddleware(client redis.UniversalClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyHeader)
		if key == "" || client == nil {
			c.Next()
			return
		}

		subject, _ := GetSubjectID(c)
		storageKey := fmt.Sprintf("idempotency:%s:%s:%s", subject, c.FullPath(), key)
		ctx := c.Request.Context()

		acquired, err := client.SetNX(ctx, storageKey, processingMarker, LockDuration).Result()
		if err != nil {
			logger.Warn(ctx, "Idempotency store unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !acquired {
			replay(c, client, storageKey)
			return
		}

		w := &responseWriter{body: &bytes.Buffer{}, ResponseWriter: c.Writer}
		c.Writer = w

		c.Next()

		status := c.Writer.Status()
		if status < 200 || status >= 300 {
			// allow the client to retry after a failure
			_ = client.Del(ctx, storageKey).Err()
			return
		}
		raw, err := json.Marshal(cachedResponse{Status: status, Body: json.RawMessage(w.body.Bytes())})
		if err != nil || !json.Valid(w.body.Bytes()) {
			_ = client.Del(ctx, storageKey).Err()
			return
		}
		if err := client.Set(ctx, storageKey, raw, RetentionDuration).Err(); err != nil {
			logger.Warn(ctx, "Failed to store idempotent response", zap.Error(err))
		}
	}
}

func replay(c *gin.Context, client redis.UniversalClient, storageKey string) {
	val, err := client.Get(c.Request.Context(), storageKey).Result()
	if errors.Is(err, redis.Nil) || val == processingMarker {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"code":  "IDEMPOTENCY_CONFLICT",
			"error": "Request already in progress",
		})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
			"code":  "IDEMPOTENCY_UNAVAILABLE",
			"error": "Could not read stored response",
		})
		return
	}

	var cached cachedResponse
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"code":  "IDEMPOTENCY_CONFLICT",
			"error": "Stored response is unreadable",
		})
		return
	}
	c.Header(IdempotencyReplayHeader, "true")
	c.Data(cached.Status, "application/json; charset=utf-8", cached.Body)
	c.Abort()
}
