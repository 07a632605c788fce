package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"stock-ledger/internal/redisclient"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderReplayed       = "Idempotent-Replayed"
)

// IdempotencyStore remembers the outcome of requests by client-supplied key
type IdempotencyStore interface {
	Claim(ctx context.Context, key string) (bool, error)
	Lookup(ctx context.Context, key string) (*redisclient.StoredResponse, bool, error)
	Complete(ctx context.Context, key string, status int, body []byte) error
	Release(ctx context.Context, key string) error
}

type recordingWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *recordingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// idempotent replays the stored response when a sale request repeats its
// Idempotency-Key. Successful and rejected (4xx) outcomes are remembered;
// server errors release the key so the client can retry.
func (h *Handler) idempotent() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(HeaderIdempotencyKey)
		if h.idempotency == nil || header == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := fmt.Sprintf("%d:%s:%s", actorFrom(c).UserID, c.FullPath(), header)

		claimed, err := h.idempotency.Claim(ctx, key)
		if err != nil {
			h.logger.Warn("Idempotency store unavailable, processing request without it", zap.Error(err))
			c.Next()
			return
		}

		if !claimed {
			stored, pending, err := h.idempotency.Lookup(ctx, key)
			switch {
			case err != nil:
				h.logger.Error("Failed to look up idempotent response", zap.Error(err))
				writeError(c, err)
				c.Abort()
			case pending:
				c.AbortWithStatusJSON(http.StatusConflict, gin.H{
					"error":   "request_in_progress",
					"details": "a request with this Idempotency-Key is still being processed",
				})
			case stored == nil:
				c.AbortWithStatusJSON(http.StatusConflict, gin.H{
					"error":   "request_in_progress",
					"details": "retry the request",
				})
			default:
				c.Header(HeaderReplayed, "true")
				c.Data(stored.Status, "application/json; charset=utf-8", stored.Body)
				c.Abort()
			}
			return
		}

		w := &recordingWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		status := w.Status()
		if status >= http.StatusInternalServerError {
			if err := h.idempotency.Release(context.Background(), key); err != nil {
				h.logger.Warn("Failed to release idempotency key", zap.Error(err))
			}
			return
		}
		if err := h.idempotency.Complete(context.Background(), key, status, w.body.Bytes()); err != nil {
			h.logger.Warn("Failed to store idempotent response", zap.Error(err))
		}
	}
}
