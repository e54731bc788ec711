package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/presencepro-api/pkg/middleware/requestid"
)

const responseMetaKey = "response_meta"

type responseMeta struct {
	started time.Time
	values  map[string]interface{}
}

// WithResponseMeta starts the per-request meta block rendered into the
// envelope of cacheable responses.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(responseMetaKey, &responseMeta{started: time.Now(), values: map[string]interface{}{}})
		c.Next()
	}
}

// SetCacheHit records whether the payload came from Redis.
func SetCacheHit(c *gin.Context, hit bool) {
	metaFor(c).values["cache_hit"] = hit
}

// ResponseMeta snapshots the meta block with processing time and request id.
func ResponseMeta(c *gin.Context) map[string]interface{} {
	m := metaFor(c)
	out := make(map[string]interface{}, len(m.values)+2)
	for k, v := range m.values {
		out[k] = v
	}
	out["processing_time_ms"] = time.Since(m.started).Milliseconds()
	if id := requestid.Value(c); id != "" {
		out["request_id"] = id
	}
	return out
}

func metaFor(c *gin.Context) *responseMeta {
	if v, ok := c.Get(responseMetaKey); ok {
		if m, ok := v.(*responseMeta); ok {
			return m
		}
	}
	m := &responseMeta{started: time.Now(), values: map[string]interface{}{}}
	c.Set(responseMetaKey, m)
	return m
}
