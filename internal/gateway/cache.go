package gateway

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// cacheEntry 缓存条目
type cacheEntry struct {
	data        []byte
	contentType string
	etag        string
	expiresAt   time.Time
}

// ResponseCache 公开只读接口的短时响应缓存
// 只缓存 200 响应，缓存键为路径加查询参数
type ResponseCache struct {
	mu         sync.Mutex
	entries    map[string]*cacheEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// NewResponseCache 创建响应缓存
func NewResponseCache(ttl time.Duration, maxEntries int) *ResponseCache {
	return &ResponseCache{
		entries:    make(map[string]*cacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (c *ResponseCache) get(key string) *cacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil
	}
	return entry
}

func (c *ResponseCache) set(key string, entry *cacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.maxEntries {
		c.evictLocked()
	}
	c.entries[key] = entry
}

// evictLocked 删除过期条目，仍然超限时删除最早过期的一条
func (c *ResponseCache) evictLocked() {
	now := c.now()
	var oldestKey string
	var oldest time.Time
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
			continue
		}
		if oldestKey == "" || entry.expiresAt.Before(oldest) {
			oldestKey, oldest = key, entry.expiresAt
		}
	}
	if len(c.entries) >= c.maxEntries && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// Middleware 缓存中间件，支持 If-None-Match
func (c *ResponseCache) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		if r.URL.RawQuery != "" {
			key += "?" + r.URL.RawQuery
		}

		if entry := c.get(key); entry != nil {
			if r.Header.Get("If-None-Match") == entry.etag {
				w.WriteHeader(http.StatusNotModified)
				return
			}
			c.write(w, entry, "HIT")
			return
		}

		recorder := &cacheRecorder{header: make(http.Header), statusCode: http.StatusOK}
		next.ServeHTTP(recorder, r)

		if recorder.statusCode != http.StatusOK {
			for k, v := range recorder.header {
				w.Header()[k] = v
			}
			w.WriteHeader(recorder.statusCode)
			w.Write(recorder.body.Bytes())
			return
		}

		entry := &cacheEntry{
			data:        recorder.body.Bytes(),
			contentType: recorder.header.Get("Content-Type"),
			etag:        fmt.Sprintf(`"%x"`, md5.Sum(recorder.body.Bytes())),
			expiresAt:   c.now().Add(c.ttl),
		}
		c.set(key, entry)
		c.write(w, entry, "MISS")
	})
}

func (c *ResponseCache) write(w http.ResponseWriter, entry *cacheEntry, status string) {
	if entry.contentType != "" {
		w.Header().Set("Content-Type", entry.contentType)
	}
	w.Header().Set("ETag", entry.etag)
	w.Header().Set("Cache-Control", fmt.Sprintf("max-age=%d", int(c.ttl.Seconds())))
	w.Header().Set("X-Cache", status)
	w.WriteHeader(http.StatusOK)
	w.Write(entry.data)
}

// cacheRecorder 缓冲下游响应
type cacheRecorder struct {
	header     http.Header
	statusCode int
	body       bytes.Buffer
}

func (r *cacheRecorder) Header() http.Header {
	return r.header
}

func (r *cacheRecorder) WriteHeader(code int) {
	r.statusCode = code
}

func (r *cacheRecorder) Write(data []byte) (int, error) {
	return r.body.Write(data)
}
