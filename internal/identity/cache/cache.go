// Package cache keeps a short-lived email → provider-case mapping in Redis so
// repeat verification requests skip the paginated provider scan. It is an
// optimization only: a miss or a Redis failure falls through to the provider
// lookup, and correctness never depends on cache contents.
package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	platformredis "op-atlas/internal/platform/redis"
)

const keyPrefix = "identity:case-lookup:"

// Entry is the cached provider case/inquiry pair.
type Entry struct {
	CaseID    string `json:"case_id"`
	InquiryID string `json:"inquiry_id"`
}

// CaseLookupCache is nil-safe: a nil cache always misses.
type CaseLookupCache struct {
	client *platformredis.Client
	ttl    time.Duration
}

func NewCaseLookupCache(client *platformredis.Client, ttl time.Duration) *CaseLookupCache {
	if client == nil {
		return nil
	}
	return &CaseLookupCache{client: client, ttl: ttl}
}

// Get returns the cached entry for an email, or nil on miss or error.
func (c *CaseLookupCache) Get(ctx context.Context, email string) *Entry {
	if c == nil {
		return nil
	}
	raw, err := c.client.Get(ctx, key(email)).Result()
	if err != nil {
		return nil
	}
	var entry Entry
	if json.Unmarshal([]byte(raw), &entry) != nil {
		return nil
	}
	return &entry
}

// Set stores an entry best-effort; failures are ignored.
func (c *CaseLookupCache) Set(ctx context.Context, email string, entry Entry) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, key(email), raw, c.ttl).Err()
}

func key(email string) string {
	return keyPrefix + strings.ToLower(strings.TrimSpace(email))
}
