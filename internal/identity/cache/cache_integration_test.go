//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	platformredis "op-atlas/internal/platform/redis"
	"op-atlas/pkg/testutil/containers"
)

func TestCaseLookupCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	rc := containers.NewRedisContainer(t)
	client := &platformredis.Client{Client: rc.Client}

	lookup := NewCaseLookupCache(client, time.Minute)

	assert.Nil(t, lookup.Get(ctx, "ada@example.com"))

	lookup.Set(ctx, "ada@example.com", Entry{CaseID: "case_1", InquiryID: "inq_1"})

	entry := lookup.Get(ctx, "ada@example.com")
	if assert.NotNil(t, entry) {
		assert.Equal(t, "case_1", entry.CaseID)
		assert.Equal(t, "inq_1", entry.InquiryID)
	}

	// Lookups are keyed case-insensitively on the email.
	assert.NotNil(t, lookup.Get(ctx, "  ADA@Example.com "))
}

func TestCaseLookupCacheHonorsTTL(t *testing.T) {
	ctx := context.Background()
	rc := containers.NewRedisContainer(t)
	client := &platformredis.Client{Client: rc.Client}

	lookup := NewCaseLookupCache(client, 50*time.Millisecond)
	lookup.Set(ctx, "brief@example.com", Entry{CaseID: "case_2"})

	assert.Eventually(t, func() bool {
		return lookup.Get(ctx, "brief@example.com") == nil
	}, 2*time.Second, 25*time.Millisecond)
}
