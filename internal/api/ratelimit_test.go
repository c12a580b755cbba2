package api

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_BucketPerRequester(t *testing.T) {
	l := NewRateLimiter(0.001, 2)
	a, b := uuid.New(), uuid.New()

	assert.True(t, l.Allow(a))
	assert.True(t, l.Allow(a))
	assert.False(t, l.Allow(a))

	assert.True(t, l.Allow(b), "another requester has its own bucket")
}

func TestRateLimiter_ZeroBurstStillAllowsOne(t *testing.T) {
	l := NewRateLimiter(0.001, 0)
	id := uuid.New()

	assert.True(t, l.Allow(id))
	assert.False(t, l.Allow(id))
}
