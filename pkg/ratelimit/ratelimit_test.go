package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllow(t *testing.T) {
	t.Run("burst is granted immediately", func(t *testing.T) {
		limiter := New(1, 3)

		for i := 0; i < 3; i++ {
			assert.True(t, limiter.Allow("caller-a"))
		}
		assert.False(t, limiter.Allow("caller-a"))
	})

	t.Run("callers are limited independently", func(t *testing.T) {
		limiter := New(1, 1)

		assert.True(t, limiter.Allow("caller-a"))
		assert.False(t, limiter.Allow("caller-a"))
		assert.True(t, limiter.Allow("caller-b"))
	})

	t.Run("buckets are tracked per key", func(t *testing.T) {
		limiter := New(1, 1)

		limiter.Allow("caller-a")
		limiter.Allow("caller-b")
		limiter.Allow("caller-a")

		assert.Equal(t, 2, limiter.Len())
	})
}
