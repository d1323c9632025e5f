package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeClock_FiresInOrder(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFakeClock(start)
	var fired []string

	c.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })
	c.AfterFunc(time.Second, func() {
		fired = append(fired, "a")
		c.AfterFunc(500*time.Millisecond, func() { fired = append(fired, "a2") })
	})
	stop := c.AfterFunc(1500*time.Millisecond, func() { fired = append(fired, "never") })
	assert.True(t, stop.Stop())
	assert.False(t, stop.Stop())

	c.Advance(1999 * time.Millisecond)
	assert.Equal(t, []string{"a", "a2"}, fired)
	c.Advance(time.Millisecond)
	assert.Equal(t, []string{"a", "a2", "b"}, fired)
	assert.Equal(t, start.Add(2*time.Second), c.Now())
	assert.Zero(t, c.Pending())
}
