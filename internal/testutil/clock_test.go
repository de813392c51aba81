package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClock_PinnedAndAdvanced(t *testing.T) {
	start := time.Date(2024, time.June, 1, 10, 0, 0, 0, time.UTC)
	c := NewClock(start)

	assert.Equal(t, start, c.Now())
	assert.Equal(t, start, c.Now(), "reading must not advance")

	next := c.Advance(90 * time.Minute)
	assert.Equal(t, start.Add(90*time.Minute), next)
	assert.Equal(t, next, c.Now())
}
