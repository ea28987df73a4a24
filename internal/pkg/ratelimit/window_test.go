package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindowAllowOncePerWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	w := NewWindow(5 * time.Minute)
	w.nowFn = func() time.Time { return now }

	assert.True(t, w.Allow("BTC-PERP"))
	assert.False(t, w.Allow("BTC-PERP"))

	// independent keys do not share permits
	assert.True(t, w.Allow("ETH-PERP"))

	now = now.Add(4 * time.Minute)
	assert.False(t, w.Allow("BTC-PERP"))

	now = now.Add(time.Minute)
	assert.True(t, w.Allow("BTC-PERP"))
}

func TestWindowReset(t *testing.T) {
	w := NewWindow(time.Hour)
	assert.True(t, w.Allow("k"))
	assert.False(t, w.Allow("k"))
	w.Reset("k")
	assert.True(t, w.Allow("k"))
}
