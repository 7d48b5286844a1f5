package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "bustix:v1:route:r-1", KeyRoute("r-1"))
	assert.Equal(t, "bustix:v1:rl:bookings:ip:10.0.0.1", KeyRateLimit("bookings", "ip:10.0.0.1"))
	assert.Equal(t, "bustix:v1:idem:bookings:u-1:abc", KeyIdemBooking("u-1", "abc"))
	assert.Equal(t, "bustix:v1:routes:changed", ChannelRoutesChanged())
}

func TestIdempotencyKeysAreScopedPerUser(t *testing.T) {
	assert.NotEqual(t, KeyIdemBooking("u-1", "k"), KeyIdemBooking("u-2", "k"))
}

func TestToInt(t *testing.T) {
	assert.EqualValues(t, 7, toInt(int64(7)))
	assert.EqualValues(t, 7, toInt(7))
	assert.EqualValues(t, 7, toInt(7.0))
	assert.EqualValues(t, 42, toInt("42"))
	assert.EqualValues(t, 0, toInt(nil))
}

func TestRandomHex(t *testing.T) {
	a, b := randomHex(12), randomHex(12)
	assert.Len(t, a, 24)
	assert.NotEqual(t, a, b)
}
