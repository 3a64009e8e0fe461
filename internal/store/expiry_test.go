package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextExpiryTimedNeverTouches(t *testing.T) {
	e := ExpiryEngine{}
	newExpiry, touched := e.NextExpiry(100, 0, 200)
	assert.False(t, touched)
	assert.Equal(t, int64(200), newExpiry)
}

func TestNextExpirySlidingExtends(t *testing.T) {
	e := ExpiryEngine{}
	newExpiry, touched := e.NextExpiry(7, 10, 17)
	assert.True(t, touched)
	assert.Equal(t, int64(17), newExpiry)
}

func TestNextExpirySlidingRefusesPastExpiry(t *testing.T) {
	e := ExpiryEngine{}
	_, touched := e.NextExpiry(30, 10, 26)
	assert.False(t, touched)
}
