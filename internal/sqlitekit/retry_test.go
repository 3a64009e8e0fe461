package sqlitekit

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryableErrorMatchesBusyVariants(t *testing.T) {
	assert.True(t, IsRetryableError(errors.New("database is locked")))
	assert.True(t, IsRetryableError(errors.New("SQLITE_BUSY: database table is locked")))
	assert.False(t, IsRetryableError(errors.New("no such table")))
	assert.False(t, IsRetryableError(nil))
}

func TestShouldAutoCleanupBoundaries(t *testing.T) {
	assert.False(t, ShouldAutoCleanup(0))
	assert.True(t, ShouldAutoCleanup(1))
}
