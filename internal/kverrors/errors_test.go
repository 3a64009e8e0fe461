package kverrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsComparesKindNotCause(t *testing.T) {
	sentinel := New("", ParentMissing, nil)
	wrapped := New("Upsert", ParentMissing, errors.New("FOREIGN KEY constraint failed"))

	assert.True(t, errors.Is(wrapped, sentinel))
	assert.False(t, errors.Is(wrapped, New("", TooManyParents, nil)))
}

func TestErrorUnwrapReachesCause(t *testing.T) {
	cause := errors.New("boom")
	err := New("Get", Transient, cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestKindStringKnownAndUnknown(t *testing.T) {
	assert.Equal(t, "parent_missing", ParentMissing.String())
	assert.Equal(t, "unknown", Kind(999).String())
}
