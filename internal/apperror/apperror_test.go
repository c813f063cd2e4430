package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelMatching(t *testing.T) {
	err := NotFound("application", "42")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrValidation))
	assert.Equal(t, "application 42 not found", err.Error())

	wrapped := fmt.Errorf("handler: %w", err)
	assert.True(t, errors.Is(wrapped, ErrNotFound))
	assert.Equal(t, KindNotFound, KindOf(wrapped))
}

func TestPersistenceKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Persistence("replace steps: delete existing", cause)

	assert.True(t, errors.Is(err, ErrPersistence))
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "replace steps: delete existing")
	assert.Contains(t, err.Error(), "connection reset")
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap("op", nil))

	err := Wrap("submit", InvalidTransition("approved", "submit"))
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Contains(t, err.Error(), "submit: action")

	err = Wrap("load application", errors.New("boom"))
	assert.Equal(t, KindPersistence, KindOf(err))
}

func TestKindOfForeignError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}
