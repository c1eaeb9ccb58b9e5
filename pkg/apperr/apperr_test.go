package apperr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, http.StatusUnprocessableEntity, StatusOf(Validation("bad input")))
	assert.Equal(t, http.StatusForbidden, StatusOf(Forbidden("no")))
	assert.Equal(t, http.StatusNotFound, StatusOf(NotFound("gone")))
	assert.Equal(t, http.StatusConflict, StatusOf(Conflict("raced")))
	assert.Equal(t, http.StatusBadRequest, StatusOf(BadRequest("malformed")))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(errors.New("plain")))
}

func TestInternalWrapsCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("disk on fire")
	err := Internal("failed to hash password", cause)

	require.Equal(t, http.StatusInternalServerError, StatusOf(err))
	require.Equal(t, "failed to hash password: disk on fire", err.Error())
	require.ErrorIs(t, err, cause)
}
