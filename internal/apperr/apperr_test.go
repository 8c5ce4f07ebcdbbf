package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindStatus(t *testing.T) {
	cases := map[Kind]int{
		KindNotFound:     http.StatusNotFound,
		KindForbidden:    http.StatusForbidden,
		KindUnauthorized: http.StatusUnauthorized,
		KindConflict:     http.StatusConflict,
		KindBadRequest:   http.StatusBadRequest,
		KindInternal:     http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.Status())
	}
}

func TestFromPassesThroughTaxonomyErrors(t *testing.T) {
	err := Forbidden("no").WithCode(CodeSoleOwner)
	got := From(err)
	assert.Equal(t, KindForbidden, got.Kind)
	assert.Equal(t, CodeSoleOwner, got.Code)
	assert.Equal(t, "no", got.Message)
}

func TestFromUnwrapsNestedErrors(t *testing.T) {
	err := fmt.Errorf("outer: %w", NotFound("gone"))
	assert.Equal(t, KindNotFound, From(err).Kind)
	assert.True(t, IsKind(err, KindNotFound))
}

func TestFromFallsBackToGenericInternal(t *testing.T) {
	got := From(errors.New("pq: connection refused at 10.0.0.3"))
	assert.Equal(t, KindInternal, got.Kind)
	// The fallback must not leak internals.
	assert.NotContains(t, got.Message, "10.0.0.3")

	other := From(errors.New("different cause"))
	assert.Equal(t, got.Message, other.Message)
}

func TestIsKind(t *testing.T) {
	assert.True(t, IsKind(Conflict("dup"), KindConflict))
	assert.False(t, IsKind(Conflict("dup"), KindNotFound))
	assert.False(t, IsKind(errors.New("plain"), KindConflict))
	assert.False(t, IsKind(nil, KindConflict))
}
