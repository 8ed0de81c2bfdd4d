package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessageFallbacks(t *testing.T) {
	cause := errors.New("boom")

	assert.Equal(t, "custom", New(CodeAPI, "custom", cause).Error())
	assert.Equal(t, "boom", New(CodeAPI, "", cause).Error())
	assert.Equal(t, "api_error", New(CodeAPI, "", nil).Error())
}

func TestWrapPrefixesMessage(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(CodeExport, "write batch", cause)

	assert.Equal(t, "write batch: disk full", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Nil(t, Wrap(CodeExport, "noop", nil))
}

func TestCodeOfReturnsOutermostCode(t *testing.T) {
	inner := New(CodeAPI, "status 500", nil)
	outer := Wrap(CodeExport, "fetch issues", inner)

	assert.Equal(t, CodeExport, CodeOf(outer))
	assert.Equal(t, CodeAPI, CodeOf(inner))
	assert.Equal(t, CodeUnknown, CodeOf(errors.New("plain")))
}

func TestIsCodeLooksThroughNestedCodes(t *testing.T) {
	inner := New(CodeNetwork, "dial tcp: refused", nil)
	outer := fmt.Errorf("pipeline: %w", Wrap(CodeExport, "count", inner))

	assert.True(t, IsCode(outer, CodeExport))
	assert.True(t, IsCode(outer, CodeNetwork))
	assert.False(t, IsCode(outer, CodeAuthentication))
	assert.False(t, IsCode(nil, CodeExport))
}
