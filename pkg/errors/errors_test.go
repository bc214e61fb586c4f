package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testCode  = MustNewCode("test.code")
	otherCode = MustNewCode("test.other")
)

func TestNew(t *testing.T) {
	cause := stderrors.New("disk full")
	err := New(testCode, "write checkpoint", cause)

	assert.Equal(t, "write checkpoint", err.Message)
	assert.Equal(t, "test.code", err.Code.String())
	assert.Equal(t, "write checkpoint: disk full", err.Error())
	assert.False(t, err.Timestamp.IsZero())
	assert.NotEmpty(t, err.Stack)
	assert.Same(t, cause, stderrors.Unwrap(err))
}

func TestNewfWithoutCause(t *testing.T) {
	err := Newf(CommonValidation, "batch_size must be positive, got %d", 0)
	assert.Equal(t, "batch_size must be positive, got 0", err.Error())
	assert.Nil(t, err.Cause)
}

func TestAddContext(t *testing.T) {
	err := New(testCode, "boom", nil).AddContext("table", "users").AddContext("rows", "10")
	assert.Equal(t, map[string]string{"table": "users", "rows": "10"}, GetContext(err))
}

func TestHasCodeWalksChain(t *testing.T) {
	inner := New(otherCode, "inner", nil)
	outer := New(testCode, "outer", inner)
	wrapped := fmt.Errorf("context: %w", outer)

	assert.True(t, HasCode(wrapped, testCode))
	assert.True(t, HasCode(wrapped, otherCode))
	assert.False(t, HasCode(wrapped, CommonTimeout))
	assert.False(t, HasCode(stderrors.New("plain"), testCode))
	assert.False(t, HasCode(nil, testCode))
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", New(testCode, "first", nil))
	assert.True(t, stderrors.Is(err, New(testCode, "different message", nil)))
	assert.False(t, stderrors.Is(err, New(otherCode, "first", nil)))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, "test.code", GetCode(fmt.Errorf("x: %w", New(testCode, "m", nil))))
	assert.Equal(t, "", GetCode(stderrors.New("plain")))
}

func TestFormatError(t *testing.T) {
	err := New(testCode, "copy failed", stderrors.New("timeout")).
		AddContext("table", "users").
		AddContext("batch", "3")

	out := FormatError(err)
	require.True(t, strings.HasPrefix(out, "Code: test.code\nMessage: copy failed\nContext:"))
	assert.Contains(t, out, "  batch: 3\n  table: users")
	assert.Contains(t, out, "Cause: timeout")

	assert.Equal(t, "plain", FormatError(stderrors.New("plain")))
}

type transformable struct{ msg string }

func (m *transformable) Error() string { return m.msg }

func (m *transformable) Transform() *Error {
	return New(CommonInternal, m.msg, nil).AddContext("transformed", "true")
}

func TestAsError(t *testing.T) {
	assert.Nil(t, AsError(nil))

	existing := New(testCode, "existing", nil)
	assert.Same(t, existing, AsError(existing))

	converted := AsError(&transformable{msg: "custom"})
	assert.Equal(t, "true", converted.Context["transformed"])

	generic := AsError(stderrors.New("standard"))
	assert.Equal(t, CommonInternal.String(), generic.Code.String())
	assert.Equal(t, "standard", generic.Message)
}
