package toolerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	err := Validation("search_patients", ErrNoFilter, "")
	assert.Equal(t, "search_patients: at least one filter is required", err.Error())

	err = Configuration("acquire", ErrUnknownDatabase, "%q", "Nope")
	assert.Equal(t, `acquire: "Nope": unknown database`, err.Error())

	err = Capacity("", "result too large")
	assert.Equal(t, "result too large", err.Error())
}

func TestCategoryOfWrapped(t *testing.T) {
	inner := Connection("execute", errors.New("link down"))
	wrapped := fmt.Errorf("retry failed: %w", inner)

	assert.Equal(t, CategoryConnection, CategoryOf(wrapped))
	assert.True(t, Is(wrapped, CategoryConnection))
	assert.False(t, Is(nil, CategoryConnection))
}

func TestCategoryOfForeignError(t *testing.T) {
	assert.Equal(t, CategoryDriver, CategoryOf(errors.New("syntax error")))
}

func TestUnwrapReachesSentinel(t *testing.T) {
	err := Validation("update_record", ErrNoWhere, "")
	assert.ErrorIs(t, err, ErrNoWhere)
}
