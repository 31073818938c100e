package validation

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type slot struct {
	Start string `json:"start_time" validate:"required,hhmm"`
}

func TestHHMMValidation(t *testing.T) {
	v := New()
	require.NoError(t, v.Struct(slot{Start: "08:30"}))
	require.NoError(t, v.Struct(slot{Start: "23:59"}))

	err := v.Struct(slot{Start: "24:00"})
	require.Error(t, err)
	var verrs validator.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, "start_time", verrs[0].Field())
	assert.Equal(t, "hhmm", verrs[0].Tag())

	require.Error(t, v.Struct(slot{Start: "8:30"}))
}
