package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name    string   `validate:"required"`
	Weight  float64  `validate:"gte=0"`
	Options []string `validate:"omitempty,min=1"`
}

func TestValidate(t *testing.T) {
	got, err := Validate(sample{Name: "guest", Weight: 0.5})
	require.NoError(t, err)
	assert.Equal(t, "guest", got.Name)

	_, err = Validate(sample{Weight: -1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "'sample.Name': rule 'required'")
	assert.Contains(t, err.Error(), "'sample.Weight': rule 'gte' expected '0', got '-1'")
	assert.Contains(t, err.Error(), "; ")
}

func TestValidationErrorToString_PassesThroughOtherErrors(t *testing.T) {
	err := assert.AnError
	assert.Equal(t, err, ValidationErrorToString(sample{}, err))
}
