package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type TestStruct struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
	Age     int    `json:"age" validate:"required,gte=0,max=150"`
	Website string `validate:"omitempty,url"`
}

func TestValidateStruct(t *testing.T) {
	t.Run("valid struct", func(t *testing.T) {
		s := TestStruct{
			Name:  "John Doe",
			Email: "john@example.com",
			Age:   30,
		}

		err := ValidateStruct(&s)
		assert.NoError(t, err)
	})

	t.Run("missing required field reported by json name", func(t *testing.T) {
		s := TestStruct{
			Email: "john@example.com",
			Age:   30,
		}

		err := ValidateStruct(&s)
		assert.Error(t, err)
		assert.True(t, IsValidationError(err))

		fields := GetValidationFields(err)
		assert.Equal(t, "name is required", fields["name"])
	})

	t.Run("invalid email", func(t *testing.T) {
		s := TestStruct{
			Name:  "John Doe",
			Email: "invalid-email",
			Age:   30,
		}

		err := ValidateStruct(&s)
		assert.True(t, IsValidationError(err))
		assert.Contains(t, GetValidationFields(err), "email")
	})

	t.Run("untagged field keeps go name", func(t *testing.T) {
		s := TestStruct{
			Name:    "John Doe",
			Email:   "john@example.com",
			Age:     30,
			Website: "not a url",
		}

		err := ValidateStruct(&s)
		assert.Equal(t, "Website must be a valid URL", GetValidationFields(err)["Website"])
	})

	t.Run("age out of range", func(t *testing.T) {
		s := TestStruct{
			Name:  "John Doe",
			Email: "john@example.com",
			Age:   200,
		}

		err := ValidateStruct(&s)
		fields := GetValidationFields(err)
		assert.Equal(t, "age must be at most 150", fields["age"])
	})
}

func TestNewValidationError(t *testing.T) {
	s := TestStruct{
		Email: "invalid-email",
		Age:   200,
	}

	err := ValidateStruct(&s)
	require.Error(t, err)

	validationErr, ok := err.(*ValidationError)
	require.True(t, ok)

	assert.Equal(t, "Validation failed", validationErr.Message)
	assert.Contains(t, validationErr.Fields, "name")
	assert.Contains(t, validationErr.Fields, "email")
	assert.Contains(t, validationErr.Fields, "age")
}

func TestIsValidationError(t *testing.T) {
	assert.True(t, IsValidationError(&ValidationError{Message: "test"}))
	assert.False(t, IsValidationError(assert.AnError))
	assert.Nil(t, GetValidationFields(assert.AnError))
}

func TestParseUUID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", "550e8400-e29b-41d4-a716-446655440000", false},
		{"surrounding space", " 550e8400-e29b-41d4-a716-446655440000 ", false},
		{"numeric id", "42", true},
		{"empty", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseUUID(tt.input, "id")
			if tt.wantErr {
				assert.True(t, IsValidationError(err))
				assert.Contains(t, GetValidationFields(err), "id")
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestParseOptionalFloat(t *testing.T) {
	v, err := ParseOptionalFloat("", "minPrice")
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = ParseOptionalFloat("2.5", "minPrice")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, 2.5, *v)

	_, err = ParseOptionalFloat("cheap", "maxPrice")
	assert.True(t, IsValidationError(err))
}
