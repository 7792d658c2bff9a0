package validation

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type slot struct {
	Start string `validate:"required,clocktime"`
	Phone string `validate:"omitempty,phone"`
}

func TestRegisterRules(t *testing.T) {
	v := validator.New()
	require.NoError(t, RegisterRules(v))

	assert.NoError(t, v.Struct(slot{Start: "09:30", Phone: "+92 300-1234567"}))
	assert.NoError(t, v.Struct(slot{Start: "23:59"}))

	tests := []struct {
		name string
		in   slot
		tag  string
	}{
		{"hour out of range", slot{Start: "24:00"}, TagClockTime},
		{"missing minutes", slot{Start: "9"}, TagClockTime},
		{"letters in phone", slot{Start: "10:00", Phone: "call me"}, TagPhone},
		{"phone too short", slot{Start: "10:00", Phone: "123"}, TagPhone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(tt.in)
			var verrs validator.ValidationErrors
			require.ErrorAs(t, err, &verrs)
			assert.Equal(t, tt.tag, verrs[0].Tag())
		})
	}
}
