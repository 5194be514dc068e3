package core

import (
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitValidators_academicYear(t *testing.T) {
	eng := en.New()
	translator, _ := ut.New(eng, eng).GetTranslator("en")
	validate := validator.New()
	InitValidators(validate, translator)

	type filters struct {
		AcademicYear string `json:"academic_year" validate:"omitempty,academicyear"`
	}

	tests := []struct {
		year  string
		valid bool
	}{
		{"", true},
		{"2023/2024", true},
		{"2023/2025", false},
		{"2024/2023", false},
		{"2023-2024", false},
		{"23/24", false},
	}
	for _, tt := range tests {
		t.Run(tt.year, func(t *testing.T) {
			err := validate.Struct(filters{AcademicYear: tt.year})
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			err = TranslateValidationErrors(err, translator)
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			require.Len(t, vErr.Fields, 1)
			assert.Equal(t, "academic_year", vErr.Fields[0].Field)
			assert.Equal(t, academicYearText, vErr.Fields[0].Error)
		})
	}
}

func TestInitValidators_onlyKnownTags(t *testing.T) {
	eng := en.New()
	translator, _ := ut.New(eng, eng).GetTranslator("en")
	validate := validator.New()
	InitValidators(validate, translator)

	type named struct {
		Name string `validate:"alphanum_"`
	}
	// an unregistered tag makes the validator panic
	assert.Panics(t, func() { _ = validate.Struct(named{Name: "x"}) })
}
