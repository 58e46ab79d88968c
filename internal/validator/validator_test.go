package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateUsername(t *testing.T) {
	v := New()

	type payload struct {
		Username string `validate:"required,username"`
	}

	tests := []struct {
		name     string
		username string
		valid    bool
	}{
		{name: "simple", username: "maria", valid: true},
		{name: "with_separators", username: "maria.lopez_3b", valid: true},
		{name: "digits", username: "alumno2026", valid: true},
		{name: "min_length", username: "ana", valid: true},
		{name: "max_length", username: "a234567890123456789012345678901b", valid: true},
		{name: "too_short", username: "ab", valid: false},
		{name: "too_long", username: "a2345678901234567890123456789012x", valid: false},
		{name: "uppercase", username: "Maria", valid: false},
		{name: "leading_separator", username: ".maria", valid: false},
		{name: "spaces", username: "maria lopez", valid: false},
		{name: "empty", username: "", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(payload{Username: tt.username})
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidateJoinCode(t *testing.T) {
	v := New()

	type payload struct {
		Code string `validate:"required,join_code"`
	}

	tests := []struct {
		name  string
		code  string
		valid bool
	}{
		{name: "uppercase", code: "ABCD2345", valid: true},
		{name: "lowercase", code: "abcd2345", valid: true},
		{name: "mixed", code: "AbCd2345", valid: true},
		{name: "too_short", code: "ABC234", valid: false},
		{name: "too_long", code: "ABCD23456", valid: false},
		{name: "punctuation", code: "ABCD-234", valid: false},
		{name: "empty", code: "", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(payload{Code: tt.code})
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
