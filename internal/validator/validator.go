package validator

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{2,31}$`)
	joinCodePattern = regexp.MustCompile(`^[A-Za-z0-9]{8}$`)
)

type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New()

	// Custom validators
	v.RegisterValidation("username", validateUsername)
	v.RegisterValidation("join_code", validateJoinCode)

	return &Validator{validate: v}
}

func (v *Validator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

// validateUsername accepts 3-32 lowercase alphanumerics with ._- separators.
// Mixed-case input is normalized before validation, not rejected here.
func validateUsername(fl validator.FieldLevel) bool {
	return usernamePattern.MatchString(fl.Field().String())
}

// validateJoinCode accepts the 8-character code in any case; lookup
// normalizes to uppercase.
func validateJoinCode(fl validator.FieldLevel) bool {
	return joinCodePattern.MatchString(fl.Field().String())
}
