package auth

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	app "memcap/src/app"
)

// Anything shaped like a@b.c.
var looseEmail = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const minPasswordLength = 6

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("loose_email", func(fl validator.FieldLevel) bool {
		return looseEmail.MatchString(fl.Field().String())
	})
	return v
}

type check struct {
	value   string
	tag     string
	message string
}

// firstFailure runs the checks in order and reports the first one that fails.
func firstFailure(checks []check) error {
	for _, c := range checks {
		if err := validate.Var(c.value, c.tag); err != nil {
			return app.NewFailure(app.ErrValidation, c.message, err)
		}
	}
	return nil
}

// ValidateSignIn checks the login form before any network call.
func ValidateSignIn(email, password string) error {
	email = strings.TrimSpace(email)
	return firstFailure([]check{
		{email, "required", "Please enter your email"},
		{password, "required", "Please enter your password"},
		{email, "loose_email", "Please enter a valid email address"},
	})
}

// ValidateSignUp checks the registration form before any network call.
func ValidateSignUp(req SignUpRequest) error {
	email := strings.TrimSpace(req.Email)
	return firstFailure([]check{
		{strings.TrimSpace(req.Name), "required", "Please enter your full name"},
		{email, "required", "Please enter your email"},
		{req.Password, "required", "Please enter your password"},
		{email, "loose_email", "Please enter a valid email address"},
		{req.Password, fmt.Sprintf("min=%d", minPasswordLength), "Password must be at least 6 characters long"},
	})
}
