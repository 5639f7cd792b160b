package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"

	app "memcap/src/app"
)

func TestValidateSignIn(t *testing.T) {
	cases := []struct {
		email, password, want string
	}{
		{"", "", "Please enter your email"},
		{"   ", "secret", "Please enter your email"},
		{"not-an-email", "", "Please enter your password"},
		{"not-an-email", "secret", "Please enter a valid email address"},
		{"a@b", "secret", "Please enter a valid email address"},
		{"a b@c.d", "secret", "Please enter a valid email address"},
	}
	for _, tc := range cases {
		err := ValidateSignIn(tc.email, tc.password)
		assert.ErrorIs(t, err, app.ErrValidation, tc.email)
		assert.Equal(t, tc.want, app.Message(err), tc.email)
	}
	assert.NoError(t, ValidateSignIn(" ada@example.com ", "x"))
}

func TestValidateSignUp(t *testing.T) {
	cases := []struct {
		req  SignUpRequest
		want string
	}{
		{SignUpRequest{Email: "ada@example.com", Password: "secret1"}, "Please enter your full name"},
		{SignUpRequest{Name: "Ada", Password: "secret1"}, "Please enter your email"},
		{SignUpRequest{Name: "Ada", Email: "ada@example.com"}, "Please enter your password"},
		{SignUpRequest{Name: "Ada", Email: "ada", Password: "123"}, "Please enter a valid email address"},
		{SignUpRequest{Name: "Ada", Email: "ada@example.com", Password: "12345"}, "Password must be at least 6 characters long"},
	}
	for _, tc := range cases {
		err := ValidateSignUp(tc.req)
		assert.ErrorIs(t, err, app.ErrValidation)
		assert.Equal(t, tc.want, app.Message(err))
	}
	assert.NoError(t, ValidateSignUp(SignUpRequest{Name: "Ada", Email: "ada@example.com", Password: "123456"}))
}
