package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	app "memcap/src/app"
)

var kindNames = map[error]string{
	app.ErrNotAuthenticated: "not_authenticated",
	app.ErrValidation:       "validation",
	app.ErrReadFailure:      "read_failure",
	app.ErrUploadFailure:    "upload_failure",
	app.ErrInsertFailure:    "insert_failure",
	app.ErrNotFound:         "not_found",
	app.ErrRemoteFunction:   "remote_function_failure",
}

func statusFor(err error) int {
	switch app.Kind(err) {
	case app.ErrValidation, app.ErrReadFailure:
		return http.StatusBadRequest
	case app.ErrNotAuthenticated:
		return http.StatusUnauthorized
	case app.ErrNotFound:
		return http.StatusNotFound
	case app.ErrUploadFailure:
		if errors.Is(err, app.ErrObjectExists) {
			return http.StatusConflict
		}
		return http.StatusBadGateway
	case app.ErrInsertFailure, app.ErrRemoteFunction:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// respondError renders err once as the error envelope.
func respondError(c *gin.Context, err error) {
	kind, ok := kindNames[app.Kind(err)]
	if !ok {
		kind = "internal"
	}
	message := app.Message(err)
	if kind == "internal" {
		message = "Something went wrong. Please try again."
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(statusFor(err), gin.H{"status": "error", "kind": kind, "message": message})
}

func respondOK(c *gin.Context, status int, payload any) {
	c.JSON(status, gin.H{"status": "success", "payload": payload})
}
