package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	app "memcap/src/app"
)

// ExternalHandler exposes the remote post-processing functions.
type ExternalHandler struct {
	details *app.Details
}

func NewExternalHandler(details *app.Details) *ExternalHandler {
	return &ExternalHandler{details: details}
}

// Animate runs the animate function for one owned photo and waits for its envelope.
func (e *ExternalHandler) Animate(c *gin.Context) {
	session := currentSession(c)
	env, err := e.details.Animate(c.Request.Context(), c.Param("id"), &session.User, session.AccessToken)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, env)
}
