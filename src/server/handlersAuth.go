package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	app "memcap/src/app"
	auth "memcap/src/auth"
	cfg "memcap/src/configuration"
)

type (
	AuthHandler struct {
		sessions               *auth.Manager
		URL                    string
		AccessTokenCookieName  string
		RefreshTokenCookieName string
		refreshWindow          time.Duration
	}

	LoginBody struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	RefreshBody struct {
		RefreshToken string `json:"refresh_token"`
	}
)

func NewAuthHandler(config *cfg.Properties, sessions *auth.Manager) *AuthHandler {
	return &AuthHandler{
		sessions:               sessions,
		URL:                    config.Server.Name,
		AccessTokenCookieName:  config.Auth.AccessTokenCookieName,
		RefreshTokenCookieName: config.Auth.RefreshTokenCookieName,
		refreshWindow:          config.Session.RefreshWindow,
	}
}

func (a *AuthHandler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (a *AuthHandler) SignUp(c *gin.Context) {
	var requestBody auth.SignUpRequest
	if err := c.ShouldBindJSON(&requestBody); err != nil {
		respondError(c, app.NewFailure(app.ErrValidation, "Malformed sign up request", err))
		return
	}
	res, err := a.sessions.SignUp(c.Request.Context(), requestBody)
	if err != nil {
		respondError(c, err)
		return
	}
	if res.Session != nil {
		a.setCookies(c, res.Session)
	}
	respondOK(c, http.StatusCreated, res)
}

func (a *AuthHandler) Login(c *gin.Context) {
	var requestBody LoginBody
	if err := c.ShouldBindJSON(&requestBody); err != nil {
		respondError(c, app.NewFailure(app.ErrValidation, "Malformed login request", err))
		return
	}
	session, err := a.sessions.SignIn(c.Request.Context(), requestBody.Email, requestBody.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	a.setCookies(c, session)
	respondOK(c, http.StatusOK, session)
}

// Refresh accepts the refresh token in the body or in its cookie.
func (a *AuthHandler) Refresh(c *gin.Context) {
	var requestBody RefreshBody
	_ = c.ShouldBindJSON(&requestBody)
	if requestBody.RefreshToken == "" {
		requestBody.RefreshToken, _ = c.Cookie(a.RefreshTokenCookieName)
	}
	session, err := a.sessions.Refresh(c.Request.Context(), requestBody.RefreshToken)
	if err != nil {
		respondError(c, err)
		return
	}
	a.setCookies(c, session)
	respondOK(c, http.StatusOK, session)
}

func (a *AuthHandler) Logout(c *gin.Context) {
	if err := a.sessions.SignOut(c.Request.Context(), currentSession(c)); err != nil {
		respondError(c, err)
		return
	}
	c.SetCookie(a.AccessTokenCookieName, "", -1, "/", a.URL, false, true)
	c.SetCookie(a.RefreshTokenCookieName, "", -1, "/", a.URL, false, true)
	c.JSON(http.StatusOK, gin.H{"status": "success", "redirect": loginPath})
}

func (a *AuthHandler) Account(c *gin.Context) {
	respondOK(c, http.StatusOK, currentSession(c).User)
}

func (a *AuthHandler) setCookies(c *gin.Context, s *app.Session) {
	maxAge := int(time.Until(s.ExpiresAt).Seconds())
	c.SetCookie(a.AccessTokenCookieName, s.AccessToken, maxAge, "/", a.URL, false, true)
	c.SetCookie(a.RefreshTokenCookieName, s.RefreshToken, maxAge+int(a.refreshWindow.Seconds()), "/", a.URL, false, true)
}
