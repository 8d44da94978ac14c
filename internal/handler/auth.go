package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/taskhive/backend/internal/model"
	"github.com/taskhive/backend/internal/service"
)

const (
	accessCookieName  = "access_token"
	refreshCookieName = "refresh_token"
)

// CookieConfig carries the attribute set shared by both token cookies.
// Clearing uses the same attributes with a negative max age.
type CookieConfig struct {
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

// DevCookieConfig is SameSite=Lax without Secure; production uses
// SameSite=None with Secure so the cookies survive cross-site requests.
func DevCookieConfig(domain string) CookieConfig {
	return CookieConfig{Path: "/", Domain: domain, Secure: false, SameSite: http.SameSiteLaxMode}
}

func ProdCookieConfig(domain string) CookieConfig {
	return CookieConfig{Path: "/", Domain: domain, Secure: true, SameSite: http.SameSiteNoneMode}
}

type AuthHandler struct {
	svc       *service.AuthService
	cookieCfg CookieConfig
}

func NewAuthHandler(svc *service.AuthService, cookieCfg CookieConfig) *AuthHandler {
	return &AuthHandler{svc: svc, cookieCfg: cookieCfg}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Message: "invalid request"})
		return
	}

	user, pair, err := h.svc.Register(c.Request.Context(), req.Email, req.Name, req.Password,
		c.Request.UserAgent(), c.ClientIP())
	if err != nil {
		writeAuthError(c, err)
		return
	}

	h.setAuthCookies(c, pair)
	c.JSON(http.StatusCreated, model.Response{Message: "Registration successful", Data: user})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Message: "invalid request"})
		return
	}

	user, pair, err := h.svc.Login(c.Request.Context(), req.Email, req.Password,
		c.Request.UserAgent(), c.ClientIP())
	if err != nil {
		writeAuthError(c, err)
		return
	}

	h.setAuthCookies(c, pair)
	c.JSON(http.StatusOK, model.Response{Message: "Login successful", Data: user})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	refreshToken, _ := c.Cookie(refreshCookieName)
	if err := h.svc.Logout(c.Request.Context(), refreshToken); err != nil {
		writeAuthError(c, err)
		return
	}

	h.clearAuthCookies(c)
	c.JSON(http.StatusOK, model.Response{Message: "Logout successful", Data: nil})
}

func (h *AuthHandler) LogoutAll(c *gin.Context) {
	user := GetAuthUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Message: "Not authenticated"})
		return
	}

	if err := h.svc.LogoutAll(c.Request.Context(), user.ID); err != nil {
		writeAuthError(c, err)
		return
	}

	h.clearAuthCookies(c)
	c.JSON(http.StatusOK, model.Response{Message: "Logged out from all devices", Data: nil})
}

// Refresh exchanges the refresh cookie for a fresh credential pair.
// A missing cookie is rejected before any verification is attempted.
func (h *AuthHandler) Refresh(c *gin.Context) {
	refreshToken, err := c.Cookie(refreshCookieName)
	if err != nil || refreshToken == "" {
		h.clearAuthCookies(c)
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{
			Message: "No refresh token provided",
			Code:    model.CodeRefreshTokenMissing,
		})
		return
	}

	pair, err := h.svc.Refresh(c.Request.Context(), refreshToken,
		c.Request.UserAgent(), c.ClientIP())
	if err != nil {
		h.clearAuthCookies(c)
		writeAuthError(c, err)
		return
	}

	h.setAuthCookies(c, pair)
	c.JSON(http.StatusOK, model.Response{Message: "Tokens refreshed successfully", Data: nil})
}

func (h *AuthHandler) Me(c *gin.Context) {
	user := GetAuthUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Message: "Not authenticated"})
		return
	}

	current, err := h.svc.CurrentUser(c.Request.Context(), user.ID)
	if err != nil {
		writeAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.Response{Message: "User retrieved successfully", Data: current})
}

func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	user := GetAuthUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Message: "Not authenticated"})
		return
	}

	var req model.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Message: "invalid request"})
		return
	}

	updated, err := h.svc.UpdateProfile(c.Request.Context(), user.ID, req.Name, req.Email)
	if err != nil {
		writeAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.Response{Message: "Profile updated successfully", Data: updated})
}

func (h *AuthHandler) setAuthCookies(c *gin.Context, pair model.TokenPair) {
	cfg := h.cookieCfg
	c.SetSameSite(cfg.SameSite)
	c.SetCookie(accessCookieName, pair.AccessToken,
		int(h.svc.Codec().AccessTTL().Seconds()), cfg.Path, cfg.Domain, cfg.Secure, true)
	c.SetCookie(refreshCookieName, pair.RefreshToken,
		int(h.svc.Codec().RefreshTTL().Seconds()), cfg.Path, cfg.Domain, cfg.Secure, true)
}

func (h *AuthHandler) clearAuthCookies(c *gin.Context) {
	cfg := h.cookieCfg
	c.SetSameSite(cfg.SameSite)
	c.SetCookie(accessCookieName, "", -1, cfg.Path, cfg.Domain, cfg.Secure, true)
	c.SetCookie(refreshCookieName, "", -1, cfg.Path, cfg.Domain, cfg.Secure, true)
}

func writeAuthError(c *gin.Context, err error) {
	var authErr *service.AuthError
	if errors.As(err, &authErr) {
		c.JSON(authErr.Status, model.ErrorResponse{Message: authErr.Message, Code: authErr.Code})
		return
	}
	c.JSON(http.StatusInternalServerError, model.ErrorResponse{Message: "server error"})
}
