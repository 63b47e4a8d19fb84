package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/identity-service/internal/core/ports"
)

// AuthHandler exposes the authentication flows under /auth.
type AuthHandler struct {
	service ports.AuthService
	cookies CookieOptions
}

func NewAuthHandler(service ports.AuthService, cookies CookieOptions) *AuthHandler {
	return &AuthHandler{service: service, cookies: cookies}
}

// Signup creates an account and starts a session.
//
// @Summary      Sign up
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      signupRequest  true  "Account details"
// @Success      201   {object}  signupResponse
// @Failure      400   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Router       /auth/signup [post]
func (h *AuthHandler) Signup(c echo.Context) error {
	var req signupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	res, err := h.service.Signup(c.Request().Context(), ports.SignupInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Surname:  req.Surname,
		Profile:  req.Profile.toDomain(),
	})
	if err != nil {
		return err
	}

	h.cookies.setSession(c, res.Session)
	return c.JSON(http.StatusCreated, signupResponse{
		sessionResponse: newSessionResponse(res.User, res.Session),
		VerifyEmailLink: res.VerifyEmailLink,
	})
}

// Login exchanges credentials for a session.
//
// @Summary      Log in
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Credentials"
// @Success      200   {object}  sessionResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  unverifiedResponse
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	res, err := h.service.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}

	h.cookies.setSession(c, res.Session)
	return c.JSON(http.StatusOK, newSessionResponse(res.User, res.Session))
}

// VerifyEmail redeems the link sent after signup.
//
// @Summary      Verify email address
// @Tags         auth
// @Produce      json
// @Param        id     path      string  true  "User id"
// @Param        token  path      string  true  "Verification token"
// @Success      200    {object}  messageResponse
// @Failure      400    {object}  errorResponse
// @Router       /auth/verify-email/{id}/{token} [get]
func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	already, err := h.service.VerifyEmail(c.Request().Context(), c.Param("id"), c.Param("token"))
	if err != nil {
		return err
	}
	if already {
		return c.JSON(http.StatusOK, messageResponse{Message: "email already verified"})
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "email verified"})
}

// ForgotPassword emails a single-use reset link.
//
// @Summary      Request a password reset
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      forgotPasswordRequest  true  "Account email"
// @Success      200   {object}  forgotPasswordResponse
// @Failure      401   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Router       /auth/forgot-password [post]
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotPasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	link, err := h.service.RequestPasswordReset(c.Request().Context(), req.Email)
	if err != nil {
		return err
	}
	if link == "" {
		return c.JSON(http.StatusOK, forgotPasswordResponse{
			Message: "if the email is registered, a reset link has been sent",
		})
	}
	return c.JSON(http.StatusOK, forgotPasswordResponse{
		Message:           "password reset link sent",
		ResetPasswordLink: link,
	})
}

// ResetPassword redeems a reset link and sets a new password.
//
// @Summary      Reset password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        id     path      string                true  "User id"
// @Param        token  path      string                true  "Reset token"
// @Param        body   body      resetPasswordRequest  true  "New password"
// @Success      200    {object}  resetPasswordResponse
// @Failure      401    {object}  errorResponse
// @Failure      422    {object}  errorResponse
// @Router       /auth/reset-password/{id}/{token} [post]
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	loginLink, err := h.service.ResetPassword(c.Request().Context(), c.Param("id"), c.Param("token"), req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resetPasswordResponse{Message: "password has been reset", LoginLink: loginLink})
}

// Refresh rotates the session held by the presented refresh token.
//
// @Summary      Refresh session
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      refreshRequest  false  "Refresh token when no cookie is sent"
// @Success      200   {object}  sessionResponse
// @Failure      400   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Router       /auth/refresh [post]
func (h *AuthHandler) Refresh(c echo.Context) error {
	token, err := presentedRefresh(c)
	if err != nil {
		return err
	}

	res, err := h.service.RefreshSession(c.Request().Context(), token)
	if err != nil {
		return err
	}

	h.cookies.setSession(c, res.Session)
	return c.JSON(http.StatusOK, newSessionResponse(res.User, res.Session))
}

// Logout ends the session held by the presented refresh token.
//
// @Summary      Log out
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      refreshRequest  false  "Refresh token when no cookie is sent"
// @Success      200   {object}  messageResponse
// @Failure      400   {object}  errorResponse
// @Router       /auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	token, err := presentedRefresh(c)
	if err != nil {
		return err
	}
	if err := h.service.Logout(c.Request().Context(), token); err != nil {
		return err
	}

	h.cookies.clearSession(c)
	return c.JSON(http.StatusOK, messageResponse{Message: "logged out"})
}
