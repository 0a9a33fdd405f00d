package api

import (
	"net/http"

	"urbanharvest/internal/models"
	"urbanharvest/internal/service"

	"github.com/labstack/echo/v4"
)

type registerRequest struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email"`
	Password string `json:"password" validate:"required"`
}

type loginRequest struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

func (s *HTTPServer) handleRegister(c echo.Context) error {
	var req registerRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, token, err := s.svc.Auth.Register(c.Request().Context(), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, authResponse{Token: token, User: user})
}

func (s *HTTPServer) handleLogin(c echo.Context) error {
	var req loginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, token, err := s.svc.Auth.Login(c.Request().Context(), req.Login, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, authResponse{Token: token, User: user})
}

func (s *HTTPServer) handleMe(c echo.Context) error {
	user, err := accountFrom(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}
