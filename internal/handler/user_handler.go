package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/safedeal/internal/service"
)

type UserHandler struct {
	svc service.UserService
}

func NewUserHandler(svc service.UserService) *UserHandler {
	return &UserHandler{svc: svc}
}

type PublicUserResponse struct {
	UID         string `json:"uid"`
	DisplayName string `json:"display_name"`
	IsVerified  bool   `json:"is_verified"`
	Rating      string `json:"rating"`
}

func (h *UserHandler) GetPublic(c echo.Context) error {
	uid := c.Param("uid")
	if uid == "" {
		return badRequest(c, "invalid uid")
	}
	u, err := h.svc.GetPublic(c.Request().Context(), uid)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, PublicUserResponse{
		UID:         u.UID,
		DisplayName: u.DisplayName,
		IsVerified:  u.IsVerified,
		Rating:      u.Rating.StringFixed(2),
	})
}
