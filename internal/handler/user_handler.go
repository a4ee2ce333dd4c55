package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/shinyyama/denifinder/internal/media"
	"github.com/shinyyama/denifinder/internal/repository"
)

type UserHandler struct {
	users   repository.UserRepository
	avatars media.AvatarResolver
}

func NewUserHandler(users repository.UserRepository, avatars media.AvatarResolver) *UserHandler {
	return &UserHandler{users: users, avatars: avatars}
}

type PublicUserResponse struct {
	UID         string `json:"uid"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL"`
}

func (h *UserHandler) GetPublic(c echo.Context) error {
	uid := c.Param("uid")
	if uid == "" {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid uid"))
	}
	ctx := c.Request().Context()
	user, err := h.users.FindByID(ctx, uid)
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusNotFound, NewErrorResponse("not_found", "user not found"))
	}
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, PublicUserResponse{
		UID:         user.ID,
		DisplayName: user.DisplayName,
		PhotoURL:    h.avatars.Resolve(ctx, user.AvatarURL),
	})
}
