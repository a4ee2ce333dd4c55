package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/shinyyama/denifinder/internal/model"
	"github.com/shinyyama/denifinder/internal/reqctx"
	"github.com/shinyyama/denifinder/internal/service"
	jww "github.com/spf13/jwalterweatherman"
)

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error errorPayload `json:"error"`
}

func NewErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{
		Error: errorPayload{
			Code:    code,
			Message: message,
		},
	}
}

// writeError maps service errors onto HTTP statuses. Anything unrecognised is
// logged and reported as a gateway failure.
func writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrNotAuthenticated):
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "sign in again"))
	case errors.Is(err, service.ErrForbidden):
		return c.JSON(http.StatusForbidden, NewErrorResponse("forbidden", "not a participant of this conversation"))
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, NewErrorResponse("not_found", "not found"))
	case errors.Is(err, service.ErrNoActiveConversation):
		return c.JSON(http.StatusConflict, NewErrorResponse("no_active_conversation", "open a conversation first"))
	case errors.Is(err, service.ErrEmptyMessage):
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "message is empty"))
	case errors.Is(err, model.ErrInvalidParticipants):
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "a conversation needs another user"))
	}
	jww.ERROR.Printf("[handler] rid=%s %s %s: %+v", reqctx.RID(c.Request().Context()),
		c.Request().Method, c.Path(), err)
	return c.JSON(http.StatusBadGateway, NewErrorResponse("gateway_error", "the data service is unavailable"))
}

func currentUID(c echo.Context) string {
	uid, _ := c.Get("uid").(string)
	return uid
}
