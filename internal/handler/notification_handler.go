package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/denifinder/internal/model"
	"github.com/shinyyama/denifinder/internal/service"
)

type NotificationHandler struct {
	svc service.NotificationService
}

func NewNotificationHandler(svc service.NotificationService) *NotificationHandler {
	return &NotificationHandler{svc: svc}
}

type NotificationResponse struct {
	ID             string `json:"id"`
	Type           string `json:"type"`
	Title          string `json:"title"`
	Message        string `json:"message"`
	ConversationID string `json:"conversationId,omitempty"`
	SenderID       string `json:"senderId,omitempty"`
	Read           bool   `json:"read"`
	CreatedAt      string `json:"createdAt"`
}

func toNotificationResponse(n model.Notification) NotificationResponse {
	return NotificationResponse{
		ID:             n.ID,
		Type:           n.Type,
		Title:          n.Title,
		Message:        n.Message,
		ConversationID: n.ConversationID,
		SenderID:       n.SenderID,
		Read:           n.Read,
		CreatedAt:      n.Timestamp.Format(time.RFC3339),
	}
}

func (h *NotificationHandler) List(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	unreadOnly := c.QueryParam("unread_only") != "false"
	limit := 20
	if lStr := c.QueryParam("limit"); lStr != "" {
		if lParsed, err := strconv.Atoi(lStr); err == nil && lParsed > 0 {
			limit = lParsed
		}
	}
	list, unreadCount, err := h.svc.List(c.Request().Context(), uid, unreadOnly, limit)
	if err != nil {
		return writeError(c, err)
	}
	resp := make([]NotificationResponse, 0, len(list))
	for _, n := range list {
		resp = append(resp, toNotificationResponse(n))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"notifications": resp,
		"unreadCount":   unreadCount,
	})
}

func (h *NotificationHandler) MarkAllRead(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	if err := h.svc.MarkAllRead(c.Request().Context(), uid); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *NotificationHandler) MarkRead(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	if err := h.svc.MarkRead(c.Request().Context(), uid, c.Param("id")); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
