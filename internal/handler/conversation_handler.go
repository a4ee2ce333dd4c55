package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/denifinder/internal/model"
	"github.com/shinyyama/denifinder/internal/service"
)

const (
	streamBuffer    = 32
	streamKeepAlive = 25 * time.Second
)

type ConversationHandler struct {
	registry *service.ManagerRegistry
}

func NewConversationHandler(registry *service.ManagerRegistry) *ConversationHandler {
	return &ConversationHandler{registry: registry}
}

type DirectoryResponse struct {
	Conversations []model.ConversationSummary `json:"conversations"`
	TotalUnread   int                         `json:"totalUnread"`
	State         string                      `json:"state"`
	ActiveID      string                      `json:"activeId,omitempty"`
}

type StartConversationRequest struct {
	OtherUserID    string `json:"otherUserId"`
	InitialMessage string `json:"initialMessage"`
	PropertyID     string `json:"propertyId"`
}

type SendMessageRequest struct {
	Text       string `json:"text"`
	PropertyID string `json:"propertyId"`
}

func (h *ConversationHandler) session(c echo.Context) (*service.UserSession, error) {
	uid := currentUID(c)
	if uid == "" {
		return nil, service.ErrNotAuthenticated
	}
	return h.registry.Get(c.Request().Context(), uid)
}

func directoryOf(m *service.ConversationManager) DirectoryResponse {
	state, active := m.State()
	return DirectoryResponse{
		Conversations: m.Conversations(),
		TotalUnread:   m.TotalUnread(),
		State:         state.String(),
		ActiveID:      active,
	}
}

func (h *ConversationHandler) List(c echo.Context) error {
	us, err := h.session(c)
	if err != nil {
		return writeError(c, err)
	}
	if c.QueryParam("refresh") == "true" {
		if err := us.Manager.Load(c.Request().Context()); err != nil {
			return writeError(c, err)
		}
	}
	return c.JSON(http.StatusOK, directoryOf(us.Manager))
}

func (h *ConversationHandler) Start(c echo.Context) error {
	us, err := h.session(c)
	if err != nil {
		return writeError(c, err)
	}
	var req StartConversationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid json"))
	}
	if req.OtherUserID == "" {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "otherUserId is required"))
	}
	s, err := us.Manager.StartConversation(c.Request().Context(), req.OtherUserID, service.FindOrCreateOptions{
		InitialMessage: req.InitialMessage,
		PropertyID:     req.PropertyID,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, s)
}

func (h *ConversationHandler) Open(c echo.Context) error {
	us, err := h.session(c)
	if err != nil {
		return writeError(c, err)
	}
	if err := us.Manager.Open(c.Request().Context(), c.Param("id")); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, directoryOf(us.Manager))
}

func (h *ConversationHandler) ActiveMessages(c echo.Context) error {
	us, err := h.session(c)
	if err != nil {
		return writeError(c, err)
	}
	state, active := us.Manager.State()
	if state != service.StateActive {
		return writeError(c, service.ErrNoActiveConversation)
	}
	return c.JSON(http.StatusOK, service.MessagesEvent{ConversationID: active, Messages: us.Manager.Messages()})
}

func (h *ConversationHandler) Send(c echo.Context) error {
	us, err := h.session(c)
	if err != nil {
		return writeError(c, err)
	}
	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid json"))
	}
	ctx := c.Request().Context()
	var msg *model.Message
	if req.PropertyID != "" {
		msg, err = us.Manager.ShareProperty(ctx, req.PropertyID)
	} else {
		msg, err = us.Manager.SendText(ctx, req.Text)
	}
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, msg)
}

func (h *ConversationHandler) Unread(c echo.Context) error {
	us, err := h.session(c)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"totalUnread": us.Manager.TotalUnread()})
}

func (h *ConversationHandler) ShareableProperties(c echo.Context) error {
	us, err := h.session(c)
	if err != nil {
		return writeError(c, err)
	}
	list, err := us.Manager.ShareableProperties(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"properties": list})
}

func (h *ConversationHandler) SignOut(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return writeError(c, service.ErrNotAuthenticated)
	}
	h.registry.Remove(uid)
	return c.NoContent(http.StatusNoContent)
}

// Stream pushes the manager's render events as server-sent events, starting
// with a snapshot of the current directory and messages.
func (h *ConversationHandler) Stream(c echo.Context) error {
	us, err := h.session(c)
	if err != nil {
		return writeError(c, err)
	}
	events, stop := us.Feed.Subscribe(streamBuffer)
	defer stop()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)

	dir := directoryOf(us.Manager)
	snapshot := []service.Event{{Type: service.EventDirectory, Data: service.DirectoryEvent{
		Conversations: dir.Conversations, ActiveID: dir.ActiveID, TotalUnread: dir.TotalUnread,
	}}}
	if dir.ActiveID != "" {
		snapshot = append(snapshot, service.Event{Type: service.EventMessages, Data: service.MessagesEvent{
			ConversationID: dir.ActiveID, Messages: us.Manager.Messages(),
		}})
	}
	for _, ev := range snapshot {
		if err := writeEvent(res, ev); err != nil {
			return nil
		}
	}

	ticker := time.NewTicker(streamKeepAlive)
	defer ticker.Stop()
	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := fmt.Fprint(res, ": keep-alive\n\n"); err != nil {
				return nil
			}
			res.Flush()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := writeEvent(res, ev); err != nil {
				return nil
			}
		}
	}
}

func writeEvent(res *echo.Response, ev service.Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(res, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	res.Flush()
	return nil
}
