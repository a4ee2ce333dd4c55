package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/shinyyama/denifinder/internal/model"
	"github.com/shinyyama/denifinder/internal/service"
	"github.com/stretchr/testify/require"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{service.ErrNotAuthenticated, http.StatusUnauthorized},
		{errors.WithMessage(service.ErrForbidden, "open c1"), http.StatusForbidden},
		{errors.Wrap(service.ErrNotFound, "conversations/c1"), http.StatusNotFound},
		{service.ErrNoActiveConversation, http.StatusConflict},
		{service.ErrEmptyMessage, http.StatusBadRequest},
		{model.ErrInvalidParticipants, http.StatusBadRequest},
		{errors.New("connection reset"), http.StatusBadGateway},
	}
	e := echo.New()
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
			require.NoError(t, writeError(c, tt.err))
			require.Equal(t, tt.code, rec.Code)
			require.Contains(t, rec.Body.String(), `"error":{"code":`)
		})
	}
}
