package middleware

import (
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	"github.com/shinyyama/denifinder/internal/reqctx"
	jww "github.com/spf13/jwalterweatherman"
)

// UserIDHeader carries the caller's uid when Firebase is not configured.
const UserIDHeader = "X-User-Id"

type AuthMiddleware struct {
	authClient *auth.Client
}

func NewAuthMiddleware(client *auth.Client) *AuthMiddleware {
	return &AuthMiddleware{authClient: client}
}

func (m *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authz := c.Request().Header.Get("Authorization")
		if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}
		tokenStr := strings.TrimPrefix(authz, "Bearer ")
		token, err := m.authClient.VerifyIDToken(c.Request().Context(), tokenStr)
		if err != nil {
			jww.DEBUG.Printf("[auth] rid=%s token rejected: %v", reqctx.RID(c.Request().Context()), err)
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
		}
		setUID(c, token.UID)
		return next(c)
	}
}

func (m *AuthMiddleware) Client() *auth.Client {
	return m.authClient
}

// DevAuth trusts the X-User-Id header. It is only installed when no Firebase
// project is configured and dev auth was asked for.
func DevAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		uid := strings.TrimSpace(c.Request().Header.Get(UserIDHeader))
		if uid == "" {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}
		setUID(c, uid)
		return next(c)
	}
}

// RejectAll answers every request with 401. It guards the API when neither
// token verification nor dev auth is enabled.
func RejectAll(echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}
}

func setUID(c echo.Context, uid string) {
	c.Set("uid", uid)
	req := c.Request()
	c.SetRequest(req.WithContext(reqctx.WithUID(req.Context(), uid)))
}
