package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/shinyyama/denifinder/internal/gateway"
	"github.com/shinyyama/denifinder/internal/handler"
	"github.com/shinyyama/denifinder/internal/media"
	appmw "github.com/shinyyama/denifinder/internal/middleware"
	"github.com/shinyyama/denifinder/internal/model"
	"github.com/shinyyama/denifinder/internal/repository"
	"github.com/shinyyama/denifinder/internal/service"
	jww "github.com/spf13/jwalterweatherman"
)

type Options struct {
	Store gateway.Store
	// Auth verifies Firebase ID tokens. When nil the X-User-Id header is
	// trusted if DevAuth is set, and every API request is refused otherwise.
	Auth      *auth.Client
	DevAuth   bool
	Sessions  service.RegistryOptions
	Avatars   media.AvatarResolver
	SHA       string
	BuildTime string
}

type Server struct {
	e        *echo.Echo
	store    gateway.Store
	registry *service.ManagerRegistry
}

func allowOrigin(origin string) (bool, error) {
	low := strings.ToLower(origin)
	if strings.HasPrefix(low, "http://localhost:") || strings.HasPrefix(low, "http://127.0.0.1:") ||
		strings.HasPrefix(low, "https://localhost:") || strings.HasPrefix(low, "https://127.0.0.1:") {
		return true, nil
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false, nil
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false, nil
	}
	host := u.Hostname()
	if strings.HasSuffix(host, "vercel.app") || strings.HasSuffix(host, "web.app") || strings.HasSuffix(host, "firebaseapp.com") {
		return true, nil
	}
	return false, nil
}

func New(opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(appmw.RequestID)
	e.Use(middleware.Logger())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Authorization", appmw.UserIDHeader},
		AllowCredentials: true,
		AllowOriginFunc:  allowOrigin,
	}))

	avatars := opts.Avatars
	if avatars == nil {
		avatars = media.NewStaticResolver(model.DefaultAvatar)
	}

	users := repository.NewUserRepository(opts.Store)
	var authMw echo.MiddlewareFunc
	switch {
	case opts.Auth != nil:
		am := appmw.NewAuthMiddleware(opts.Auth)
		authMw = am.RequireAuth
		users = repository.ChainUserRepositories(users, repository.NewAuthUserRepository(am.Client()))
	case opts.DevAuth:
		authMw = appmw.DevAuth
		jww.WARN.Printf("[server] firebase auth not configured; trusting the %s header", appmw.UserIDHeader)
	default:
		authMw = appmw.RejectAll
		jww.ERROR.Printf("[server] no authentication configured; refusing all API requests")
	}

	convRepo := repository.NewConversationRepository(opts.Store)
	propRepo := repository.NewPropertyRepository(opts.Store)
	notifySvc := service.NewNotificationService(repository.NewNotificationRepository(opts.Store))
	registry := service.NewManagerRegistry(service.Dependencies{
		Directory:     service.NewConversationDirectory(convRepo, users, propRepo, avatars),
		Conversations: convRepo,
		Messages:      repository.NewMessageRepository(opts.Store),
		Properties:    propRepo,
		Notifications: notifySvc,
	}, opts.Sessions)

	convHandler := handler.NewConversationHandler(registry)
	notifyHandler := handler.NewNotificationHandler(notifySvc)
	userHandler := handler.NewUserHandler(users, avatars)

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"ok":         "true",
			"git_sha":    opts.SHA,
			"build_time": opts.BuildTime,
		})
	})

	api := e.Group("/api", authMw)
	api.GET("/conversations", convHandler.List)
	api.POST("/conversations", convHandler.Start)
	api.POST("/conversations/:id/open", convHandler.Open)
	api.GET("/conversations/active/messages", convHandler.ActiveMessages)
	api.GET("/conversations/active/stream", convHandler.Stream)
	api.POST("/messages", convHandler.Send)
	api.GET("/unread", convHandler.Unread)
	api.POST("/signout", convHandler.SignOut)
	api.GET("/me/properties", convHandler.ShareableProperties)
	api.GET("/notifications", notifyHandler.List)
	api.POST("/notifications/read", notifyHandler.MarkAllRead)
	api.POST("/notifications/:id/read", notifyHandler.MarkRead)
	api.GET("/users/:uid/public", userHandler.GetPublic)

	return &Server{e: e, store: opts.Store, registry: registry}
}

func (s *Server) Start(addr string) error {
	return s.e.Start(addr)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.e.ServeHTTP(w, r)
}

// Shutdown signs every user session out, stops the HTTP server and closes
// the gateway.
func (s *Server) Shutdown(ctx context.Context) error {
	s.registry.Close()
	err := s.e.Shutdown(ctx)
	if s.store != nil {
		if cerr := s.store.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
