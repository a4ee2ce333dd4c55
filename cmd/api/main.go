package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"firebase.google.com/go/v4/auth"
	"github.com/joho/godotenv"
	"github.com/shinyyama/denifinder/internal/config"
	"github.com/shinyyama/denifinder/internal/db"
	"github.com/shinyyama/denifinder/internal/logging"
	"github.com/shinyyama/denifinder/internal/media"
	"github.com/shinyyama/denifinder/internal/server"
	"github.com/shinyyama/denifinder/internal/service"
	jww "github.com/spf13/jwalterweatherman"
)

// Set with -ldflags at build time.
var (
	gitSHA    = "dev"
	buildTime = ""
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		jww.FATAL.Fatalf("config load error: %v", err)
	}
	logging.Setup(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := db.NewFirebaseApp(ctx, cfg)
	if err != nil {
		jww.FATAL.Fatalf("%+v", err)
	}
	var authClient *auth.Client
	if app != nil {
		if authClient, err = app.Auth(ctx); err != nil {
			jww.FATAL.Fatalf("failed to init firebase auth: %v", err)
		}
	}

	avatars := media.NewStaticResolver(cfg.DefaultAvatar)
	if cfg.StorageBucket != "" {
		sc, err := storage.NewClient(ctx)
		if err != nil {
			jww.FATAL.Fatalf("storage client: %v", err)
		}
		defer sc.Close()
		avatars = media.NewBucketResolver(sc.Bucket(cfg.StorageBucket), cfg.AvatarURLTTL, cfg.DefaultAvatar)
	}

	store, err := db.OpenStore(ctx, cfg, app)
	if err != nil {
		jww.FATAL.Fatalf("open %s gateway: %+v", cfg.Backend, err)
	}

	srv := server.New(server.Options{
		Store:     store,
		Auth:      authClient,
		DevAuth:   cfg.DevAuthEnabled(),
		Avatars:   avatars,
		SHA:       gitSHA,
		BuildTime: buildTime,
		Sessions: service.RegistryOptions{
			StreamGrace: cfg.StreamGrace,
			IdleTTL:     cfg.SessionIdleTTL,
		},
	})

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		jww.INFO.Printf("starting server on %s (backend %s)", addr, cfg.Backend)
		errCh <- srv.Start(addr)
	}()

	select {
	case err := <-errCh:
		jww.FATAL.Fatalf("server stopped: %v", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		jww.ERROR.Printf("shutdown: %v", err)
	}
	jww.INFO.Printf("server stopped")
}
