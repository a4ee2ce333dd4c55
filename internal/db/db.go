package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/pkg/errors"
	"github.com/shinyyama/denifinder/internal/config"
	"github.com/shinyyama/denifinder/internal/gateway"
	jww "github.com/spf13/jwalterweatherman"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func BuildDSN(cfg *config.Config) string {
	addr := cfg.DBHost

	// Prefer Cloud SQL unix socket when INSTANCE_CONNECTION_NAME is provided.
	if cfg.InstanceConnectionName != "" {
		addr = fmt.Sprintf("unix(/cloudsql/%s)", cfg.InstanceConnectionName)
	} else if strings.HasPrefix(cfg.DBHost, "tcp(") || strings.HasPrefix(cfg.DBHost, "unix(") {
		// already wrapped
	} else if strings.HasPrefix(cfg.DBHost, "/") {
		addr = fmt.Sprintf("unix(%s)", cfg.DBHost)
	} else {
		addr = fmt.Sprintf("tcp(%s:%s)", cfg.DBHost, cfg.DBPort)
	}

	return fmt.Sprintf("%s:%s@%s/%s?charset=utf8mb4&parseTime=True&loc=Local", cfg.DBUser, cfg.DBPassword, addr, cfg.DBName)
}

// gormLogger routes gorm's warnings through jww.
func gormLogger() logger.Interface {
	return logger.New(jww.WARN, logger.Config{
		SlowThreshold:             500 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

func Connect(cfg *config.Config) (*gorm.DB, error) {
	dsn := BuildDSN(cfg)
	gcfg := &gorm.Config{
		PrepareStmt: true,
		Logger:      gormLogger(),
	}
	db, err := gorm.Open(mysql.Open(dsn), gcfg)
	if err != nil {
		return nil, errors.Wrap(err, "open mysql")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)

	return db, nil
}

// OpenSQLite opens a file-backed sqlite database with a single writer
// connection, which sqlite needs to avoid "database is locked" errors.
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000"), &gorm.Config{Logger: gormLogger()})
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite %s", path)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	jww.INFO.Printf("[db] sqlite database at %s", path)
	return db, nil
}

// OpenStore builds the gateway selected by cfg.Backend. app is only consulted
// for the firestore backend and may be nil otherwise.
func OpenStore(ctx context.Context, cfg *config.Config, app *firebase.App) (gateway.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		jww.WARN.Printf("[db] using in-memory gateway; data is lost on restart")
		return gateway.NewMemoryStore(), nil
	case config.BackendSQLite:
		conn, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return newSQLStore(conn)
	case config.BackendMySQL:
		conn, err := Connect(cfg)
		if err != nil {
			return nil, err
		}
		return newSQLStore(conn)
	case config.BackendFirestore:
		if app == nil {
			return nil, errors.New("firestore backend needs a firebase app")
		}
		client, err := app.Firestore(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "firestore client")
		}
		return gateway.NewFirestoreStore(client), nil
	}
	return nil, errors.Errorf("unknown backend %q", cfg.Backend)
}

func newSQLStore(conn *gorm.DB) (gateway.Store, error) {
	s, err := gateway.NewSQLStore(conn)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewFirebaseApp returns nil without error when no Firebase project is
// configured.
func NewFirebaseApp(ctx context.Context, cfg *config.Config) (*firebase.App, error) {
	if !cfg.FirebaseEnabled() {
		return nil, nil
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{
		ProjectID:     cfg.FirebaseProjectID,
		StorageBucket: cfg.StorageBucket,
	})
	if err != nil {
		return nil, errors.Wrap(err, "firebase app")
	}
	return app, nil
}
