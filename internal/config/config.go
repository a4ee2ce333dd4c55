package config

import (
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/pkg/errors"
)

// Backend selects the document store the messaging core talks to.
type Backend string

const (
	BackendMemory    Backend = "memory"
	BackendSQLite    Backend = "sqlite"
	BackendMySQL     Backend = "mysql"
	BackendFirestore Backend = "firestore"
)

type Config struct {
	Port     string  `env:"PORT" envDefault:"8080"`
	LogLevel string  `env:"LOG_LEVEL" envDefault:"info"`
	Backend  Backend `env:"GATEWAY_BACKEND" envDefault:"memory"`

	FirebaseProjectID string        `env:"FIREBASE_PROJECT_ID"`
	StorageBucket     string        `env:"STORAGE_BUCKET"`
	AvatarURLTTL      time.Duration `env:"AVATAR_URL_TTL" envDefault:"15m"`
	DefaultAvatar     string        `env:"DEFAULT_AVATAR" envDefault:"images/deniM.png"`

	// DevAuth trusts the X-User-Id header when no Firebase project is set.
	// The memory backend enables it implicitly.
	DevAuth bool `env:"DEV_AUTH" envDefault:"false"`

	SessionIdleTTL time.Duration `env:"SESSION_IDLE_TTL" envDefault:"30m"`
	StreamGrace    time.Duration `env:"STREAM_GRACE" envDefault:"30s"`

	SQLitePath string `env:"SQLITE_PATH" envDefault:"denifinder.db"`

	DBUser                 string `env:"DB_USER"`
	DBPassword             string `env:"DB_PASSWORD"`
	DBHost                 string `env:"DB_HOST"` // e.g. tcp(host:3306) or unix(/cloudsql/instance)
	DBName                 string `env:"DB_NAME"`
	DBPort                 string `env:"DB_PORT" envDefault:"3306"`
	InstanceConnectionName string `env:"INSTANCE_CONNECTION_NAME"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the selected backend has what it needs to connect.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendSQLite:
	case BackendMySQL:
		if c.DBUser == "" || c.DBName == "" || (c.DBHost == "" && c.InstanceConnectionName == "") {
			return errors.New("mysql backend needs DB_USER, DB_NAME and DB_HOST or INSTANCE_CONNECTION_NAME")
		}
	case BackendFirestore:
		if c.FirebaseProjectID == "" {
			return errors.New("firestore backend needs FIREBASE_PROJECT_ID")
		}
	default:
		return errors.Errorf("unknown GATEWAY_BACKEND %q", c.Backend)
	}
	if !c.FirebaseEnabled() && c.Backend != BackendMemory && !c.DevAuth {
		return errors.Errorf("%s backend needs FIREBASE_PROJECT_ID, or DEV_AUTH=true to trust the X-User-Id header", c.Backend)
	}
	if c.SessionIdleTTL < 0 || c.StreamGrace < 0 {
		return errors.New("SESSION_IDLE_TTL and STREAM_GRACE must not be negative")
	}
	if c.AvatarURLTTL <= 0 {
		return errors.Errorf("AVATAR_URL_TTL must be positive, got %s", c.AvatarURLTTL)
	}
	return nil
}

// FirebaseEnabled reports whether token verification and Firebase services
// are configured.
func (c *Config) FirebaseEnabled() bool {
	return c.FirebaseProjectID != ""
}

// DevAuthEnabled reports whether requests are identified by the X-User-Id
// header instead of Firebase ID tokens.
func (c *Config) DevAuthEnabled() bool {
	return !c.FirebaseEnabled() && (c.DevAuth || c.Backend == BackendMemory)
}
