package asynccts

import (
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/asynccts/internal/config"
)

const defaultHTTPPort = 8080

// Option configures a Service.
type Option func(*serviceConfig)

type serviceConfig struct {
	env        string
	configPath string
	logger     *zap.Logger
	edits      []func(*config.Config)
}

func (sc *serviceConfig) edit(fn func(*config.Config)) {
	sc.edits = append(sc.edits, fn)
}

// WithEnv selects config/<env>.yaml and the matching log format (local or
// dev log human-readable, anything else JSON).
func WithEnv(env string) Option {
	return func(sc *serviceConfig) { sc.env = env }
}

// WithConfigFile loads settings from a YAML file. Other options override it.
func WithConfigFile(path string) Option {
	return func(sc *serviceConfig) { sc.configPath = path }
}

// WithLogger sets the logger. Without it and WithEnv the service is silent.
func WithLogger(l *zap.Logger) Option {
	return func(sc *serviceConfig) { sc.logger = l }
}

// WithValkey stores state in Valkey.
func WithValkey(addr, password string) Option {
	return withKeyValue(config.DriverValkey, addr, password)
}

// WithRedis stores state in Redis.
func WithRedis(addr, password string) Option {
	return withKeyValue(config.DriverRedis, addr, password)
}

func withKeyValue(driver, addr, password string) Option {
	return func(sc *serviceConfig) {
		sc.edit(func(c *config.Config) {
			c.Database.Driver = driver
			c.Database.Addrs = []string{addr}
			c.Database.Password = password
		})
	}
}

// WithSQLite stores state in a SQLite file. ":memory:" keeps it in process.
func WithSQLite(path string) Option {
	return func(sc *serviceConfig) {
		sc.edit(func(c *config.Config) {
			c.Database.Driver = config.DriverSQLite
			c.Database.SQLitePath = path
		})
	}
}

// WithServiceID namespaces the stored state. Letters, digits and underscores only.
func WithServiceID(id string) Option {
	return func(sc *serviceConfig) {
		sc.edit(func(c *config.Config) { c.CTS.ID = id })
	}
}

// WithRetrySecs sets the polling interval handed to clients of pending searches.
func WithRetrySecs(secs int) Option {
	return func(sc *serviceConfig) {
		sc.edit(func(c *config.Config) { c.CTS.RetrySecs = secs })
	}
}

// WithHitTTL sets how long results stay cached. It is rounded up to whole seconds.
func WithHitTTL(ttl time.Duration) Option {
	return func(sc *serviceConfig) {
		sc.edit(func(c *config.Config) {
			c.CTS.HitTTLSec = int((ttl + time.Second - 1) / time.Second)
		})
	}
}

// WithUploads accepts file attachments up to maxSize bytes, spooled into dir.
// An empty dir means os.TempDir().
func WithUploads(dir string, maxSize int64) Option {
	return func(sc *serviceConfig) {
		sc.edit(func(c *config.Config) {
			c.CTS.UploadFiles = true
			c.CTS.UploadDir = dir
			c.CTS.MaxUploadSize = maxSize
		})
	}
}

// WithSerializedSubmits makes concurrent submits of the same artifact take
// turns inside this process.
func WithSerializedSubmits() Option {
	return func(sc *serviceConfig) {
		sc.edit(func(c *config.Config) { c.CTS.SerializeSubmits = true })
	}
}

// WithoutPurgeOnStart keeps the active searches found at start-up.
func WithoutPurgeOnStart() Option {
	return func(sc *serviceConfig) {
		sc.edit(func(c *config.Config) {
			purge := false
			c.CTS.PurgeOnStart = &purge
		})
	}
}

// WithAPIKeys requires one of keys as a Bearer token on every search route.
func WithAPIKeys(keys ...string) Option {
	return func(sc *serviceConfig) {
		sc.edit(func(c *config.Config) { c.Auth.APIKeys = keys })
	}
}

// WithHTTPPort sets the port Run listens on (default 8080).
func WithHTTPPort(port int) Option {
	return func(sc *serviceConfig) {
		sc.edit(func(c *config.Config) { c.HTTP.Port = port })
	}
}
