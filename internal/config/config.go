package config // package config loads application configuration from environment variables

import (
    "fmt"
    "strings"
    "time"

    env "github.com/Netflix/go-env" // struct-tag driven environment decoding
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  JWT_SECRET is the only variable without a
// usable default.
type Config struct {
    Env            string `env:"APP_ENV,default=dev"`               // application environment (dev/test/prod)
    Port           string `env:"APP_PORT,default=8000"`             // HTTP port to listen on
    DBDriver       string `env:"DB_DRIVER,default=mysql"`           // mysql or sqlite3
    DBUser         string `env:"DB_USER,default=root"`              // database username
    DBPass         string `env:"DB_PASS"`                           // database password (optional)
    DBHost         string `env:"DB_HOST,default=localhost"`         // database host address
    DBPort         string `env:"DB_PORT,default=3306"`              // database port number
    DBName         string `env:"DB_NAME,default=chat"`              // database name
    DBPath         string `env:"DB_PATH,default=chat.db"`           // sqlite database file
    JWTSecret      string `env:"JWT_SECRET,required=true"`          // secret used to sign JWTs
    AccessTTLMin   int    `env:"ACCESS_TOKEN_TTL_MIN,default=15"`   // access token time‑to‑live in minutes
    RefreshTTLDays int    `env:"REFRESH_TOKEN_TTL_DAYS,default=7"`  // refresh token time‑to‑live in days
    BcryptCost     int    `env:"BCRYPT_COST,default=12"`            // bcrypt cost for password hashing
    SessionKey     string `env:"SESSION_KEY"`                       // cookie session signing key; random when empty
    SessionName    string `env:"SESSION_NAME,default=chat_session"` // cookie name for form logins
    SessionSecure  bool   `env:"SESSION_SECURE,default=false"`      // mark session cookies Secure
    MediaRoot      string `env:"MEDIA_ROOT,default=media"`          // directory uploads are written to
    MediaURL       string `env:"MEDIA_URL,default=/media/"`         // URL prefix uploads are served under
    TimeZone       string `env:"TIME_ZONE,default=UTC"`             // zone used for CSV timestamps
    MaxUploadSize  string `env:"MAX_UPLOAD_SIZE,default=20M"`       // request body limit (echo BodyLimit syntax)
    LogLevel       string `env:"LOG_LEVEL,default=info"`            // zap level name
    PurgeDeleted   bool   `env:"PURGE_DELETED_ATTACHMENTS,default=false"` // drop attachment and reaction on soft delete
}

// Load reads configuration values from environment variables and returns a
// Config.  Missing required variables and invalid values are reported as
// errors so that main can exit with a configuration status.
func Load() (Config, error) {
    var cfg Config
    if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
        return Config{}, fmt.Errorf("load config: %w", err)
    }
    if err := cfg.normalize(); err != nil {
        return Config{}, err
    }
    return cfg, nil
}

func (c *Config) normalize() error {
    c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
    if c.DBDriver != "mysql" && c.DBDriver != "sqlite3" {
        return fmt.Errorf("invalid DB_DRIVER %q: want mysql or sqlite3", c.DBDriver)
    }
    if strings.TrimSpace(c.JWTSecret) == "" {
        return fmt.Errorf("missing required env var: JWT_SECRET")
    }
    if _, err := time.LoadLocation(c.TimeZone); err != nil {
        return fmt.Errorf("invalid TIME_ZONE %q: %w", c.TimeZone, err)
    }
    if !strings.HasSuffix(c.MediaURL, "/") {
        c.MediaURL += "/"
    }
    if c.AccessTTLMin <= 0 {
        return fmt.Errorf("invalid ACCESS_TOKEN_TTL_MIN %d", c.AccessTTLMin)
    }
    if c.RefreshTTLDays <= 0 {
        return fmt.Errorf("invalid REFRESH_TOKEN_TTL_DAYS %d", c.RefreshTTLDays)
    }
    return nil
}

// Location returns the zone used to render timestamps in exports.  Load
// has already validated TimeZone; UTC is used if it is unset or invalid.
func (c Config) Location() *time.Location {
    if loc, err := time.LoadLocation(c.TimeZone); err == nil {
        return loc
    }
    return time.UTC
}

// DSN returns the data source name for the configured driver.
func (c Config) DSN() string {
    if c.DBDriver == "sqlite3" {
        return c.DBPath + "?_foreign_keys=on"
    }
    auth := c.DBUser
    if c.DBPass != "" {
        auth = fmt.Sprintf("%s:%s", c.DBUser, c.DBPass)
    }
    // parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
    return fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
        auth, c.DBHost, c.DBPort, c.DBName)
}

// IsProd reports whether the service runs in production mode.
func (c Config) IsProd() bool {
    return c.Env == "prod" || c.Env == "production"
}
