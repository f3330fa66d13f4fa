package config

// Redis backs distributed rate limiting and HTTP response caching.  If the
// connection fails during startup NewRedisClient returns nil and callers
// degrade gracefully by disabling caching and rate limiting.

import (
    "context"
    "crypto/tls"
    "time"

    env "github.com/Netflix/go-env"
    "github.com/redis/go-redis/v9"
)

// RedisConfig holds the connection parameters.  REDIS_HOST and REDIS_PORT
// take precedence over REDIS_ADDR when both are set.
type RedisConfig struct {
    Enabled  bool   `env:"REDIS_ENABLED,default=true"`
    Host     string `env:"REDIS_HOST"`
    Port     string `env:"REDIS_PORT"`
    Addr     string `env:"REDIS_ADDR,default=localhost:6379"`
    Password string `env:"REDIS_PASSWORD"`
    DB       int    `env:"REDIS_DB,default=0"`
    TLS      bool   `env:"REDIS_TLS,default=false"`
    // TLSInsecure skips server certificate verification.  Only for
    // self-signed development setups.
    TLSInsecure bool `env:"REDIS_TLS_INSECURE,default=false"`
}

// LoadRedisConfig reads REDIS_* variables.
func LoadRedisConfig() RedisConfig {
    var rc RedisConfig
    if _, err := env.UnmarshalFromEnviron(&rc); err != nil {
        rc = RedisConfig{Enabled: true, Addr: "localhost:6379"}
    }
    return rc
}

// tlsConfig is nil when TLS is off.  Certificates are verified against the
// system roots unless TLSInsecure is set.
func (rc RedisConfig) tlsConfig() *tls.Config {
    if !rc.TLS {
        return nil
    }
    return &tls.Config{
        MinVersion:         tls.VersionTLS12,
        InsecureSkipVerify: rc.TLSInsecure,
    }
}

// Address resolves the host:port to dial.
func (rc RedisConfig) Address() string {
    if rc.Host != "" && rc.Port != "" {
        return rc.Host + ":" + rc.Port
    }
    if rc.Addr == "" {
        return "localhost:6379"
    }
    return rc.Addr
}

// NewRedisClient instantiates a Redis client from rc.  The returned client
// is nil when Redis is disabled or a connection cannot be established.
func NewRedisClient(rc RedisConfig) *redis.Client {
    if !rc.Enabled {
        return nil
    }
    tlsConf := rc.tlsConfig()
    client := redis.NewClient(&redis.Options{
        Addr:      rc.Address(),
        Password:  rc.Password,
        DB:        rc.DB,
        TLSConfig: tlsConf,
    })
    // Ping the server with a short timeout.  Return nil on failure.
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    if err := client.Ping(ctx).Err(); err != nil {
        _ = client.Close()
        return nil
    }
    return client
}
