package config

import (
    "strings"
    "time"

    env "github.com/Netflix/go-env"
)

// CacheConfig defines settings for the response cache middleware.
// When Enabled is false or no Redis client is configured, caching will be disabled.
// Methods lists the HTTP methods to cache (e.g. GET, HEAD).  TTL defines the
// lifetime of cache entries.  KeyStrategy determines which parts of the request
// contribute to the cache key; every strategy includes the caller so that one
// user's private listing is never served to another.
type CacheConfig struct {
    Enabled      bool          `env:"CACHE_ENABLED,default=true"`
    RawMethods   string        `env:"CACHE_METHODS,default=GET"`
    TTL          time.Duration `env:"CACHE_TTL,default=30s"`
    KeyStrategy  string        `env:"CACHE_KEY_STRATEGY,default=user_route_query"`
    Prefix       string        `env:"CACHE_PREFIX,default=cache"`
    MaxBodyBytes int           `env:"CACHE_MAX_BODY_BYTES,default=1048576"`
}

// LoadCacheConfig reads environment variables to build a CacheConfig.  Defaults
// are used when variables are not set.
func LoadCacheConfig() CacheConfig {
    var c CacheConfig
    if _, err := env.UnmarshalFromEnviron(&c); err != nil {
        c = CacheConfig{Enabled: true, RawMethods: "GET", TTL: 30 * time.Second,
            KeyStrategy: "user_route_query", Prefix: "cache", MaxBodyBytes: 1 << 20}
    }
    return c
}

// Methods returns the upper-cased set of cacheable HTTP methods.
func (c CacheConfig) Methods() map[string]bool {
    return parseMethods(c.RawMethods)
}

func parseMethods(s string) map[string]bool {
    m := map[string]bool{}
    for _, p := range strings.Split(s, ",") {
        p = strings.TrimSpace(strings.ToUpper(p))
        if p != "" {
            m[p] = true
        }
    }
    return m
}
