package config

import (
    "time"

    env "github.com/Netflix/go-env"
)

type RateLimitConfig struct {
    Enabled        bool          `env:"RATE_LIMIT_ENABLED,default=true"`
    Capacity       int           `env:"RATE_LIMIT_CAPACITY,default=60"`
    RefillTokens   int           `env:"RATE_LIMIT_REFILL_TOKENS,default=1"`
    RefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL,default=1s"`
    TTL            time.Duration `env:"RATE_LIMIT_TTL,default=10m"`
    KeyStrategy    string        `env:"RATE_LIMIT_KEY_STRATEGY,default=ip_user_route"`
    Prefix         string        `env:"RATE_LIMIT_PREFIX,default=rl"`
    Debug          bool          `env:"RATE_LIMIT_DEBUG,default=false"`
}

// LoadRateLimitConfig reads RATE_LIMIT_* variables. Values that cannot be
// decoded fall back to the defaults; out-of-range values are clamped.
func LoadRateLimitConfig() RateLimitConfig {
    var def RateLimitConfig
    if _, err := env.UnmarshalFromEnviron(&def); err != nil {
        def = RateLimitConfig{
            Enabled:        true,
            Capacity:       60,
            RefillTokens:   1,
            RefillInterval: time.Second,
            TTL:            10 * time.Minute,
            KeyStrategy:    "ip_user_route",
            Prefix:         "rl",
        }
    }
    return def.normalized()
}

func (def RateLimitConfig) normalized() RateLimitConfig {
    if def.Capacity < 1 { def.Capacity = 1 }
    if def.RefillTokens < 1 { def.RefillTokens = 1 }
    if def.RefillInterval <= 0 { def.RefillInterval = time.Second }
    minTTL := 5 * def.RefillInterval
    if def.TTL < minTTL { def.TTL = minTTL }
    return def
}
