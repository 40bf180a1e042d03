// Package config loads process configuration from env, .env and flags.
package config

import (
	"flag"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Config holds all recognized options. Env wins over flags; flags act as
// overrides only for variables the environment left unset.
type Config struct {
	DatabaseURI string `env:"DATABASE_URI"`
	RedisAddr   string `env:"REDIS_ADDR"`
	BotToken    string `env:"BOT_TOKEN"`

	RateSendMsgLimit       int    `env:"RATE_SEND_MSG_LIMIT" envDefault:"25"`
	PaymentLifetimeSeconds int    `env:"PAYMENT_LIFETIME_SECONDS" envDefault:"1200"`
	PageSize               int    `env:"PAGE_SIZE" envDefault:"6"`
	SemaphoreMailingLimit  int    `env:"SEMAPHORE_MAILING_LIMIT" envDefault:"15"`
	AllowedLanguages       string `env:"ALLOWED_LANGUAGES" envDefault:"en,ru"`
	DefaultLanguage        string `env:"DEFAULT_LANGUAGE" envDefault:"en"`
	CacheTTLSeconds        int    `env:"CACHE_TTL_SECONDS" envDefault:"300"`
}

// New loads configuration. The .env file is optional.
func New() *Config {
	_ = godotenv.Load()

	cfg := &Config{}
	_ = env.Parse(cfg)

	flag.StringVar(&cfg.DatabaseURI, "d", cfg.DatabaseURI, "PostgreSQL DSN")
	flag.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "Redis address host:port")
	flag.StringVar(&cfg.BotToken, "bot-token", cfg.BotToken, "Telegram bot token")
	flag.IntVar(&cfg.RateSendMsgLimit, "rate-limit", cfg.RateSendMsgLimit, "outbound messages per rolling second")
	flag.IntVar(&cfg.PageSize, "page-size", cfg.PageSize, "default pagination size for listings")
	flag.Parse()

	cfg.normalize()
	return cfg
}

func (c *Config) normalize() {
	if c.RedisAddr == "" {
		c.RedisAddr = "localhost:6379"
	}
	if c.RateSendMsgLimit <= 0 {
		c.RateSendMsgLimit = 25
	}
	if c.PaymentLifetimeSeconds <= 0 {
		c.PaymentLifetimeSeconds = 1200
	}
	if c.PageSize <= 0 {
		c.PageSize = 6
	}
	if c.SemaphoreMailingLimit <= 0 {
		c.SemaphoreMailingLimit = 15
	}
	if c.CacheTTLSeconds <= 0 {
		c.CacheTTLSeconds = 300
	}
	if c.DefaultLanguage == "" {
		c.DefaultLanguage = "en"
	}
	langs := c.Languages()
	found := false
	for _, l := range langs {
		if l == c.DefaultLanguage {
			found = true
			break
		}
	}
	if !found {
		c.AllowedLanguages = strings.Join(append([]string{c.DefaultLanguage}, langs...), ",")
	}
}

// Languages returns the allowed language codes in configured order.
func (c *Config) Languages() []string {
	parts := strings.Split(c.AllowedLanguages, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(strings.ToLower(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// PaymentLifetime returns the invoice expiry as a duration.
func (c *Config) PaymentLifetime() time.Duration {
	return time.Duration(c.PaymentLifetimeSeconds) * time.Second
}

// CacheTTL returns the cache entry lifetime as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}
