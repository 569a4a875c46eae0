package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/pkg/money"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (STOREFRONT_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (STOREFRONT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ImageBaseURL string `default:"" usage:"Base URL for product images (e.g. https://cdn.example.com/images/)" flag:"image-base-url"`
	ShippingCost string `default:"0" usage:"Flat shipping cost added to every cart and order" flag:"shipping-cost"`
	AMQPURL      string `default:"" env:"AMQP_URL" usage:"RabbitMQ URL for order events; empty disables publishing" flag:"amqp-url"`
	Currency     money.Currency
	CouponLimit  CouponLimitConfig
	Graceful     GracefulConfig
}

// CouponLimitConfig bounds coupon attempts per client.
type CouponLimitConfig struct {
	Max    int           `default:"10" usage:"Max coupon attempts per window"`
	Window time.Duration `default:"1m" usage:"Coupon attempt window duration"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// Shipping returns the parsed shipping cost. It is zero until the config
// has been validated.
func (c *Config) Shipping() decimal.Decimal {
	v, err := decimal.NewFromString(c.ShippingCost)
	if err != nil {
		return decimal.Zero
	}
	return v
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(os.Args[1:])
}

func loadConfig(args []string) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		Args:      args,
		EnvPrefix: "STOREFRONT",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set STOREFRONT_DATABASE_URL or DATABASE_URL")
	}

	shipping, err := decimal.NewFromString(c.ShippingCost)
	if err != nil {
		return errors.Wrapf(err, "parse shipping cost %q", c.ShippingCost)
	}
	if shipping.IsNegative() {
		return errors.Errorf("shipping cost %s is negative", shipping)
	}

	if c.Currency.Precision < 0 {
		return errors.Errorf("currency precision %d is negative", c.Currency.Precision)
	}
	if c.CouponLimit.Max < 0 {
		return errors.Errorf("coupon limit %d is negative", c.CouponLimit.Max)
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's STOREFRONT_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
