package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultScopes are requested when SHOPIFY_SCOPES is unset.
const DefaultScopes = "customer_read_customers,customer_write_customers,read_customers,write_customers,customer_read_companies"

// Config holds runtime configuration parsed from environment variables.
type Config struct {
	HTTPAddr         string
	DBConnString     string
	ShutdownTimeout  time.Duration
	CORSAllowOrigins []string

	Shopify Shopify
	Consent Consent
	Log     Log
}

// Shopify describes the upstream store and OAuth client.
type Shopify struct {
	Shop           string
	ClientID       string
	ClientSecret   string
	APIVersion     string
	Scopes         string
	BaseURL        string // callback origin of this service, e.g. https://bridge.example.com
	StoreURL       string // overrides https://<shop>.myshopify.com
	VerifyHMAC     bool
	RequestTimeout time.Duration
	AccessToken    string // pre-issued token, used by the importer
}

// Consent tunes the batch orchestrator.
type Consent struct {
	Prevalidate bool
}

// Log configures the zap logger.
type Log struct {
	Level  string
	Format string
	Output string
}

// FromEnv builds Config with defaults, overridden by environment variables or a .env file.
func FromEnv() Config {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	// .env is optional; the process environment applies either way.
	_ = v.ReadInConfig()
	v.AutomaticEnv()

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "3000")
	v.SetDefault("HTTP_ADDR", "")
	v.SetDefault("DB_DSN", "")
	v.SetDefault("SHUTDOWN_TIMEOUT_SECONDS", 10)
	v.SetDefault("CORS_ALLOW_ORIGINS", "")
	v.SetDefault("SHOPIFY_NAME", "")
	v.SetDefault("SHOPIFY_API_KEY", "")
	v.SetDefault("SHOPIFY_PASSWORD", "")
	v.SetDefault("SHOPIFY_API_VERSION", "2025-01")
	v.SetDefault("SHOPIFY_SCOPES", DefaultScopes)
	v.SetDefault("SHOPIFY_BASE_URL", "")
	v.SetDefault("SHOPIFY_VERIFY_HMAC", false)
	v.SetDefault("SHOPIFY_ACCESS_TOKEN", "")
	v.SetDefault("UPSTREAM_TIMEOUT_SECONDS", 0)
	v.SetDefault("BASE_URL", "http://localhost:3000")
	v.SetDefault("CONSENT_PREVALIDATE", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
	v.SetDefault("LOG_OUTPUT", "stdout")
}

func fromViper(v *viper.Viper) Config {
	addr := v.GetString("HTTP_ADDR")
	if addr == "" {
		addr = ":" + v.GetString("PORT")
	}

	return Config{
		HTTPAddr:         addr,
		DBConnString:     v.GetString("DB_DSN"),
		ShutdownTimeout:  seconds(v.GetInt("SHUTDOWN_TIMEOUT_SECONDS")),
		CORSAllowOrigins: splitList(v.GetString("CORS_ALLOW_ORIGINS")),
		Shopify: Shopify{
			Shop:           v.GetString("SHOPIFY_NAME"),
			ClientID:       v.GetString("SHOPIFY_API_KEY"),
			ClientSecret:   v.GetString("SHOPIFY_PASSWORD"),
			APIVersion:     v.GetString("SHOPIFY_API_VERSION"),
			Scopes:         v.GetString("SHOPIFY_SCOPES"),
			BaseURL:        strings.TrimRight(v.GetString("BASE_URL"), "/"),
			StoreURL:       strings.TrimRight(v.GetString("SHOPIFY_BASE_URL"), "/"),
			VerifyHMAC:     v.GetBool("SHOPIFY_VERIFY_HMAC"),
			RequestTimeout: seconds(v.GetInt("UPSTREAM_TIMEOUT_SECONDS")),
			AccessToken:    v.GetString("SHOPIFY_ACCESS_TOKEN"),
		},
		Consent: Consent{
			Prevalidate: v.GetBool("CONSENT_PREVALIDATE"),
		},
		Log: Log{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
			Output: v.GetString("LOG_OUTPUT"),
		},
	}
}

// Validate reports configuration the server cannot run without.
func (c Config) Validate() error {
	var missing []string
	if c.Shopify.Shop == "" && c.Shopify.StoreURL == "" {
		missing = append(missing, "SHOPIFY_NAME")
	}
	if c.Shopify.ClientID == "" {
		missing = append(missing, "SHOPIFY_API_KEY")
	}
	if c.Shopify.ClientSecret == "" {
		missing = append(missing, "SHOPIFY_PASSWORD")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
