// Package config reads the service configuration from the environment.
//
// Secrets are optional at load time: an endpoint whose credential is missing
// fails that request with a configuration error instead of stopping the
// process.
package config

import (
	"os"
	"strconv"
	"strings"
)

const (
	ResultModeStored = "stored"
	ResultModeInline = "inline"

	defaultSiteURL        = "http://localhost:3000"
	defaultVectorizerURL  = "https://vectorizer.ai/api/v1/vectorize"
	defaultMaxUploadBytes = 10 << 20
	defaultAddr           = ":3000"
)

type Config struct {
	SiteURL string
	Addr    string

	VectorizerAPIKey string
	VectorizerURL    string
	ResultMode       string
	MaxUploadBytes   int64

	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	BucketName         string
	EntitlementsTable  string

	StripeSecretKey      string
	StripePublishableKey string

	ParamPrefix string

	LogLevel string
	LogFile  string
}

// Load builds a Config from the process environment.
func Load() Config {
	return FromLookup(os.Getenv)
}

// FromLookup builds a Config from an arbitrary key lookup.
func FromLookup(getenv func(string) string) Config {
	get := func(key string) string { return strings.TrimSpace(getenv(key)) }

	cfg := Config{
		SiteURL:              strings.TrimRight(get("SITE_URL"), "/"),
		Addr:                 get("ADDR"),
		VectorizerAPIKey:     get("VECTORIZER_API_KEY"),
		VectorizerURL:        get("VECTORIZER_URL"),
		ResultMode:           strings.ToLower(get("RESULT_MODE")),
		MaxUploadBytes:       envInt64(get("MAX_UPLOAD_BYTES"), defaultMaxUploadBytes),
		AWSRegion:            get("AWS_REGION"),
		AWSAccessKeyID:       get("AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey:   get("AWS_SECRET_ACCESS_KEY"),
		BucketName:           get("AWS_BUCKET_NAME"),
		EntitlementsTable:    get("ENTITLEMENTS_TABLE"),
		StripeSecretKey:      get("STRIPE_SECRET_KEY"),
		StripePublishableKey: get("STRIPE_PUBLISHABLE_KEY"),
		ParamPrefix:          strings.TrimRight(get("PARAM_PREFIX"), "/"),
		LogLevel:             get("LOG_LEVEL"),
		LogFile:              get("LOG_FILE"),
	}
	if cfg.SiteURL == "" {
		// Vercel-style deployments only know their host.
		if host := get("VERCEL_URL"); host != "" {
			cfg.SiteURL = "https://" + host
		}
	}
	if cfg.VectorizerURL == "" {
		cfg.VectorizerURL = defaultVectorizerURL
	}
	if cfg.ResultMode != ResultModeInline {
		cfg.ResultMode = ResultModeStored
	}
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	return cfg
}

// BaseURL returns the site URL used for checkout redirects. origin is the
// request Origin header and is only consulted when SITE_URL is unset.
func (c Config) BaseURL(origin string) string {
	if c.SiteURL != "" {
		return c.SiteURL
	}
	if origin = strings.TrimRight(strings.TrimSpace(origin), "/"); origin != "" {
		return origin
	}
	return defaultSiteURL
}

func envInt64(v string, def int64) int64 {
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
