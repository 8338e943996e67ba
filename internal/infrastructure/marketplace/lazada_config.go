package marketplace

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
)

// LazadaConfig holds configuration for the Lazada Open Platform API
type LazadaConfig struct {
	// AppKey is the application key from the Lazada open platform
	AppKey string
	// AppSecret is the application secret used for request signing
	AppSecret string
	// AccessToken is the seller's access token
	AccessToken string
	// RefreshToken renews the access token when it expires
	RefreshToken string
	// APIBaseURL is the country-specific API endpoint
	APIBaseURL string
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int
}

const (
	// LazadaThailandAPIURL is the Thailand production API endpoint
	LazadaThailandAPIURL = "https://api.lazada.co.th/rest"

	// lazadaMaxWindowDays is the longest update-time range the orders API
	// accepts in one query
	lazadaMaxWindowDays = 90
	// lazadaPageSize is the page size requested from the orders API
	lazadaPageSize = 50
)

// Errors for Lazada configuration
var (
	ErrLazadaConfigMissingAppKey    = errors.New("lazada: app key is required")
	ErrLazadaConfigMissingAppSecret = errors.New("lazada: app secret is required")
	ErrLazadaConfigMissingToken     = errors.New("lazada: access token is required")
)

// NewLazadaConfig creates a new Lazada configuration with defaults
func NewLazadaConfig(appKey, appSecret, accessToken string) *LazadaConfig {
	return &LazadaConfig{
		AppKey:         appKey,
		AppSecret:      appSecret,
		AccessToken:    accessToken,
		APIBaseURL:     LazadaThailandAPIURL,
		TimeoutSeconds: 30,
	}
}

// Validate validates the Lazada configuration
func (c *LazadaConfig) Validate() error {
	if c.AppKey == "" {
		return ErrLazadaConfigMissingAppKey
	}
	if c.AppSecret == "" {
		return ErrLazadaConfigMissingAppSecret
	}
	if c.AccessToken == "" {
		return ErrLazadaConfigMissingToken
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = LazadaThailandAPIURL
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	return nil
}

// Sign generates the request signature for a Lazada API call. Lazada signs
// HMAC-SHA256(app_secret, api_path + key1value1key2value2...) over the
// sorted parameter set and expects the uppercase hex digest.
func (c *LazadaConfig) Sign(apiPath string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var builder strings.Builder
	builder.WriteString(apiPath)
	for _, k := range keys {
		builder.WriteString(k)
		builder.WriteString(params[k])
	}

	h := hmac.New(sha256.New, []byte(c.AppSecret))
	h.Write([]byte(builder.String()))
	return strings.ToUpper(hex.EncodeToString(h.Sum(nil)))
}
