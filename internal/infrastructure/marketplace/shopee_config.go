package marketplace

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
)

// ShopeeConfig holds configuration for the Shopee Open Platform v2 API
type ShopeeConfig struct {
	// PartnerID is the partner identifier from the Shopee open platform
	PartnerID int64
	// PartnerKey is the partner secret used for request signing
	PartnerKey string
	// ShopID is the authorized shop
	ShopID int64
	// AccessToken is the shop-level access token
	AccessToken string
	// RefreshToken renews the access token when it expires
	RefreshToken string
	// APIBaseURL is the base URL for the Shopee API (production or sandbox)
	APIBaseURL string
	// IsSandbox indicates if this is a sandbox environment
	IsSandbox bool
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int
}

const (
	// ShopeeProductionAPIURL is the production API endpoint
	ShopeeProductionAPIURL = "https://partner.shopeemobile.com"
	// ShopeeSandboxAPIURL is the sandbox API endpoint
	ShopeeSandboxAPIURL = "https://partner.test-stable.shopeemobile.com"

	// shopeeMaxWindowDays is the longest update-time range the order list
	// API accepts in one query
	shopeeMaxWindowDays = 15
	// shopeePageSize is the page size requested from the order list API
	shopeePageSize = 50
)

// Errors for Shopee configuration
var (
	ErrShopeeConfigMissingPartnerID  = errors.New("shopee: partner id is required")
	ErrShopeeConfigMissingPartnerKey = errors.New("shopee: partner key is required")
	ErrShopeeConfigMissingShopID     = errors.New("shopee: shop id is required")
	ErrShopeeConfigMissingToken      = errors.New("shopee: access token is required")
)

// NewShopeeConfig creates a new Shopee configuration with defaults
func NewShopeeConfig(partnerID int64, partnerKey string, shopID int64, accessToken string) *ShopeeConfig {
	return &ShopeeConfig{
		PartnerID:      partnerID,
		PartnerKey:     partnerKey,
		ShopID:         shopID,
		AccessToken:    accessToken,
		APIBaseURL:     ShopeeProductionAPIURL,
		IsSandbox:      false,
		TimeoutSeconds: 30,
	}
}

// Validate validates the Shopee configuration
func (c *ShopeeConfig) Validate() error {
	if c.PartnerID == 0 {
		return ErrShopeeConfigMissingPartnerID
	}
	if c.PartnerKey == "" {
		return ErrShopeeConfigMissingPartnerKey
	}
	if c.ShopID == 0 {
		return ErrShopeeConfigMissingShopID
	}
	if c.AccessToken == "" {
		return ErrShopeeConfigMissingToken
	}
	if c.APIBaseURL == "" {
		if c.IsSandbox {
			c.APIBaseURL = ShopeeSandboxAPIURL
		} else {
			c.APIBaseURL = ShopeeProductionAPIURL
		}
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	return nil
}

// Sign generates the shop-level request signature for a Shopee v2 API call.
// Shopee signs HMAC-SHA256(partner_key, partner_id + path + timestamp +
// access_token + shop_id) and expects the lowercase hex digest.
func (c *ShopeeConfig) Sign(path string, timestamp int64) string {
	base := fmt.Sprintf("%d%s%d%s%d", c.PartnerID, path, timestamp, c.AccessToken, c.ShopID)
	h := hmac.New(sha256.New, []byte(c.PartnerKey))
	h.Write([]byte(base))
	return hex.EncodeToString(h.Sum(nil))
}

// SignPublic generates the partner-level signature used by auth endpoints
// that run without a shop access token. The base string is partner_id + path
// + timestamp.
func (c *ShopeeConfig) SignPublic(path string, timestamp int64) string {
	base := fmt.Sprintf("%d%s%d", c.PartnerID, path, timestamp)
	h := hmac.New(sha256.New, []byte(c.PartnerKey))
	h.Write([]byte(base))
	return hex.EncodeToString(h.Sum(nil))
}

// partnerIDString returns PartnerID formatted for query parameters
func (c *ShopeeConfig) partnerIDString() string {
	return strconv.FormatInt(c.PartnerID, 10)
}

// shopIDString returns ShopID formatted for query parameters
func (c *ShopeeConfig) shopIDString() string {
	return strconv.FormatInt(c.ShopID, 10)
}
