package core

import (
	"os"
	"strings"
)

// Default names of the signing assets inside the asset directory.
const (
	DefaultCertAsset = "idp-public-cert.pem"
	DefaultKeyAsset  = "idp-private-key.pem"
)

// Config holds the application configuration
type Config struct {
	// Environment (development, demo, production)
	Environment string

	// Server listening address
	ListenAddr string

	// Base URL for constructing absolute URLs
	BaseURL string

	// Accepted credential pair
	Username string
	Password string

	// RealmSID identifies the SP realm this IdP answers for
	RealmSID string

	// Issuer is asserted as the SAML Issuer entity ID
	Issuer string

	// FederationBaseURL derives audience and ACS URLs from the realm SID
	// when AudienceURI or ACSURL are not set explicitly
	FederationBaseURL string
	AudienceURI       string
	ACSURL            string

	// SignResponse signs the Response element in addition to the Assertion
	SignResponse bool

	// AssetDir holds key material, the login page, and attribute config
	AssetDir string
	// CertAsset and KeyAsset name the signing PEM pair inside AssetDir
	CertAsset string
	KeyAsset  string

	// ReplayDB enables the AuthnRequest replay guard when set. Use
	// ":memory:" for an ephemeral store.
	ReplayDB string

	// CORS allowed origins
	CORSOrigins []string

	// Enable debug logging
	Debug bool
}

// LoadConfig loads configuration from environment variables with sensible defaults
func LoadConfig() *Config {
	cfg := &Config{
		Environment:       getEnv("IDP_ENV", "development"),
		ListenAddr:        getEnv("IDP_LISTEN_ADDR", ":8080"),
		BaseURL:           getEnv("IDP_BASE_URL", "http://localhost:8080"),
		Username:          getEnv("SSO_USERNAME", ""),
		Password:          getEnv("SSO_PASSWORD", ""),
		RealmSID:          getEnv("SSO_REALM_SID", ""),
		Issuer:            getEnv("IDP_ISSUER", "samlidp-demo"),
		FederationBaseURL: getEnv("IDP_FEDERATION_BASE_URL", "https://iam.twilio.com/v2/saml2"),
		AudienceURI:       getEnv("IDP_AUDIENCE_URI", ""),
		ACSURL:            getEnv("IDP_ACS_URL", ""),
		SignResponse:      getEnvBool("IDP_SIGN_RESPONSE", true),
		AssetDir:          getEnv("IDP_ASSET_DIR", "assets"),
		CertAsset:         getEnv("IDP_CERT_ASSET", DefaultCertAsset),
		KeyAsset:          getEnv("IDP_KEY_ASSET", DefaultKeyAsset),
		ReplayDB:          getEnv("IDP_REPLAY_DB", ""),
		CORSOrigins:       getEnvList("IDP_CORS_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
		Debug:             getEnvBool("IDP_DEBUG", false),
	}

	return cfg
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return strings.ToLower(value) == "true" || value == "1"
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return strings.Split(value, ",")
}
