package idp

import "crypto/subtle"

// Credentials is the single username/password pair this IdP accepts,
// together with the realm SID that must be configured before any login can
// succeed.
type Credentials struct {
	UserName string
	Password string
	RealmSID string
}

// ValidateLogin checks a submitted login against the configured credentials.
// Checks run in a fixed order so the caller always learns the first problem:
// missing userName, then missing password, then unset server configuration,
// then password mismatch, then username mismatch. The password comparison is
// constant time.
func ValidateLogin(userName, password string, creds Credentials) error {
	if userName == "" {
		return newError(KindMissingField, "Missing userName", nil)
	}
	if password == "" {
		return newError(KindMissingField, "Missing password", nil)
	}
	if creds.UserName == "" || creds.Password == "" || creds.RealmSID == "" {
		return newError(KindMissingConfiguration, "Credentials or realm not configured", nil)
	}
	if subtle.ConstantTimeCompare([]byte(password), []byte(creds.Password)) != 1 {
		return newError(KindInvalidCredentials, "Invalid password", nil)
	}
	if userName != creds.UserName {
		return newError(KindInvalidCredentials, "Invalid username", nil)
	}
	return nil
}
