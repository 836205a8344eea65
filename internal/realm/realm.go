// Package realm describes the single service-provider realm this IdP
// answers for: its identifiers, the URLs responses are addressed to, and the
// names of the signing assets.
package realm

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Realm is the resolved configuration for one SP realm.
type Realm struct {
	// SID is the realm identifier assigned by the service provider.
	SID string
	// Issuer is the entity ID this IdP asserts as saml:Issuer.
	Issuer string
	// AudienceURI restricts who may consume issued assertions.
	AudienceURI string
	// ACSURL is where signed responses are posted.
	ACSURL string
	// SignResponse signs the Response element in addition to the Assertion.
	SignResponse bool
	// CertAsset and KeyAsset name the PEM assets holding the signing pair.
	CertAsset string
	KeyAsset  string
}

// DeriveURLs computes the audience and ACS URLs a federation endpoint
// publishes for a realm SID.
func DeriveURLs(baseURL, sid string) (audience, acs string) {
	base := strings.TrimRight(baseURL, "/")
	return base + "/metadata/" + sid, base + "/authenticate/" + sid
}

// Validate checks the realm is complete enough to issue responses.
func (r *Realm) Validate() error {
	if r.SID == "" {
		return errors.New("realm: SID is required")
	}
	if r.Issuer == "" {
		return errors.New("realm: issuer is required")
	}
	if err := checkURL("ACS URL", r.ACSURL); err != nil {
		return err
	}
	if r.AudienceURI == "" {
		return errors.New("realm: audience URI is required")
	}
	if r.CertAsset == "" || r.KeyAsset == "" {
		return errors.New("realm: signing asset names are required")
	}
	return nil
}

func checkURL(label, raw string) error {
	if raw == "" {
		return fmt.Errorf("realm: %s is required", label)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("realm: %s: %v", label, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("realm: %s must be an absolute http(s) URL", label)
	}
	return nil
}
