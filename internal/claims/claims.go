// Package claims maps authenticated user profiles onto SAML attribute
// claims through a declarative schema. The schema decides which profile
// fields become claims, in what order, and whether a field holds a single
// value or a comma-separated list.
package claims

import (
	"fmt"
	"strings"
)

// Profile keys with binding-level meaning. They steer subject naming and are
// never emitted as attribute claims unless the schema names them explicitly.
const (
	KeyUserName            = "userName"
	KeyNameIDFormat        = "nameIdFormat"
	KeyNameIDNameQualifier = "nameIdNameQualifier"
	KeyNameIDSPQualifier   = "nameIdSPNameQualifier"
	KeyNameIDSPProvidedID  = "nameIdSPProvidedID"
)

// Profile is the raw user profile: flat string fields keyed by name.
type Profile map[string]string

// Attribute is one schema entry describing how a profile field maps to a
// claim.
type Attribute struct {
	ID          string   `yaml:"id"`
	DisplayName string   `yaml:"displayName,omitempty"`
	Description string   `yaml:"description,omitempty"`
	Optional    bool     `yaml:"optional"`
	MultiValue  bool     `yaml:"multiValue"`
	Options     []string `yaml:"options,omitempty"`
}

// Schema is an ordered list of attribute mappings. Claims are emitted in
// schema order.
type Schema []Attribute

// Claim is one mapped attribute ready for assertion into a SAML
// AttributeStatement.
type Claim struct {
	ID          string
	DisplayName string
	Values      []string
}

// NameID is the mapped subject identifier.
type NameID struct {
	Value           string
	Format          string
	NameQualifier   string
	SPNameQualifier string
	SPProvidedID    string
}

// MissingAttributeError reports a profile missing a non-optional schema
// attribute.
type MissingAttributeError struct {
	ID string
}

func (e *MissingAttributeError) Error() string {
	return fmt.Sprintf("Missing required attribute %s", e.ID)
}

// MapClaims walks the schema in order and produces one claim per attribute
// present in the profile. Multi-value attributes are split on commas. A
// missing or empty non-optional attribute halts mapping with a
// MissingAttributeError; optional attributes are skipped silently. An empty
// result is valid.
func MapClaims(schema Schema, profile Profile) ([]Claim, error) {
	var out []Claim
	for _, attr := range schema {
		raw, ok := profile[attr.ID]
		if !ok || raw == "" {
			if attr.Optional {
				continue
			}
			return nil, &MissingAttributeError{ID: attr.ID}
		}

		values := []string{raw}
		if attr.MultiValue {
			values = strings.Split(raw, ",")
		}

		out = append(out, Claim{
			ID:          attr.ID,
			DisplayName: attr.DisplayName,
			Values:      values,
		})
	}
	return out, nil
}

// MapNameID extracts the subject identifier from the profile. The profile's
// own nameIdFormat wins over the fallback; qualifier fields pass through
// when present.
func MapNameID(profile Profile, fallbackFormat string) NameID {
	format := profile[KeyNameIDFormat]
	if format == "" {
		format = fallbackFormat
	}
	return NameID{
		Value:           profile[KeyUserName],
		Format:          format,
		NameQualifier:   profile[KeyNameIDNameQualifier],
		SPNameQualifier: profile[KeyNameIDSPQualifier],
		SPProvidedID:    profile[KeyNameIDSPProvidedID],
	}
}
