package claims

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Document is the on-disk attribute configuration: the subject NameID format,
// the attribute schema, and the static profile values this demo IdP asserts
// for its single configured user.
type Document struct {
	NameIDFormat string            `yaml:"nameIdFormat,omitempty"`
	Attributes   Schema            `yaml:"attributes"`
	Values       map[string]string `yaml:"values,omitempty"`
}

// ParseDocument decodes and validates a YAML attribute configuration. Every
// schema entry needs a non-empty, unique id.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse attribute config: %w", err)
	}

	seen := make(map[string]bool, len(doc.Attributes))
	for i, attr := range doc.Attributes {
		if attr.ID == "" {
			return nil, fmt.Errorf("attribute config: entry %d has empty id", i)
		}
		if seen[attr.ID] {
			return nil, fmt.Errorf("attribute config: duplicate id %q", attr.ID)
		}
		seen[attr.ID] = true
	}
	return &doc, nil
}

// BaseProfile builds the profile for an authenticated user from the
// document's static values plus the subject's userName. Binding-level keys
// already present in Values are kept as-is.
func (d *Document) BaseProfile(userName string) Profile {
	profile := make(Profile, len(d.Values)+2)
	for k, v := range d.Values {
		profile[k] = v
	}
	profile[KeyUserName] = userName
	if _, ok := profile[KeyNameIDFormat]; !ok && d.NameIDFormat != "" {
		profile[KeyNameIDFormat] = d.NameIDFormat
	}
	return profile
}
