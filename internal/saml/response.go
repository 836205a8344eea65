package saml

import (
	"encoding/xml"
	"errors"
	"fmt"
	"time"
)

// AssertionTTL is how long issued assertions remain valid.
const AssertionTTL = 5 * time.Minute

// ResponseClaim is one attribute destined for the AttributeStatement.
type ResponseClaim struct {
	Name         string
	FriendlyName string
	Values       []string
}

// ResponseInput carries everything the builder needs to assemble a success
// Response for one authenticated subject.
type ResponseInput struct {
	Issuer       string
	Destination  string
	Audience     string
	InResponseTo string
	NameID       NameID
	Claims       []ResponseClaim
	Now          time.Time // zero means time.Now
}

// Envelope is a built Response document plus the identifiers a caller needs
// to log, sign, or correlate it.
type Envelope struct {
	XML          []byte
	ResponseID   string
	AssertionID  string
	Destination  string
	InResponseTo string
}

// BuildResponse assembles an unsigned success Response. Fresh random IDs are
// minted for the Response and Assertion on every call. The assertion is valid
// from issuance until AssertionTTL elapses, restricted to the configured
// audience, and confirms the subject as a bearer at the destination ACS.
func BuildResponse(in ResponseInput) (*Envelope, error) {
	if in.Issuer == "" {
		return nil, errors.New("build response: issuer is required")
	}
	if in.Destination == "" {
		return nil, errors.New("build response: destination is required")
	}
	if in.NameID.Value == "" {
		return nil, errors.New("build response: subject NameID is required")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	issueInstant := FormatTime(now)
	notOnOrAfter := FormatTime(now.Add(AssertionTTL))

	responseID := GenerateID()
	assertionID := GenerateID()

	assertion := &Assertion{
		ID:           assertionID,
		Version:      "2.0",
		IssueInstant: issueInstant,
		Issuer:       &Issuer{Value: in.Issuer},
		Subject: &Subject{
			NameID: &in.NameID,
			SubjectConfirmation: &SubjectConfirmation{
				Method: ConfirmationMethodBearer,
				SubjectConfirmationData: &SubjectConfirmationData{
					NotOnOrAfter: notOnOrAfter,
					Recipient:    in.Destination,
					InResponseTo: in.InResponseTo,
				},
			},
		},
		Conditions: &Conditions{
			NotBefore:    issueInstant,
			NotOnOrAfter: notOnOrAfter,
		},
		AuthnStatement: &AuthnStatement{
			AuthnInstant: issueInstant,
			SessionIndex: responseID,
			AuthnContext: &AuthnContext{
				AuthnContextClassRef: AuthnContextPasswordProtectedTransport,
			},
		},
	}

	if in.Audience != "" {
		assertion.Conditions.AudienceRestriction = &AudienceRestriction{
			Audience: []string{in.Audience},
		}
	}

	if len(in.Claims) > 0 {
		stmt := &AttributeStatement{}
		for _, claim := range in.Claims {
			attr := Attribute{
				Name:         claim.Name,
				NameFormat:   AttrNameFormatBasic,
				FriendlyName: claim.FriendlyName,
			}
			for _, v := range claim.Values {
				attr.AttributeValues = append(attr.AttributeValues, AttributeValue{Value: v})
			}
			stmt.Attributes = append(stmt.Attributes, attr)
		}
		assertion.AttributeStatement = stmt
	}

	response := &Response{
		ID:           responseID,
		Version:      "2.0",
		IssueInstant: issueInstant,
		Destination:  in.Destination,
		InResponseTo: in.InResponseTo,
		Issuer:       &Issuer{Value: in.Issuer},
		Status: &Status{
			StatusCode: StatusCode{Value: StatusSuccess},
		},
		Assertion: assertion,
	}

	data, err := xml.Marshal(response)
	if err != nil {
		return nil, fmt.Errorf("marshal response: %w", err)
	}

	return &Envelope{
		XML:          data,
		ResponseID:   responseID,
		AssertionID:  assertionID,
		Destination:  in.Destination,
		InResponseTo: in.InResponseTo,
	}, nil
}
