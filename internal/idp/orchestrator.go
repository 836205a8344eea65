// Package idp orchestrates the authentication flow: validate the login,
// decode the AuthnRequest, map the profile to claims, build and sign the
// Response, and encode it for POST delivery.
package idp

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/identikit/samlidp/internal/assets"
	"github.com/identikit/samlidp/internal/claims"
	"github.com/identikit/samlidp/internal/flowtrace"
	"github.com/identikit/samlidp/internal/metrics"
	"github.com/identikit/samlidp/internal/realm"
	"github.com/identikit/samlidp/internal/replay"
	"github.com/identikit/samlidp/internal/saml"
)

// SchemaAsset names the attribute configuration asset.
const SchemaAsset = "attributes.yaml"

// AuthInput is one authentication attempt.
type AuthInput struct {
	UserName    string
	Password    string
	SAMLRequest string
	RelayState  string
	Binding     saml.Binding
	// TraceSession, when set, streams flow events to that trace session.
	TraceSession string
	// RawXML skips the POST-binding form and returns the signed document.
	RawXML bool
}

// Outcome is a successful authentication: the signed document plus its
// POST-binding encoding.
type Outcome struct {
	Payload     *saml.PostBindingPayload
	SignedXML   []byte
	ResponseID  string
	AssertionID string
}

// Responder runs the authentication flow for one realm. Signing material and
// the attribute schema are loaded through the asset store on first use and
// cached; load failures are reported per attempt and retried on the next.
type Responder struct {
	Realm       *realm.Realm
	Credentials Credentials
	Assets      assets.Store
	Logger      *zap.Logger

	// Optional collaborators.
	Metrics *metrics.Recorder
	Trace   *flowtrace.Engine
	Replay  *replay.Store

	mu     sync.Mutex
	signer *saml.Signer
	schema *claims.Document
}

// Authenticate runs the full flow. On failure the returned error is always a
// classified *Error.
func (r *Responder) Authenticate(ctx context.Context, in AuthInput) (*Outcome, error) {
	out, err := r.authenticate(ctx, in)
	if err != nil {
		e := AsError(err)
		r.Metrics.AuthAttempt(outcomeLabel(e.Kind))
		r.emit(in.TraceSession, flowtrace.EventAuthFailed, "Authentication failed", map[string]interface{}{
			"error":  e.ClientMessage(),
			"status": e.HTTPStatus(),
		})
		r.completeTrace(in.TraceSession)
		return nil, e
	}
	r.Metrics.AuthAttempt(metrics.OutcomeSuccess)
	r.Metrics.ResponseIssued()
	r.completeTrace(in.TraceSession)
	return out, nil
}

func (r *Responder) authenticate(ctx context.Context, in AuthInput) (*Outcome, error) {
	if err := ValidateLogin(in.UserName, in.Password, r.Credentials); err != nil {
		return nil, err
	}
	r.emit(in.TraceSession, flowtrace.EventCredentialsChecked, "Credentials accepted", map[string]interface{}{
		"userName": in.UserName,
	})

	if in.SAMLRequest == "" {
		return nil, newError(KindMissingField, "Missing SAMLRequest", nil)
	}
	parsed, err := saml.ParseAuthnRequest(in.SAMLRequest, in.Binding, in.RelayState)
	if err != nil {
		return nil, newError(KindMalformedRequest, "Malformed SAMLRequest", err)
	}
	r.emit(in.TraceSession, flowtrace.EventRequestParsed, "AuthnRequest decoded", map[string]interface{}{
		"request_id": parsed.ID,
		"issuer":     parsed.Issuer,
	})

	if r.Replay != nil {
		seen, err := r.Replay.Seen(ctx, parsed.ID)
		if err != nil {
			r.Logger.Error("replay store lookup failed", zap.Error(err))
		} else if seen {
			return nil, newError(KindReplayedRequest, "Request already processed", nil)
		}
	}

	schema, err := r.loadSchema()
	if err != nil {
		return nil, err
	}

	profile := schema.BaseProfile(in.UserName)
	nameID := claims.MapNameID(profile, saml.NameIDFormatUnspecified)
	mapped, err := claims.MapClaims(schema.Attributes, profile)
	if err != nil {
		var missing *claims.MissingAttributeError
		if errors.As(err, &missing) {
			return nil, newError(KindMissingAttribute, missing.Error(), nil)
		}
		return nil, newError(KindMissingAttribute, "Attribute mapping failed", err)
	}
	r.emit(in.TraceSession, flowtrace.EventClaimsMapped, "Claims mapped", map[string]interface{}{
		"claims":  len(mapped),
		"name_id": nameID.Value,
	})

	// An ACS URL carried in the request overrides the realm default.
	destination := r.Realm.ACSURL
	if parsed.ACSURL != "" {
		destination = parsed.ACSURL
	}

	input := saml.ResponseInput{
		Issuer:       r.Realm.Issuer,
		Destination:  destination,
		Audience:     r.Realm.AudienceURI,
		InResponseTo: parsed.ID,
		NameID: saml.NameID{
			Value:           nameID.Value,
			Format:          nameID.Format,
			NameQualifier:   nameID.NameQualifier,
			SPNameQualifier: nameID.SPNameQualifier,
			SPProvidedID:    nameID.SPProvidedID,
		},
	}
	for _, c := range mapped {
		input.Claims = append(input.Claims, saml.ResponseClaim{
			Name:         c.ID,
			FriendlyName: c.DisplayName,
			Values:       c.Values,
		})
	}

	envelope, err := saml.BuildResponse(input)
	if err != nil {
		return nil, newError(KindSigningFailure, "Response assembly failed", err)
	}
	r.emit(in.TraceSession, flowtrace.EventResponseBuilt, "Response built", map[string]interface{}{
		"response_id":    envelope.ResponseID,
		"assertion_id":   envelope.AssertionID,
		"in_response_to": envelope.InResponseTo,
		"destination":    envelope.Destination,
	})

	signer, err := r.loadSigner()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	signedXML, err := signer.SignDocument(envelope.XML, r.Realm.SignResponse)
	if err != nil {
		return nil, newError(KindSigningFailure, "Signing failed", err)
	}
	r.Metrics.ObserveSigning(time.Since(start))
	r.emit(in.TraceSession, flowtrace.EventResponseSigned, "Response signed", map[string]interface{}{
		"response_signed": r.Realm.SignResponse,
	})

	outcome := &Outcome{
		SignedXML:   signedXML,
		ResponseID:  envelope.ResponseID,
		AssertionID: envelope.AssertionID,
	}
	if !in.RawXML {
		payload, err := saml.RenderPostBinding(signedXML, envelope.Destination, parsed.RelayState)
		if err != nil {
			return nil, newError(KindSigningFailure, "POST binding encoding failed", err)
		}
		outcome.Payload = payload
	}

	r.Logger.Info("issued response",
		zap.String("response_id", envelope.ResponseID),
		zap.String("in_response_to", envelope.InResponseTo),
		zap.String("destination", envelope.Destination),
		zap.String("user", in.UserName))
	return outcome, nil
}

// loadSigner builds the signer from the realm's PEM assets, caching it after
// the first success.
func (r *Responder) loadSigner() (*saml.Signer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.signer != nil {
		return r.signer, nil
	}

	certPEM, err := r.Assets.Load(r.Realm.CertAsset)
	if err != nil {
		return nil, newError(KindAssetUnavailable, "Signing certificate unavailable", err)
	}
	keyPEM, err := r.Assets.Load(r.Realm.KeyAsset)
	if err != nil {
		return nil, newError(KindAssetUnavailable, "Signing key unavailable", err)
	}
	signer, err := saml.NewSigner(certPEM, keyPEM)
	if err != nil {
		return nil, newError(KindSigningFailure, "Signing key pair invalid", err)
	}
	r.signer = signer
	return signer, nil
}

// loadSchema loads and caches the attribute configuration.
func (r *Responder) loadSchema() (*claims.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.schema != nil {
		return r.schema, nil
	}

	data, err := r.Assets.Load(SchemaAsset)
	if err != nil {
		return nil, newError(KindAssetUnavailable, "Attribute configuration unavailable", err)
	}
	doc, err := claims.ParseDocument(data)
	if err != nil {
		return nil, newError(KindAssetUnavailable, "Attribute configuration invalid", err)
	}
	r.schema = doc
	return doc, nil
}

func (r *Responder) emit(session string, eventType flowtrace.EventType, title string, data map[string]interface{}) {
	if r.Trace == nil || session == "" {
		return
	}
	r.Trace.Emit(session, eventType, title, data)
}

// completeTrace closes the trace session once the flow reaches a terminal
// outcome, success or failure.
func (r *Responder) completeTrace(session string) {
	if r.Trace == nil || session == "" {
		return
	}
	r.Trace.Complete(session)
}

func outcomeLabel(kind Kind) string {
	switch kind {
	case KindMissingField:
		return metrics.OutcomeMissingField
	case KindInvalidCredentials:
		return metrics.OutcomeInvalidCredentials
	case KindMalformedRequest:
		return metrics.OutcomeMalformedRequest
	case KindMissingAttribute:
		return metrics.OutcomeMissingAttribute
	case KindReplayedRequest:
		return metrics.OutcomeReplay
	default:
		return metrics.OutcomeError
	}
}
