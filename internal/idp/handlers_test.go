package idp

import (
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/identikit/samlidp/internal/assets"
	"github.com/identikit/samlidp/internal/flowtrace"
	"github.com/identikit/samlidp/internal/realm"
	"github.com/identikit/samlidp/internal/replay"
	"github.com/identikit/samlidp/internal/saml"
	"github.com/identikit/samlidp/internal/testkeys"
)

const testSchema = `
nameIdFormat: urn:oasis:names:tc:SAML:2.0:nameid-format:transient
attributes:
  - id: roles
    optional: false
    multiValue: true
values:
  roles: manager
`

const testLoginPage = `<form action="{{.Action}}">
<input type="hidden" name="SAMLRequest" value="{{.SAMLRequest}}">
<input type="hidden" name="RelayState" value="{{.RelayState}}">
</form>`

func newTestHandlers(t *testing.T) (*Handlers, []byte) {
	t.Helper()
	certPEM, keyPEM := testkeys.GeneratePair(t)

	store := assets.Mem{
		"idp-public-cert.pem": certPEM,
		"idp-private-key.pem": keyPEM,
		"attributes.yaml":     []byte(testSchema),
		"login.html":          []byte(testLoginPage),
	}

	responder := &Responder{
		Realm: &realm.Realm{
			SID:          "JB0123456789abcdef0123456789abcdef",
			Issuer:       "samlidp-demo",
			AudienceURI:  "https://sp.example.com/metadata",
			ACSURL:       "https://sp.example.com/acs",
			SignResponse: true,
			CertAsset:    "idp-public-cert.pem",
			KeyAsset:     "idp-private-key.pem",
		},
		Credentials: Credentials{
			UserName: "alice",
			Password: "hunter2",
			RealmSID: "JB0123456789abcdef0123456789abcdef",
		},
		Assets: store,
		Logger: zap.NewNop(),
	}
	return &Handlers{Responder: responder, Logger: zap.NewNop()}, certPEM
}

func encodedRequest(t *testing.T, id string) string {
	t.Helper()
	encoded, err := saml.EncodeRedirect(&saml.AuthnRequest{
		ID:           id,
		Version:      "2.0",
		IssueInstant: saml.FormatTime(time.Now()),
		Issuer:       &saml.Issuer{Value: "urn:example:sp"},
	})
	require.NoError(t, err)
	return encoded
}

func postAuth(h *Handlers, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/sso/authenticate", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.Authenticate(w, req)
	return w
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"]
}

func TestAuthenticateMissingPassword(t *testing.T) {
	h, _ := newTestHandlers(t)

	w := postAuth(h, url.Values{"userName": {"alice"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing password", errorMessage(t, w))
}

func TestAuthenticateMissingUserName(t *testing.T) {
	h, _ := newTestHandlers(t)

	w := postAuth(h, url.Values{"password": {"hunter2"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing userName", errorMessage(t, w))
}

func TestAuthenticateInvalidPassword(t *testing.T) {
	h, _ := newTestHandlers(t)

	w := postAuth(h, url.Values{
		"userName":    {"alice"},
		"password":    {"wrong"},
		"SAMLRequest": {encodedRequest(t, "_req1")},
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid password", errorMessage(t, w))
}

func TestAuthenticateMissingSAMLRequest(t *testing.T) {
	h, _ := newTestHandlers(t)

	w := postAuth(h, url.Values{"userName": {"alice"}, "password": {"hunter2"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing SAMLRequest", errorMessage(t, w))
}

func TestAuthenticateMalformedSAMLRequest(t *testing.T) {
	h, _ := newTestHandlers(t)

	w := postAuth(h, url.Values{
		"userName":    {"alice"},
		"password":    {"hunter2"},
		"SAMLRequest": {"aGVsbG8="},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Malformed SAMLRequest", errorMessage(t, w))
}

func TestAuthenticateRawXMLVerifiableResponse(t *testing.T) {
	h, certPEM := newTestHandlers(t)

	w := postAuth(h, url.Values{
		"userName":    {"alice"},
		"password":    {"hunter2"},
		"SAMLRequest": {encodedRequest(t, "_req1")},
		"output":      {"xml"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/xml", w.Header().Get("Content-Type"))

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(w.Body.Bytes()))
	root := doc.Root()

	assert.Equal(t, "_req1", root.SelectAttrValue("InResponseTo", ""))
	assert.Equal(t, "https://sp.example.com/acs", root.SelectAttrValue("Destination", ""))

	block, _ := pem.Decode(certPEM)
	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)
	vctx := dsig.NewDefaultValidationContext(&dsig.MemoryX509CertificateStore{
		Roots: []*x509.Certificate{cert},
	})

	_, err = vctx.Validate(root)
	require.NoError(t, err, "response signature must verify")

	var assertionEl *etree.Element
	for _, child := range root.ChildElements() {
		if child.Tag == "Assertion" {
			assertionEl = child
		}
	}
	require.NotNil(t, assertionEl)
	_, err = vctx.Validate(assertionEl)
	require.NoError(t, err, "assertion signature must verify")
}

func TestAuthenticateHonorsRequestACSURL(t *testing.T) {
	h, _ := newTestHandlers(t)

	encoded, err := saml.EncodeRedirect(&saml.AuthnRequest{
		ID:                          "_acs_override",
		Version:                     "2.0",
		IssueInstant:                saml.FormatTime(time.Now()),
		Issuer:                      &saml.Issuer{Value: "urn:example:sp"},
		AssertionConsumerServiceURL: "https://other.example.com/acs",
	})
	require.NoError(t, err)

	w := postAuth(h, url.Values{
		"userName":    {"alice"},
		"password":    {"hunter2"},
		"SAMLRequest": {encoded},
		"output":      {"xml"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(w.Body.Bytes()))
	assert.Equal(t, "https://other.example.com/acs", doc.Root().SelectAttrValue("Destination", ""))
}

func TestAuthenticatePostFormDelivery(t *testing.T) {
	h, _ := newTestHandlers(t)

	w := postAuth(h, url.Values{
		"userName":    {"alice"},
		"password":    {"hunter2"},
		"SAMLRequest": {encodedRequest(t, "_req2")},
		"RelayState":  {"rs-99"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")

	body := w.Body.String()
	assert.Contains(t, body, `action="https://sp.example.com/acs"`)
	assert.Contains(t, body, `name="SAMLResponse"`)
	assert.Contains(t, body, `name="RelayState" value="rs-99"`)
}

func TestAuthenticateMissingRequiredAttribute(t *testing.T) {
	h, _ := newTestHandlers(t)
	h.Responder.Assets.(assets.Mem)["attributes.yaml"] = []byte(`
attributes:
  - id: department
    optional: false
`)

	// Misconfigured deployment, not a caller mistake: generic 500, no
	// schema detail in the body
	w := postAuth(h, url.Values{
		"userName":    {"alice"},
		"password":    {"hunter2"},
		"SAMLRequest": {encodedRequest(t, "_req3")},
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", errorMessage(t, w))
}

func TestAuthenticateSigningKeyUnavailable(t *testing.T) {
	h, _ := newTestHandlers(t)
	delete(h.Responder.Assets.(assets.Mem), "idp-private-key.pem")

	w := postAuth(h, url.Values{
		"userName":    {"alice"},
		"password":    {"hunter2"},
		"SAMLRequest": {encodedRequest(t, "_req4")},
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", errorMessage(t, w))
}

func TestAuthenticateReplayGuard(t *testing.T) {
	h, _ := newTestHandlers(t)
	guard, err := replay.Open(":memory:")
	require.NoError(t, err)
	defer guard.Close()
	h.Responder.Replay = guard

	form := url.Values{
		"userName":    {"alice"},
		"password":    {"hunter2"},
		"SAMLRequest": {encodedRequest(t, "_replayed")},
	}

	w := postAuth(h, form)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = postAuth(h, form)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Request already processed", errorMessage(t, w))
}

func TestAuthenticateCompletesTraceSession(t *testing.T) {
	h, _ := newTestHandlers(t)
	h.Responder.Trace = flowtrace.NewEngine()
	session := h.Responder.Trace.CreateSession("JB0123456789abcdef0123456789abcdef")

	w := postAuth(h, url.Values{
		"userName":    {"alice"},
		"password":    {"hunter2"},
		"SAMLRequest": {encodedRequest(t, "_traced")},
		"trace":       {session.ID},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	snap := session.Snapshot()
	assert.Equal(t, flowtrace.SessionStateComplete, snap.State)
	require.NotEmpty(t, snap.Events)
	assert.Equal(t, flowtrace.EventResponseSigned, snap.Events[len(snap.Events)-1].Type)
}

func TestAuthenticateCompletesTraceSessionOnFailure(t *testing.T) {
	h, _ := newTestHandlers(t)
	h.Responder.Trace = flowtrace.NewEngine()
	session := h.Responder.Trace.CreateSession("JB0123456789abcdef0123456789abcdef")

	w := postAuth(h, url.Values{
		"userName": {"alice"},
		"password": {"wrong"},
		"trace":    {session.ID},
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	snap := session.Snapshot()
	assert.Equal(t, flowtrace.SessionStateComplete, snap.State)
	require.NotEmpty(t, snap.Events)
	assert.Equal(t, flowtrace.EventAuthFailed, snap.Events[len(snap.Events)-1].Type)
}

func TestLoginPageThreadsRequestThrough(t *testing.T) {
	h, _ := newTestHandlers(t)

	encoded := encodedRequest(t, "_login")
	req := httptest.NewRequest(http.MethodGet,
		"/sso/login?SAMLRequest="+url.QueryEscape(encoded)+"&RelayState=rs-7", nil)
	w := httptest.NewRecorder()
	h.LoginPage(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `action="/sso/authenticate"`)
	assert.Contains(t, body, "rs-7")
}
