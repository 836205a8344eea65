package idp

import (
	"encoding/json"
	"html/template"
	"net/http"

	"go.uber.org/zap"

	"github.com/identikit/samlidp/internal/saml"
)

// LoginAsset names the login page template asset.
const LoginAsset = "login.html"

// Handlers exposes the authentication flow over HTTP.
type Handlers struct {
	Responder *Responder
	Logger    *zap.Logger
}

// LoginPage serves the credential form. The inbound SAMLRequest and
// RelayState are threaded through hidden form fields so they survive the
// round trip to the authenticate endpoint.
func (h *Handlers) LoginPage(w http.ResponseWriter, r *http.Request) {
	data, err := h.Responder.Assets.Load(LoginAsset)
	if err != nil {
		h.Logger.Error("login page asset unavailable", zap.Error(err))
		h.writeError(w, newError(KindAssetUnavailable, "Login page unavailable", err))
		return
	}
	tmpl, err := template.New(LoginAsset).Parse(string(data))
	if err != nil {
		h.Logger.Error("login page template invalid", zap.Error(err))
		h.writeError(w, newError(KindAssetUnavailable, "Login page unavailable", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	tmpl.Execute(w, map[string]string{
		"SAMLRequest": r.FormValue("SAMLRequest"),
		"RelayState":  r.FormValue("RelayState"),
		"Action":      "/sso/authenticate",
	})
}

// Authenticate runs the full flow for a submitted login. It accepts both GET
// and POST; FormValue covers the query string and the form body, matching
// how the request arrives from a redirect-bound SP or the login form.
func (h *Handlers) Authenticate(w http.ResponseWriter, r *http.Request) {
	in := AuthInput{
		UserName:     r.FormValue("userName"),
		Password:     r.FormValue("password"),
		SAMLRequest:  r.FormValue("SAMLRequest"),
		RelayState:   r.FormValue("RelayState"),
		Binding:      saml.BindingAuto,
		TraceSession: r.FormValue("trace"),
		RawXML:       r.FormValue("output") == "xml",
	}

	outcome, err := h.Responder.Authenticate(r.Context(), in)
	if err != nil {
		e := AsError(err)
		if e.HTTPStatus() >= http.StatusInternalServerError {
			h.Logger.Error("authentication failed", zap.Error(e))
		} else {
			h.Logger.Info("authentication rejected",
				zap.String("reason", e.Message),
				zap.Int("status", e.HTTPStatus()))
		}
		h.writeError(w, e)
		return
	}

	if in.RawXML {
		w.Header().Set("Content-Type", "application/xml")
		w.Write(outcome.SignedXML)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(outcome.Payload.HTML))
}

func (h *Handlers) writeError(w http.ResponseWriter, e *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.HTTPStatus())
	json.NewEncoder(w).Encode(map[string]string{"error": e.ClientMessage()})
}
