package saml

import (
	"encoding/base64"
	"fmt"
	"html"
)

// PostBindingPayload is a Response encoded for HTTP-POST delivery: the
// base64 document, the auto-submitting form that carries it, and the
// identifiers the browser posts it to.
type PostBindingPayload struct {
	HTML            string
	EncodedResponse string
	XML             []byte
	TargetURL       string
	RelayState      string
}

// RenderPostBinding base64-encodes a signed Response document and wraps it in
// an auto-submitting HTML form targeting the destination, per SAML 2.0
// Bindings Section 3.5.4. The destination and RelayState are escaped before
// embedding; a RelayState input is emitted only when one was supplied.
// RelayState is opaque to the IdP and is echoed back byte for byte.
func RenderPostBinding(responseXML []byte, destination, relayState string) (*PostBindingPayload, error) {
	if len(responseXML) == 0 {
		return nil, fmt.Errorf("empty response document")
	}
	if err := validateDestinationURL(destination); err != nil {
		return nil, fmt.Errorf("invalid destination URL: %w", err)
	}

	encoded := base64.StdEncoding.EncodeToString(responseXML)

	relayStateInput := ""
	if relayState != "" {
		relayStateInput = fmt.Sprintf(`<input type="hidden" name="RelayState" value="%s"/>`, html.EscapeString(relayState))
	}

	formHTML := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>SAML POST Binding</title>
</head>
<body onload="document.forms[0].submit()">
    <noscript>
        <p>JavaScript is required. Please click the button below to continue.</p>
    </noscript>
    <form method="POST" action="%s">
        <input type="hidden" name="SAMLResponse" value="%s"/>
        %s
        <noscript>
            <input type="submit" value="Continue"/>
        </noscript>
    </form>
</body>
</html>`, html.EscapeString(destination), encoded, relayStateInput)

	return &PostBindingPayload{
		HTML:            formHTML,
		EncodedResponse: encoded,
		XML:             responseXML,
		TargetURL:       destination,
		RelayState:      relayState,
	}, nil
}
