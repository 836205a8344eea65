package saml

import (
	"crypto"
	"crypto/tls"
	"errors"
	"fmt"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
)

// Signer produces enveloped XML signatures over SAML responses and
// assertions using exclusive canonicalization and RSA-SHA256.
type Signer struct {
	keyPair tls.Certificate
}

// NewSigner builds a Signer from a PEM-encoded certificate and private key.
func NewSigner(certPEM, keyPEM []byte) (*Signer, error) {
	keyPair, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("load signing key pair: %w", err)
	}
	return &Signer{keyPair: keyPair}, nil
}

func (s *Signer) signingContext() (*dsig.SigningContext, error) {
	ctx := dsig.NewDefaultSigningContext(dsig.TLSCertKeyStore(s.keyPair))
	ctx.Canonicalizer = dsig.MakeC14N10ExclusiveCanonicalizerWithPrefixList("")
	if err := ctx.SetSignatureMethod(dsig.RSASHA256SignatureMethod); err != nil {
		return nil, err
	}
	ctx.Hash = crypto.SHA256
	return ctx, nil
}

// SignDocument signs the Assertion inside a serialized Response document and,
// when signResponse is set, the Response element as well. The assertion is
// signed first so the response signature covers the signed assertion. Each
// ds:Signature is placed immediately after its element's Issuer child, the
// spot the SAML schema requires.
func (s *Signer) SignDocument(responseXML []byte, signResponse bool) ([]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(responseXML); err != nil {
		return nil, fmt.Errorf("parse response document: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, errors.New("response document has no root element")
	}

	assertionEl := findChildElement(root, "Assertion")
	if assertionEl == nil {
		return nil, errors.New("response document has no Assertion element")
	}

	ctx, err := s.signingContext()
	if err != nil {
		return nil, err
	}
	signedAssertion, err := ctx.SignEnveloped(assertionEl)
	if err != nil {
		return nil, fmt.Errorf("sign assertion: %w", err)
	}
	if err := placeSignatureAfterIssuer(signedAssertion); err != nil {
		return nil, fmt.Errorf("sign assertion: %w", err)
	}

	idx := assertionEl.Index()
	root.RemoveChild(assertionEl)
	root.InsertChildAt(idx, signedAssertion)

	if signResponse {
		ctx, err = s.signingContext()
		if err != nil {
			return nil, err
		}
		signedRoot, err := ctx.SignEnveloped(root)
		if err != nil {
			return nil, fmt.Errorf("sign response: %w", err)
		}
		if err := placeSignatureAfterIssuer(signedRoot); err != nil {
			return nil, fmt.Errorf("sign response: %w", err)
		}
		doc.SetRoot(signedRoot)
	}

	return doc.WriteToBytes()
}

// placeSignatureAfterIssuer moves the ds:Signature appended by SignEnveloped
// from last position to directly after the Issuer child. Only the signature
// element moves, so the enveloped-signature digest stays valid.
func placeSignatureAfterIssuer(el *etree.Element) error {
	children := el.ChildElements()
	if len(children) == 0 {
		return errors.New("element has no children")
	}
	sig := children[len(children)-1]
	if sig.Tag != "Signature" {
		return errors.New("signature element not found")
	}
	issuer := findChildElement(el, "Issuer")
	if issuer == nil {
		return errors.New("issuer element not found")
	}
	el.RemoveChild(sig)
	el.InsertChildAt(issuer.Index()+1, sig)
	return nil
}

// findChildElement returns the first direct child with the given local tag,
// ignoring namespace prefixes.
func findChildElement(el *etree.Element, tag string) *etree.Element {
	for _, child := range el.ChildElements() {
		if child.Tag == tag {
			return child
		}
	}
	return nil
}
