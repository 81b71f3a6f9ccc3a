package itn

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// Signer computes and checks the gateway's MD5 notification signature.
//
// The parameter string is every field except signature, in received order, as
// name=urlencode(trim(value)) joined by '&', followed by
// &passphrase=urlencode(trim(passphrase)) when a passphrase is set.
type Signer struct {
	passphrase string
}

func NewSigner(passphrase string) *Signer {
	return &Signer{passphrase: strings.TrimSpace(passphrase)}
}

func (s *Signer) Configured() bool {
	return s.passphrase != ""
}

func ParamString(fields []Field) string {
	var b strings.Builder
	for _, f := range fields {
		if f.Name == FieldSignature {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(f.Name)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(strings.TrimSpace(f.Value)))
	}
	return b.String()
}

// Sign returns the lowercase hex signature for fields.
func (s *Signer) Sign(fields []Field) string {
	plain := ParamString(fields)
	if s.passphrase != "" {
		if plain != "" {
			plain += "&"
		}
		plain += "passphrase=" + url.QueryEscape(s.passphrase)
	}
	sum := md5.Sum([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// Verify checks the payload signature. Without a passphrase the check is
// reported as not evaluated.
func (s *Signer) Verify(p *Payload) CheckResult {
	if !s.Configured() {
		return notEvaluated(CheckSignature, "no passphrase configured")
	}

	received, ok := p.Get(FieldSignature)
	if !ok || received == "" {
		return rejected(CheckSignature, "signature missing")
	}

	expected := s.Sign(p.Without(FieldSignature))
	got := strings.ToLower(strings.TrimSpace(received))
	if subtle.ConstantTimeCompare([]byte(expected), []byte(got)) != 1 {
		if len(got) != len(expected) {
			return rejected(CheckSignature, fmt.Sprintf("signature mismatch, received %d characters", len(got)))
		}
		return rejected(CheckSignature, "signature mismatch")
	}
	return passed(CheckSignature, "")
}
