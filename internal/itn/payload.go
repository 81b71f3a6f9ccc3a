package itn

import (
	"fmt"
	"mime"
	"net/url"
	"strings"
	"unicode/utf8"

	errors "github.com/frahmantamala/payfast-itn/internal"
)

const FormContentType = "application/x-www-form-urlencoded"

// Field names sent by the gateway.
const (
	FieldMerchantPaymentID = "m_payment_id"
	FieldGatewayPaymentID  = "pf_payment_id"
	FieldPaymentStatus     = "payment_status"
	FieldItemName          = "item_name"
	FieldItemDescription   = "item_description"
	FieldAmountGross       = "amount_gross"
	FieldAmountFee         = "amount_fee"
	FieldAmountNet         = "amount_net"
	FieldNameFirst         = "name_first"
	FieldNameLast          = "name_last"
	FieldEmailAddress      = "email_address"
	FieldMerchantID        = "merchant_id"
	FieldSignature         = "signature"
)

type Field struct {
	Name  string
	Value string
}

// Payload is a decoded notification body. Field order is the order received,
// which the signature depends on.
type Payload struct {
	fields []Field
	index  map[string]int
}

func NewPayload(fields ...Field) (*Payload, error) {
	p := &Payload{index: make(map[string]int, len(fields))}
	for _, f := range fields {
		if err := p.add(f.Name, f.Value); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Payload) add(name, value string) error {
	if _, dup := p.index[name]; dup {
		return errors.NewValidationFieldError(name, fmt.Sprintf("field %s appears more than once", name), errors.ErrCodeDuplicateField)
	}
	p.index[name] = len(p.fields)
	p.fields = append(p.fields, Field{Name: name, Value: value})
	return nil
}

func (p *Payload) Get(name string) (string, bool) {
	i, ok := p.index[name]
	if !ok {
		return "", false
	}
	return p.fields[i].Value, true
}

// Value returns the field value, or "" when absent.
func (p *Payload) Value(name string) string {
	v, _ := p.Get(name)
	return v
}

func (p *Payload) Len() int {
	return len(p.fields)
}

func (p *Payload) Fields() []Field {
	out := make([]Field, len(p.fields))
	copy(out, p.fields)
	return out
}

// Without returns the fields in received order, minus name.
func (p *Payload) Without(name string) []Field {
	out := make([]Field, 0, len(p.fields))
	for _, f := range p.fields {
		if f.Name != name {
			out = append(out, f)
		}
	}
	return out
}

// ParsePayload decodes a form body. Any malformed escape, missing '=', empty
// pair, repeated name or invalid UTF-8 fails the whole body.
func ParsePayload(body []byte, contentType string) (*Payload, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.EqualFold(mediaType, FormContentType) {
		return nil, errors.ErrUnsupportedContentType
	}

	if len(body) == 0 {
		return nil, errors.ErrMalformedPayload.WithDetails("empty body")
	}

	p := &Payload{index: make(map[string]int)}
	for _, pair := range strings.Split(string(body), "&") {
		rawName, rawValue, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, errors.ErrMalformedPayload.WithDetails(fmt.Sprintf("bad field %q", truncate(pair, 40)))
		}

		name, err := decodeComponent(rawName)
		if err != nil {
			return nil, errors.ErrMalformedPayload.WithCause(err)
		}
		if name == "" {
			return nil, errors.ErrMalformedPayload.WithDetails("empty field name")
		}

		value, err := decodeComponent(rawValue)
		if err != nil {
			return nil, errors.ErrMalformedPayload.WithCause(fmt.Errorf("field %s: %w", name, err))
		}

		if err := p.add(name, value); err != nil {
			return nil, err
		}
	}

	return p, nil
}

func decodeComponent(s string) (string, error) {
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		return "", err
	}
	if !utf8.ValidString(decoded) {
		return "", fmt.Errorf("invalid utf-8 in %q", truncate(s, 40))
	}
	return decoded, nil
}

// Encode renders fields as a form body in the given order.
func Encode(fields []Field) string {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(f.Name))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(f.Value))
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
