package itn

import (
	"fmt"
	"strconv"

	errors "github.com/frahmantamala/payfast-itn/internal"
	"github.com/frahmantamala/payfast-itn/internal/core/common/validation"
	"github.com/frahmantamala/payfast-itn/internal/core/datamodel/transaction"
	"github.com/shopspring/decimal"
)

var (
	customStrFields = [5]string{"custom_str1", "custom_str2", "custom_str3", "custom_str4", "custom_str5"}
	customIntFields = [5]string{"custom_int1", "custom_int2", "custom_int3", "custom_int4", "custom_int5"}
)

// RecordFromPayload maps a payload onto a new, unsaved record. Blank optional
// fields map to NULL.
func RecordFromPayload(p *Payload) (*transaction.Record, error) {
	if err := validatePayload(p); err != nil {
		return nil, err
	}

	rec := &transaction.Record{
		MerchantPaymentID: optional(p, FieldMerchantPaymentID),
		GatewayPaymentID:  optional(p, FieldGatewayPaymentID),
		PaymentStatus:     optional(p, FieldPaymentStatus),
		ItemName:          p.Value(FieldItemName),
		ItemDescription:   optional(p, FieldItemDescription),
		NameFirst:         optional(p, FieldNameFirst),
		NameLast:          optional(p, FieldNameLast),
		EmailAddress:      optional(p, FieldEmailAddress),
		MerchantID:        p.Value(FieldMerchantID),
		Signature:         storedSignature(p),
	}

	if rec.MerchantPaymentID == nil && rec.GatewayPaymentID == nil {
		return nil, errors.ErrMissingIdentifier
	}

	var err error
	if rec.AmountGross, err = optionalAmount(p, FieldAmountGross); err != nil {
		return nil, err
	}
	if rec.AmountFee, err = optionalAmount(p, FieldAmountFee); err != nil {
		return nil, err
	}
	if rec.AmountNet, err = optionalAmount(p, FieldAmountNet); err != nil {
		return nil, err
	}

	strs := [5]**string{&rec.CustomStr1, &rec.CustomStr2, &rec.CustomStr3, &rec.CustomStr4, &rec.CustomStr5}
	for i, name := range customStrFields {
		*strs[i] = optional(p, name)
	}

	ints := [5]**int64{&rec.CustomInt1, &rec.CustomInt2, &rec.CustomInt3, &rec.CustomInt4, &rec.CustomInt5}
	for i, name := range customIntFields {
		if *ints[i], err = optionalInt(p, name); err != nil {
			return nil, err
		}
	}

	return rec, nil
}

func validatePayload(p *Payload) error {
	v := validation.NewValidator()

	v.Field(FieldMerchantPaymentID, p.Value(FieldMerchantPaymentID)).MaxLength(100)
	v.Field(FieldGatewayPaymentID, p.Value(FieldGatewayPaymentID)).MaxLength(40)
	v.Field(FieldPaymentStatus, p.Value(FieldPaymentStatus)).MaxLength(20)
	v.Field(FieldItemName, p.Value(FieldItemName)).Required().MaxLength(100)
	v.Field(FieldItemDescription, p.Value(FieldItemDescription)).MaxLength(255)
	v.Field(FieldAmountGross, p.Value(FieldAmountGross)).Amount()
	v.Field(FieldAmountFee, p.Value(FieldAmountFee)).Amount()
	v.Field(FieldAmountNet, p.Value(FieldAmountNet)).Amount()
	v.Field(FieldNameFirst, p.Value(FieldNameFirst)).MaxLength(100)
	v.Field(FieldNameLast, p.Value(FieldNameLast)).MaxLength(100)
	v.Field(FieldEmailAddress, p.Value(FieldEmailAddress)).MaxLength(100)
	v.Field(FieldMerchantID, p.Value(FieldMerchantID)).Required().MaxLength(15)
	for _, name := range customStrFields {
		v.Field(name, p.Value(name)).MaxLength(255)
	}
	for _, name := range customIntFields {
		v.Field(name, p.Value(name)).Integer()
	}

	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// signatureLimit is the width of the signature column. Longer values cannot
// match and are kept only as a prefix; Verify notes the received length.
const signatureLimit = 32

func storedSignature(p *Payload) *string {
	sig := optional(p, FieldSignature)
	if sig == nil {
		return nil
	}
	v := truncateRunes(*sig, signatureLimit)
	return &v
}

func optional(p *Payload, name string) *string {
	v, ok := p.Get(name)
	if !ok || v == "" {
		return nil
	}
	return &v
}

func optionalAmount(p *Payload, name string) (decimal.NullDecimal, error) {
	v := p.Value(name)
	if v == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.NullDecimal{}, errors.NewValidationFieldError(name, fmt.Sprintf("%s is not a decimal amount", name), errors.ErrCodeInvalidAmount)
	}
	return decimal.NewNullDecimal(d.Round(2)), nil
}

func optionalInt(p *Payload, name string) (*int64, error) {
	v := p.Value(name)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, errors.NewValidationFieldError(name, fmt.Sprintf("%s is not an integer", name), errors.ErrCodeInvalidField)
	}
	return &n, nil
}
