package sandbox

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/payfast-itn/internal/itn"
)

const (
	StatusComplete  = "COMPLETE"
	StatusFailed    = "FAILED"
	StatusPending   = "PENDING"
	StatusCancelled = "CANCELLED"
)

// Payment is what the sandbox reports back to the merchant.
type Payment struct {
	MerchantPaymentID string
	GatewayPaymentID  string
	Status            string
	ItemName          string
	ItemDescription   string
	AmountGross       decimal.Decimal
	AmountFee         decimal.Decimal
	NameFirst         string
	NameLast          string
	EmailAddress      string
	CustomStr         [5]string
	CustomInt         [5]*int64
}

// NewPayment builds a completed payment with a fresh gateway id.
func NewPayment(merchantPaymentID, itemName string, gross, fee decimal.Decimal) Payment {
	return Payment{
		MerchantPaymentID: merchantPaymentID,
		GatewayPaymentID:  newGatewayPaymentID(),
		Status:            StatusComplete,
		ItemName:          itemName,
		AmountGross:       gross,
		AmountFee:         fee,
	}
}

func newGatewayPaymentID() string {
	return strconv.FormatUint(uint64(uuid.New().ID()), 10)
}

// Fields renders the notification in the gateway's field order, with
// amount_net = amount_gross - amount_fee.
func (p Payment) Fields(merchantID string) []itn.Field {
	fields := []itn.Field{
		{Name: itn.FieldMerchantPaymentID, Value: p.MerchantPaymentID},
		{Name: itn.FieldGatewayPaymentID, Value: p.GatewayPaymentID},
		{Name: itn.FieldPaymentStatus, Value: p.Status},
		{Name: itn.FieldItemName, Value: p.ItemName},
		{Name: itn.FieldItemDescription, Value: p.ItemDescription},
		{Name: itn.FieldAmountGross, Value: p.AmountGross.StringFixed(2)},
		{Name: itn.FieldAmountFee, Value: p.AmountFee.StringFixed(2)},
		{Name: itn.FieldAmountNet, Value: p.AmountGross.Sub(p.AmountFee).StringFixed(2)},
	}
	for i, v := range p.CustomStr {
		fields = append(fields, itn.Field{Name: fmt.Sprintf("custom_str%d", i+1), Value: v})
	}
	for i, v := range p.CustomInt {
		value := ""
		if v != nil {
			value = strconv.FormatInt(*v, 10)
		}
		fields = append(fields, itn.Field{Name: fmt.Sprintf("custom_int%d", i+1), Value: value})
	}
	fields = append(fields,
		itn.Field{Name: itn.FieldNameFirst, Value: p.NameFirst},
		itn.Field{Name: itn.FieldNameLast, Value: p.NameLast},
		itn.Field{Name: itn.FieldEmailAddress, Value: p.EmailAddress},
		itn.Field{Name: itn.FieldMerchantID, Value: merchantID},
	)
	return fields
}

// SignedBody renders and signs the notification body.
func SignedBody(p Payment, merchantID string, signer *itn.Signer) []byte {
	fields := p.Fields(merchantID)
	fields = append(fields, itn.Field{Name: itn.FieldSignature, Value: signer.Sign(fields)})
	return []byte(itn.Encode(fields))
}
