package transaction

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Record is one payment as reported by the gateway. Nil pointers and invalid
// NullDecimals mean the gateway never sent the field.
type Record struct {
	ID int64 `gorm:"primaryKey"`

	MerchantPaymentID *string `gorm:"column:m_payment_id;size:100;uniqueIndex"`
	GatewayPaymentID  *string `gorm:"column:pf_payment_id;size:40;uniqueIndex"`
	PaymentStatus     *string `gorm:"column:payment_status;size:20"`
	ItemName          string  `gorm:"column:item_name;size:100;not null"`
	ItemDescription   *string `gorm:"column:item_description;size:255"`

	AmountGross decimal.NullDecimal `gorm:"column:amount_gross;type:numeric(15,2)"`
	AmountFee   decimal.NullDecimal `gorm:"column:amount_fee;type:numeric(15,2)"`
	AmountNet   decimal.NullDecimal `gorm:"column:amount_net;type:numeric(15,2)"`

	CustomStr1 *string `gorm:"column:custom_str1;size:255"`
	CustomStr2 *string `gorm:"column:custom_str2;size:255"`
	CustomStr3 *string `gorm:"column:custom_str3;size:255"`
	CustomStr4 *string `gorm:"column:custom_str4;size:255"`
	CustomStr5 *string `gorm:"column:custom_str5;size:255"`
	CustomInt1 *int64  `gorm:"column:custom_int1"`
	CustomInt2 *int64  `gorm:"column:custom_int2"`
	CustomInt3 *int64  `gorm:"column:custom_int3"`
	CustomInt4 *int64  `gorm:"column:custom_int4"`
	CustomInt5 *int64  `gorm:"column:custom_int5"`

	NameFirst    *string `gorm:"column:name_first;size:100"`
	NameLast     *string `gorm:"column:name_last;size:100"`
	EmailAddress *string `gorm:"column:email_address;size:100"`

	MerchantID string  `gorm:"column:merchant_id;size:15;not null"`
	Signature  *string `gorm:"column:signature;size:32"`

	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	RequestIP  *string        `gorm:"column:request_ip;size:45"`
	DebugInfo  *string        `gorm:"column:debug_info;size:255"`
	Trusted    *bool          `gorm:"column:trusted"`
	TrustTrail datatypes.JSON `gorm:"column:trust_trail"`
	OwnerID    *int64         `gorm:"column:owner_id;index"`
}

func (Record) TableName() string {
	return "itn_transactions"
}

// AmountsBalanced reports whether net == gross - fee. Records missing any of
// the three amounts are considered balanced.
func (r *Record) AmountsBalanced() bool {
	if !r.AmountGross.Valid || !r.AmountFee.Valid || !r.AmountNet.Valid {
		return true
	}
	return r.AmountGross.Decimal.Sub(r.AmountFee.Decimal).Equal(r.AmountNet.Decimal)
}

// Key is a human readable identifier for logs.
func (r *Record) Key() string {
	if r.MerchantPaymentID != nil {
		return *r.MerchantPaymentID
	}
	if r.GatewayPaymentID != nil {
		return "pf:" + *r.GatewayPaymentID
	}
	return ""
}
