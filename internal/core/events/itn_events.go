package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeTransactionRecorded = "itn.recorded"
)

// TransactionRecordedEvent is published after a notification has been
// committed to the ledger.
type TransactionRecordedEvent struct {
	BaseEvent
	TransactionID     int64  `json:"transaction_id"`
	MerchantPaymentID string `json:"m_payment_id,omitempty"`
	GatewayPaymentID  string `json:"pf_payment_id,omitempty"`
	PaymentStatus     string `json:"payment_status,omitempty"`
	AmountGross       string `json:"amount_gross,omitempty"`
	EmailAddress      string `json:"email_address,omitempty"`
	Verdict           string `json:"verdict"`
	Trusted           *bool  `json:"trusted"`
	Outcome           string `json:"outcome"`
	OwnerID           *int64 `json:"owner_id,omitempty"`
}

type TransactionRecordedParams struct {
	TransactionID     int64
	MerchantPaymentID string
	GatewayPaymentID  string
	PaymentStatus     string
	AmountGross       string
	EmailAddress      string
	Verdict           string
	Trusted           *bool
	Outcome           string
	OwnerID           *int64
}

func NewTransactionRecordedEvent(p TransactionRecordedParams) *TransactionRecordedEvent {
	return &TransactionRecordedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeTransactionRecorded,
			Timestamp: time.Now().UTC(),
			Data: map[string]interface{}{
				"transaction_id": p.TransactionID,
				"m_payment_id":   p.MerchantPaymentID,
				"pf_payment_id":  p.GatewayPaymentID,
				"payment_status": p.PaymentStatus,
				"amount_gross":   p.AmountGross,
				"verdict":        p.Verdict,
				"outcome":        p.Outcome,
			},
		},
		TransactionID:     p.TransactionID,
		MerchantPaymentID: p.MerchantPaymentID,
		GatewayPaymentID:  p.GatewayPaymentID,
		PaymentStatus:     p.PaymentStatus,
		AmountGross:       p.AmountGross,
		EmailAddress:      p.EmailAddress,
		Verdict:           p.Verdict,
		Trusted:           p.Trusted,
		Outcome:           p.Outcome,
		OwnerID:           p.OwnerID,
	}
}

// EventKey keeps every event of one payment on the same partition.
func (e *TransactionRecordedEvent) EventKey() string {
	if e.MerchantPaymentID != "" {
		return e.MerchantPaymentID
	}
	return "pf:" + e.GatewayPaymentID
}
