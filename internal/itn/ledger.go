package itn

import (
	"context"
	"fmt"

	"github.com/frahmantamala/payfast-itn/internal/core/datamodel/transaction"
	"github.com/shopspring/decimal"
)

type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
)

// Ledger stores at most one record per logical payment. Record inserts or
// merges atomically and returns the stored row.
type Ledger interface {
	Record(ctx context.Context, incoming *transaction.Record, eval Evaluation) (*transaction.Record, Outcome, error)
}

// Stamp writes the evaluation onto a record about to be inserted.
func Stamp(rec *transaction.Record, eval Evaluation) error {
	trail, err := AppendTrail(nil, eval)
	if err != nil {
		return err
	}
	summary := eval.Summary()
	rec.Trusted = eval.Verdict.Column()
	rec.DebugInfo = &summary
	rec.TrustTrail = trail
	return nil
}

// Merge folds an incoming notification into the stored record.
//
// Descriptive and financial fields already set are replaced only by a trusted
// notification; unset ones are always filled. Status, signature and source
// address follow the latest notification unless that would let an untrusted
// notification overwrite a trusted record. Trust never goes back to unknown
// and a trusted record is never demoted.
func Merge(existing, incoming *transaction.Record, eval Evaluation) error {
	trusted := eval.Trusted()
	protected := existing.Trusted != nil && *existing.Trusted && !trusted

	if existing.MerchantPaymentID == nil {
		existing.MerchantPaymentID = incoming.MerchantPaymentID
	}
	if existing.GatewayPaymentID == nil {
		existing.GatewayPaymentID = incoming.GatewayPaymentID
	}

	mergeString(&existing.ItemName, incoming.ItemName, trusted)
	mergeString(&existing.MerchantID, incoming.MerchantID, trusted)
	mergeOptional(&existing.ItemDescription, incoming.ItemDescription, trusted)
	mergeAmount(&existing.AmountGross, incoming.AmountGross, trusted)
	mergeAmount(&existing.AmountFee, incoming.AmountFee, trusted)
	mergeAmount(&existing.AmountNet, incoming.AmountNet, trusted)

	mergeOptional(&existing.CustomStr1, incoming.CustomStr1, trusted)
	mergeOptional(&existing.CustomStr2, incoming.CustomStr2, trusted)
	mergeOptional(&existing.CustomStr3, incoming.CustomStr3, trusted)
	mergeOptional(&existing.CustomStr4, incoming.CustomStr4, trusted)
	mergeOptional(&existing.CustomStr5, incoming.CustomStr5, trusted)
	mergeInt(&existing.CustomInt1, incoming.CustomInt1, trusted)
	mergeInt(&existing.CustomInt2, incoming.CustomInt2, trusted)
	mergeInt(&existing.CustomInt3, incoming.CustomInt3, trusted)
	mergeInt(&existing.CustomInt4, incoming.CustomInt4, trusted)
	mergeInt(&existing.CustomInt5, incoming.CustomInt5, trusted)

	mergeOptional(&existing.NameFirst, incoming.NameFirst, trusted)
	mergeOptional(&existing.NameLast, incoming.NameLast, trusted)
	mergeOptional(&existing.EmailAddress, incoming.EmailAddress, trusted)

	mergeOptional(&existing.PaymentStatus, incoming.PaymentStatus, !protected)
	mergeOptional(&existing.Signature, incoming.Signature, !protected)
	mergeOptional(&existing.RequestIP, incoming.RequestIP, !protected)

	switch {
	case trusted:
		existing.Trusted = VerdictTrusted.Column()
	case existing.Trusted == nil:
		existing.Trusted = VerdictUntrusted.Column()
	}

	trail, err := AppendTrail(existing.TrustTrail, eval)
	if err != nil {
		return fmt.Errorf("merge %s: %w", existing.Key(), err)
	}
	summary := eval.Summary()
	existing.TrustTrail = trail
	existing.DebugInfo = &summary

	return nil
}

func mergeString(dst *string, src string, overwrite bool) {
	if src == "" {
		return
	}
	if *dst == "" || overwrite {
		*dst = src
	}
}

func mergeOptional(dst **string, src *string, overwrite bool) {
	if src == nil {
		return
	}
	if *dst == nil || overwrite {
		v := *src
		*dst = &v
	}
}

func mergeInt(dst **int64, src *int64, overwrite bool) {
	if src == nil {
		return
	}
	if *dst == nil || overwrite {
		v := *src
		*dst = &v
	}
}

func mergeAmount(dst *decimal.NullDecimal, src decimal.NullDecimal, overwrite bool) {
	if !src.Valid {
		return
	}
	if !dst.Valid || overwrite {
		*dst = src
	}
}
