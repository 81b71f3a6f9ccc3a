package itn

import (
	"context"
	"log/slog"
	"time"

	errors "github.com/frahmantamala/payfast-itn/internal"
	"github.com/frahmantamala/payfast-itn/internal/core/datamodel/transaction"
	"github.com/frahmantamala/payfast-itn/internal/core/events"
	"golang.org/x/sync/errgroup"
)

type ServiceAPI interface {
	Ingest(ctx context.Context, n Notification) (*IngestResult, error)
}

// Notification is one delivery as it reached the endpoint.
type Notification struct {
	Body        []byte
	ContentType string
	RemoteAddr  string
}

type IngestResult struct {
	Record     *transaction.Record
	Outcome    Outcome
	Evaluation Evaluation
}

type ServiceDeps struct {
	Signer    *Signer
	Confirmer AuthorityConfirmer
	Source    *SourceValidator
	Ledger    Ledger
	Publisher events.Publisher
	Metrics   *Metrics
	Logger    *slog.Logger
	// MerchantID, when set, must match the notification's merchant_id.
	MerchantID string
}

type Service struct {
	signer     *Signer
	confirmer  AuthorityConfirmer
	source     *SourceValidator
	ledger     Ledger
	publisher  events.Publisher
	metrics    *Metrics
	logger     *slog.Logger
	merchantID string
}

func NewService(deps ServiceDeps) *Service {
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(nil)
	}
	if deps.Source == nil {
		deps.Source = &SourceValidator{}
	}
	if deps.Signer == nil {
		deps.Signer = NewSigner("")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{
		signer:     deps.Signer,
		confirmer:  deps.Confirmer,
		source:     deps.Source,
		ledger:     deps.Ledger,
		publisher:  deps.Publisher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		merchantID: deps.MerchantID,
	}
}

// Ingest parses, verifies and records one notification. The returned error is
// an *errors.AppError for every failure the caller should report; the trust
// verdict is carried in the result, never as an error.
func (s *Service) Ingest(ctx context.Context, n Notification) (*IngestResult, error) {
	p, err := ParsePayload(n.Body, n.ContentType)
	if err != nil {
		s.metrics.observeResult("rejected", VerdictUnknown)
		s.logger.Warn("notification rejected", "error", err, "remote_addr", n.RemoteAddr)
		return nil, err
	}

	rec, err := RecordFromPayload(p)
	if err != nil {
		s.metrics.observeResult("rejected", VerdictUnknown)
		s.logger.Warn("notification rejected",
			"error", err,
			"m_payment_id", p.Value(FieldMerchantPaymentID),
			"pf_payment_id", p.Value(FieldGatewayPaymentID),
			"remote_addr", n.RemoteAddr)
		return nil, err
	}

	eval := s.evaluate(ctx, p, n)
	s.metrics.observeEvaluation(eval)

	if addr, err := ParseRemoteAddr(n.RemoteAddr); err == nil {
		ip := addr.String()
		rec.RequestIP = &ip
	} else if n.RemoteAddr != "" {
		raw := truncateRunes(n.RemoteAddr, 45)
		rec.RequestIP = &raw
	}

	stored, outcome, err := s.ledger.Record(ctx, rec, eval)
	if err != nil {
		s.metrics.observeResult("failed", eval.Verdict)
		s.logger.Error("failed to record notification",
			"error", err,
			"key", rec.Key(),
			"verdict", eval.Verdict)
		if appErr, ok := errors.IsAppError(err); ok {
			return nil, appErr
		}
		return nil, errors.ErrIngestionFailed.WithCause(err)
	}

	s.metrics.observeResult(string(outcome), eval.Verdict)
	s.logger.Info("notification recorded",
		"transaction_id", stored.ID,
		"key", stored.Key(),
		"outcome", outcome,
		"verdict", eval.Verdict,
		"reason", eval.Reason,
		"stored_verdict", VerdictFromColumn(stored.Trusted))

	s.publish(ctx, stored, outcome)

	return &IngestResult{Record: stored, Outcome: outcome, Evaluation: eval}, nil
}

// evaluate runs the independent checks concurrently. None of them fail the
// request; each reports its own outcome.
func (s *Service) evaluate(ctx context.Context, p *Payload, n Notification) Evaluation {
	var sig, auth, src CheckResult

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sig = s.signer.Verify(p)
		return nil
	})
	g.Go(func() error {
		if s.confirmer == nil {
			auth = notEvaluated(CheckAuthority, "no confirmer configured")
			return nil
		}
		start := time.Now()
		auth = s.confirmer.Confirm(gctx, n.Body)
		s.metrics.confirmTime.Observe(time.Since(start).Seconds())
		return nil
	})
	g.Go(func() error {
		src = s.source.Validate(n.RemoteAddr)
		return nil
	})
	_ = g.Wait()

	var extra []CheckResult
	if s.merchantID != "" {
		extra = append(extra, s.checkMerchant(p))
	}

	return Evaluate(sig, auth, src, extra...)
}

func (s *Service) checkMerchant(p *Payload) CheckResult {
	got := p.Value(FieldMerchantID)
	if got != s.merchantID {
		return rejected(CheckMerchant, "merchant_id "+truncate(got, 15)+" does not match")
	}
	return passed(CheckMerchant, "")
}

func (s *Service) publish(ctx context.Context, rec *transaction.Record, outcome Outcome) {
	if s.publisher == nil {
		return
	}

	params := events.TransactionRecordedParams{
		TransactionID: rec.ID,
		Verdict:       string(VerdictFromColumn(rec.Trusted)),
		Trusted:       rec.Trusted,
		Outcome:       string(outcome),
		OwnerID:       rec.OwnerID,
	}
	if rec.MerchantPaymentID != nil {
		params.MerchantPaymentID = *rec.MerchantPaymentID
	}
	if rec.GatewayPaymentID != nil {
		params.GatewayPaymentID = *rec.GatewayPaymentID
	}
	if rec.PaymentStatus != nil {
		params.PaymentStatus = *rec.PaymentStatus
	}
	if rec.AmountGross.Valid {
		params.AmountGross = rec.AmountGross.Decimal.StringFixed(2)
	}
	if rec.EmailAddress != nil {
		params.EmailAddress = *rec.EmailAddress
	}

	event := events.NewTransactionRecordedEvent(params)
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish transaction recorded event",
			"error", err,
			"transaction_id", rec.ID,
			"event_id", event.EventID())
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
