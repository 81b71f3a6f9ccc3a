package itn_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	errors "github.com/frahmantamala/payfast-itn/internal"
	"github.com/frahmantamala/payfast-itn/internal/core/events"
	"github.com/frahmantamala/payfast-itn/internal/itn"
	"github.com/frahmantamala/payfast-itn/internal/itn/itntest"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// RecordingPublisher keeps every published event.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *RecordingPublisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *RecordingPublisher) Events() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

type serviceFixture struct {
	service   *itn.Service
	ledger    *MemoryLedger
	confirmer *itntest.StubConfirmer
	publisher *RecordingPublisher
	registry  *prometheus.Registry
}

func newServiceFixture(answer itntest.Answer) *serviceFixture {
	source, err := itn.NewSourceValidator(testAllowedNetworks)
	ExpectWithOffset(1, err).NotTo(HaveOccurred())

	f := &serviceFixture{
		ledger:    NewMemoryLedger(),
		confirmer: itntest.NewStubConfirmer(answer),
		publisher: &RecordingPublisher{},
		registry:  prometheus.NewRegistry(),
	}
	f.service = itn.NewService(itn.ServiceDeps{
		Signer:     itn.NewSigner(testPassphrase),
		Confirmer:  f.confirmer,
		Source:     source,
		Ledger:     f.ledger,
		Publisher:  f.publisher,
		Metrics:    itn.NewMetrics(f.registry),
		Logger:     quietLogger(),
		MerchantID: testMerchantID,
	})
	return f
}

func notification(body []byte) itn.Notification {
	return itn.Notification{Body: body, ContentType: itn.FormContentType, RemoteAddr: allowedAddr}
}

var _ = Describe("Service", func() {
	var (
		f   *serviceFixture
		ctx context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		f = newServiceFixture(itntest.AnswerValid)
	})

	Describe("Ingest", func() {
		It("should record a verified notification as trusted", func() {
			body := signedBody(testPassphrase, orderFields()...)

			res, err := f.service.Ingest(ctx, notification(body))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(itn.OutcomeCreated))
			Expect(res.Evaluation.Verdict).To(Equal(itn.VerdictTrusted))
			Expect(*res.Record.Trusted).To(BeTrue())
			Expect(res.Record.AmountNet.Decimal.StringFixed(2)).To(Equal("98.00"))
			Expect(*res.Record.RequestIP).To(Equal("197.97.145.145"))
			Expect(f.confirmer.LastBody()).To(Equal(string(body)))
			Expect(f.ledger.Count()).To(Equal(1))
		})

		It("should record a notification with a wrong signature as untrusted", func() {
			fields := append(orderFields(), itn.Field{Name: "signature", Value: "deadbeef"})

			res, err := f.service.Ingest(ctx, notification([]byte(itn.Encode(fields))))
			Expect(err).NotTo(HaveOccurred())
			Expect(*res.Record.Trusted).To(BeFalse())
			Expect(*res.Record.DebugInfo).To(ContainSubstring("signature mismatch"))
		})

		It("should record an overlong forged signature as untrusted", func() {
			fields := append(orderFields(), itn.Field{Name: "signature", Value: strings.Repeat("f", 64)})

			res, err := f.service.Ingest(ctx, notification([]byte(itn.Encode(fields))))
			Expect(err).NotTo(HaveOccurred())
			Expect(*res.Record.Trusted).To(BeFalse())
			Expect(*res.Record.Signature).To(HaveLen(32))
			Expect(*res.Record.DebugInfo).To(ContainSubstring("received 64 characters"))
			Expect(f.ledger.Count()).To(Equal(1))
		})

		It("should record as untrusted when the gateway cannot be reached", func() {
			f = newServiceFixture(itntest.AnswerTimeout)
			timeoutCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
			defer cancel()

			res, err := f.service.Ingest(timeoutCtx, notification(signedBody(testPassphrase, orderFields()...)))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Evaluation.Verdict).To(Equal(itn.VerdictUntrusted))
			Expect(res.Evaluation.Reason).To(ContainSubstring("could not confirm authority"))
		})

		It("should record as untrusted when the gateway denies the notification", func() {
			f = newServiceFixture(itntest.AnswerInvalid)
			res, err := f.service.Ingest(ctx, notification(signedBody(testPassphrase, orderFields()...)))
			Expect(err).NotTo(HaveOccurred())
			Expect(*res.Record.Trusted).To(BeFalse())
		})

		It("should record as untrusted from an unknown address", func() {
			n := notification(signedBody(testPassphrase, orderFields()...))
			n.RemoteAddr = "203.0.113.9:1234"

			res, err := f.service.Ingest(ctx, n)
			Expect(err).NotTo(HaveOccurred())
			Expect(*res.Record.Trusted).To(BeFalse())
			Expect(*res.Record.RequestIP).To(Equal("203.0.113.9"))
		})

		It("should record as untrusted for another merchant", func() {
			body := signedBody(testPassphrase, with(orderFields(), "merchant_id", "M2")...)
			res, err := f.service.Ingest(ctx, notification(body))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Evaluation.Reason).To(ContainSubstring("merchant"))
			Expect(*res.Record.Trusted).To(BeFalse())
		})

		It("should merge repeated deliveries into one record", func() {
			body := signedBody(testPassphrase, orderFields()...)

			first, err := f.service.Ingest(ctx, notification(body))
			Expect(err).NotTo(HaveOccurred())
			second, err := f.service.Ingest(ctx, notification(body))
			Expect(err).NotTo(HaveOccurred())

			Expect(second.Outcome).To(Equal(itn.OutcomeUpdated))
			Expect(second.Record.ID).To(Equal(first.Record.ID))
			Expect(f.ledger.Count()).To(Equal(1))

			trail, err := itn.DecodeTrail(f.ledger.Get(first.Record.ID).TrustTrail)
			Expect(err).NotTo(HaveOccurred())
			Expect(trail).To(HaveLen(2))
		})

		It("should not let a forged follow-up demote a trusted record", func() {
			_, err := f.service.Ingest(ctx, notification(signedBody(testPassphrase, orderFields()...)))
			Expect(err).NotTo(HaveOccurred())

			forged := append(with(orderFields(), "amount_gross", "1.00"),
				itn.Field{Name: "signature", Value: "deadbeef"})
			res, err := f.service.Ingest(ctx, notification([]byte(itn.Encode(forged))))
			Expect(err).NotTo(HaveOccurred())
			Expect(*res.Record.Trusted).To(BeTrue())
			Expect(res.Record.AmountGross.Decimal.StringFixed(2)).To(Equal("100.00"))
		})

		It("should reject unparseable bodies without recording or confirming", func() {
			_, err := f.service.Ingest(ctx, notification([]byte("m_payment_id=%zz")))
			expectCode(err, errors.ErrCodeMalformedPayload)
			Expect(f.ledger.Count()).To(Equal(0))
			Expect(f.confirmer.Calls()).To(Equal(0))
		})

		It("should reject a notification without identifiers", func() {
			body := itn.Encode(without(without(orderFields(), "m_payment_id"), "pf_payment_id"))
			_, err := f.service.Ingest(ctx, notification([]byte(body)))
			expectCode(err, errors.ErrCodeMissingIdentifier)
			Expect(f.ledger.Count()).To(Equal(0))
		})

		It("should pass ledger AppErrors through", func() {
			f.ledger.SetFailure(errors.ErrPersistenceConflict)
			_, err := f.service.Ingest(ctx, notification(signedBody(testPassphrase, orderFields()...)))
			expectCode(err, errors.ErrCodePersistenceConflict)
		})

		It("should wrap other ledger failures as internal errors", func() {
			f.ledger.SetFailure(fmt.Errorf("connection reset"))
			_, err := f.service.Ingest(ctx, notification(signedBody(testPassphrase, orderFields()...)))
			Expect(err).To(HaveOccurred())
			appErr, ok := errors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(500))
			Expect(appErr.Code).To(Equal(errors.ErrCodeIngestionFailed))
			Expect(appErr).To(MatchError(ContainSubstring("connection reset")))
		})

		It("should publish a recorded event after each commit", func() {
			fields := append(orderFields(), itn.Field{Name: "email_address", Value: "ada@example.com"})
			_, err := f.service.Ingest(ctx, notification(signedBody(testPassphrase, fields...)))
			Expect(err).NotTo(HaveOccurred())

			published := f.publisher.Events()
			Expect(published).To(HaveLen(1))
			event, ok := published[0].(*events.TransactionRecordedEvent)
			Expect(ok).To(BeTrue())
			Expect(event.EventType()).To(Equal(events.EventTypeTransactionRecorded))
			Expect(event.MerchantPaymentID).To(Equal("ORD1"))
			Expect(event.EmailAddress).To(Equal("ada@example.com"))
			Expect(event.Verdict).To(Equal("trusted"))
			Expect(event.Outcome).To(Equal("created"))
			Expect(event.AmountGross).To(Equal("100.00"))
		})

		It("should count results and checks", func() {
			_, err := f.service.Ingest(ctx, notification(signedBody(testPassphrase, orderFields()...)))
			Expect(err).NotTo(HaveOccurred())
			_, _ = f.service.Ingest(ctx, notification([]byte("")))

			Expect(testutil.CollectAndCount(f.registry, "payfast_itn_notifications_total")).To(Equal(2))
			Expect(testutil.CollectAndCount(f.registry, "payfast_itn_checks_total")).To(Equal(4))
		})
	})
})
