package itn_test

import (
	"strings"

	errors "github.com/frahmantamala/payfast-itn/internal"
	"github.com/frahmantamala/payfast-itn/internal/itn"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

func payloadOf(fields ...itn.Field) *itn.Payload {
	p, err := itn.NewPayload(fields...)
	ExpectWithOffset(1, err).NotTo(HaveOccurred())
	return p
}

func with(fields []itn.Field, name, value string) []itn.Field {
	out := make([]itn.Field, 0, len(fields)+1)
	replaced := false
	for _, f := range fields {
		if f.Name == name {
			out = append(out, itn.Field{Name: name, Value: value})
			replaced = true
			continue
		}
		out = append(out, f)
	}
	if !replaced {
		out = append(out, itn.Field{Name: name, Value: value})
	}
	return out
}

func without(fields []itn.Field, name string) []itn.Field {
	out := make([]itn.Field, 0, len(fields))
	for _, f := range fields {
		if f.Name != name {
			out = append(out, f)
		}
	}
	return out
}

var _ = Describe("RecordFromPayload", func() {
	It("should map every gateway field", func() {
		fields := append(orderFields(),
			itn.Field{Name: "payment_status", Value: "COMPLETE"},
			itn.Field{Name: "item_description", Value: "A blue widget"},
			itn.Field{Name: "custom_str2", Value: "ref-7"},
			itn.Field{Name: "custom_int5", Value: "-42"},
			itn.Field{Name: "name_first", Value: "Ada"},
			itn.Field{Name: "name_last", Value: "Lovelace"},
			itn.Field{Name: "email_address", Value: "ada@example.com"},
			itn.Field{Name: "signature", Value: "0123456789abcdef0123456789abcdef"},
		)

		rec, err := itn.RecordFromPayload(payloadOf(fields...))
		Expect(err).NotTo(HaveOccurred())
		Expect(*rec.MerchantPaymentID).To(Equal("ORD1"))
		Expect(*rec.GatewayPaymentID).To(Equal("PF1"))
		Expect(*rec.PaymentStatus).To(Equal("COMPLETE"))
		Expect(rec.ItemName).To(Equal("Widget"))
		Expect(*rec.ItemDescription).To(Equal("A blue widget"))
		Expect(rec.AmountGross.Decimal.Equal(decimal.RequireFromString("100"))).To(BeTrue())
		Expect(rec.AmountNet.Decimal.StringFixed(2)).To(Equal("98.00"))
		Expect(rec.CustomStr1).To(BeNil())
		Expect(*rec.CustomStr2).To(Equal("ref-7"))
		Expect(*rec.CustomInt5).To(BeNumerically("==", -42))
		Expect(*rec.EmailAddress).To(Equal("ada@example.com"))
		Expect(rec.MerchantID).To(Equal(testMerchantID))
		Expect(*rec.Signature).To(HaveLen(32))
		Expect(rec.AmountsBalanced()).To(BeTrue())
		Expect(rec.Trusted).To(BeNil())
	})

	It("should keep only a column-wide prefix of an overlong signature", func() {
		fields := append(orderFields(), itn.Field{Name: "signature", Value: strings.Repeat("a", 64)})
		rec, err := itn.RecordFromPayload(payloadOf(fields...))
		Expect(err).NotTo(HaveOccurred())
		Expect(*rec.Signature).To(Equal(strings.Repeat("a", 32)))
	})

	It("should map blank optional fields to nil", func() {
		fields := with(orderFields(), "item_description", "")
		fields = with(fields, "amount_fee", "")
		fields = with(fields, "custom_int1", "")

		rec, err := itn.RecordFromPayload(payloadOf(fields...))
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.ItemDescription).To(BeNil())
		Expect(rec.AmountFee.Valid).To(BeFalse())
		Expect(rec.CustomInt1).To(BeNil())
	})

	It("should accept a notification with only the gateway id", func() {
		rec, err := itn.RecordFromPayload(payloadOf(without(orderFields(), "m_payment_id")...))
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.MerchantPaymentID).To(BeNil())
		Expect(rec.Key()).To(Equal("pf:PF1"))
	})

	It("should reject a notification with no identifier", func() {
		fields := with(orderFields(), "m_payment_id", "")
		fields = without(fields, "pf_payment_id")
		_, err := itn.RecordFromPayload(payloadOf(fields...))
		expectCode(err, errors.ErrCodeMissingIdentifier)
	})

	It("should accept trailing zeros beyond cents", func() {
		rec, err := itn.RecordFromPayload(payloadOf(with(orderFields(), "amount_gross", "100.5000")...))
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.AmountGross.Decimal.StringFixed(2)).To(Equal("100.50"))
	})

	DescribeTable("should reject invalid fields",
		func(name, value string) {
			_, err := itn.RecordFromPayload(payloadOf(with(orderFields(), name, value)...))
			Expect(err).To(HaveOccurred())
			appErr, ok := errors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(400))
		},
		Entry("missing item name", "item_name", ""),
		Entry("long item name", "item_name", strings.Repeat("x", 101)),
		Entry("missing merchant id", "merchant_id", ""),
		Entry("long merchant id", "merchant_id", strings.Repeat("9", 16)),
		Entry("long gateway id", "pf_payment_id", strings.Repeat("1", 41)),
		Entry("long status", "payment_status", strings.Repeat("C", 21)),
		Entry("non-numeric amount", "amount_gross", "ten"),
		Entry("fraction of a cent", "amount_gross", "100.005"),
		Entry("non-integer custom int", "custom_int3", "1.5"),
		Entry("long custom string", "custom_str1", strings.Repeat("s", 256)),
	)
})
