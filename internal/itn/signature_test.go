package itn_test

import (
	"crypto/md5"
	"encoding/hex"
	"strings"

	"github.com/frahmantamala/payfast-itn/internal/itn"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func mustPayload(body []byte) *itn.Payload {
	p, err := itn.ParsePayload(body, itn.FormContentType)
	ExpectWithOffset(1, err).NotTo(HaveOccurred())
	return p
}

var _ = Describe("Signer", func() {
	Describe("ParamString", func() {
		It("should encode trimmed values in received order and skip the signature", func() {
			fields := []itn.Field{
				{Name: "m_payment_id", Value: "ORD1"},
				{Name: "item_name", Value: " Blue Widget "},
				{Name: "item_description", Value: ""},
				{Name: "signature", Value: "abc"},
				{Name: "email_address", Value: "a@b.com"},
			}
			Expect(itn.ParamString(fields)).To(Equal(
				"m_payment_id=ORD1&item_name=Blue+Widget&item_description=&email_address=a%40b.com"))
		})
	})

	Describe("Sign", func() {
		It("should append the passphrase when configured", func() {
			fields := []itn.Field{{Name: "a", Value: "1"}}
			Expect(itn.NewSigner("se cret").Sign(fields)).To(Equal(md5Hex("a=1&passphrase=se+cret")))
			Expect(itn.NewSigner("").Sign(fields)).To(Equal(md5Hex("a=1")))
		})

		It("should trim the passphrase", func() {
			fields := []itn.Field{{Name: "a", Value: "1"}}
			Expect(itn.NewSigner("  pass  ").Sign(fields)).To(Equal(itn.NewSigner("pass").Sign(fields)))
		})
	})

	Describe("Verify", func() {
		var signer *itn.Signer

		BeforeEach(func() {
			signer = itn.NewSigner(testPassphrase)
		})

		It("should pass a correctly signed body", func() {
			res := signer.Verify(mustPayload(signedBody(testPassphrase, orderFields()...)))
			Expect(res.Check).To(Equal(itn.CheckSignature))
			Expect(res.Status).To(Equal(itn.CheckPassed))
		})

		It("should accept an uppercase signature", func() {
			fields := orderFields()
			sig := strings.ToUpper(signer.Sign(fields))
			fields = append(fields, itn.Field{Name: "signature", Value: sig})
			res := signer.Verify(mustPayload([]byte(itn.Encode(fields))))
			Expect(res.Status).To(Equal(itn.CheckPassed))
		})

		It("should reject a wrong signature", func() {
			fields := append(orderFields(), itn.Field{Name: "signature", Value: "deadbeef"})
			res := signer.Verify(mustPayload([]byte(itn.Encode(fields))))
			Expect(res.Status).To(Equal(itn.CheckRejected))
			Expect(res.Detail).To(ContainSubstring("mismatch"))
		})

		It("should note the length of a signature that cannot match", func() {
			fields := append(orderFields(), itn.Field{Name: "signature", Value: strings.Repeat("a", 64)})
			res := signer.Verify(mustPayload([]byte(itn.Encode(fields))))
			Expect(res.Status).To(Equal(itn.CheckRejected))
			Expect(res.Detail).To(ContainSubstring("received 64 characters"))
		})

		It("should reject a body signed with another passphrase", func() {
			res := signer.Verify(mustPayload(signedBody("other", orderFields()...)))
			Expect(res.Status).To(Equal(itn.CheckRejected))
		})

		It("should reject a body whose field order changed", func() {
			fields := orderFields()
			sig := signer.Sign(fields)
			fields[0], fields[1] = fields[1], fields[0]
			fields = append(fields, itn.Field{Name: "signature", Value: sig})
			res := signer.Verify(mustPayload([]byte(itn.Encode(fields))))
			Expect(res.Status).To(Equal(itn.CheckRejected))
		})

		It("should reject a missing signature", func() {
			res := signer.Verify(mustPayload([]byte(itn.Encode(orderFields()))))
			Expect(res.Status).To(Equal(itn.CheckRejected))
			Expect(res.Detail).To(ContainSubstring("missing"))
		})

		It("should not evaluate without a passphrase", func() {
			res := itn.NewSigner("").Verify(mustPayload([]byte(itn.Encode(orderFields()))))
			Expect(res.Status).To(Equal(itn.CheckNotEvaluated))
		})
	})
})
