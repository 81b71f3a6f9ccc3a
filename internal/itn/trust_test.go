package itn_test

import (
	"strings"

	"github.com/frahmantamala/payfast-itn/internal/itn"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func check(name string, status itn.CheckStatus) itn.CheckResult {
	return itn.CheckResult{Check: name, Status: status}
}

var _ = Describe("Evaluate", func() {
	var (
		sigOK  = check(itn.CheckSignature, itn.CheckPassed)
		authOK = check(itn.CheckAuthority, itn.CheckPassed)
		srcOK  = check(itn.CheckSource, itn.CheckPassed)
	)

	It("should trust when every check passes", func() {
		eval := itn.Evaluate(sigOK, authOK, srcOK)
		Expect(eval.Verdict).To(Equal(itn.VerdictTrusted))
		Expect(eval.Trusted()).To(BeTrue())
		Expect(eval.Checks).To(HaveLen(3))
		Expect(eval.EvaluatedAt).NotTo(BeZero())
	})

	It("should trust when the signature is not evaluated", func() {
		eval := itn.Evaluate(check(itn.CheckSignature, itn.CheckNotEvaluated), authOK, srcOK)
		Expect(eval.Verdict).To(Equal(itn.VerdictTrusted))
	})

	DescribeTable("should not trust without proof",
		func(sig, auth, src itn.CheckResult, reason string) {
			eval := itn.Evaluate(sig, auth, src)
			Expect(eval.Verdict).To(Equal(itn.VerdictUntrusted))
			Expect(eval.Reason).To(ContainSubstring(reason))
		},
		Entry("signature rejected", check(itn.CheckSignature, itn.CheckRejected), authOK, srcOK, "rejected by signature"),
		Entry("authority rejected", sigOK, check(itn.CheckAuthority, itn.CheckRejected), srcOK, "rejected by authority"),
		Entry("authority inconclusive", sigOK, check(itn.CheckAuthority, itn.CheckInconclusive), srcOK, "could not confirm authority"),
		Entry("authority not evaluated", sigOK, check(itn.CheckAuthority, itn.CheckNotEvaluated), srcOK, "authority confirmation missing"),
		Entry("source rejected", sigOK, authOK, check(itn.CheckSource, itn.CheckRejected), "rejected by source"),
		Entry("source not evaluated", sigOK, authOK, check(itn.CheckSource, itn.CheckNotEvaluated), "source address not validated"),
	)

	It("should prefer rejections over inconclusive checks in the reason", func() {
		eval := itn.Evaluate(
			check(itn.CheckSignature, itn.CheckRejected),
			check(itn.CheckAuthority, itn.CheckInconclusive),
			srcOK)
		Expect(eval.Reason).To(Equal("rejected by signature"))
	})

	It("should let an extra check veto trust", func() {
		eval := itn.Evaluate(sigOK, authOK, srcOK, check(itn.CheckMerchant, itn.CheckRejected))
		Expect(eval.Verdict).To(Equal(itn.VerdictUntrusted))
		Expect(eval.Checks).To(HaveLen(4))
	})

	It("should add notes without touching the verdict or the original checks", func() {
		eval := itn.Evaluate(sigOK, authOK, srcOK)
		noted := eval.WithNote(itn.CheckIdentifier, "pf_payment_id PF1 already belongs to transaction 7")

		Expect(noted.Verdict).To(Equal(itn.VerdictTrusted))
		Expect(noted.Checks).To(HaveLen(4))
		Expect(eval.Checks).To(HaveLen(3))
		Expect(noted.Summary()).To(ContainSubstring("identifier=noted(pf_payment_id PF1"))
	})

	Describe("Summary", func() {
		It("should list every check", func() {
			s := itn.Evaluate(check(itn.CheckSignature, itn.CheckRejected), authOK, srcOK).Summary()
			Expect(s).To(HavePrefix("untrusted: "))
			Expect(s).To(ContainSubstring("signature=rejected"))
			Expect(s).To(ContainSubstring("authority=passed"))
		})

		It("should stay within the column limit", func() {
			long := itn.CheckResult{Check: itn.CheckAuthority, Status: itn.CheckInconclusive, Detail: strings.Repeat("é", 400)}
			s := itn.Evaluate(sigOK, long, srcOK).Summary()
			Expect([]rune(s)).To(HaveLen(255))
			Expect(s).To(HaveSuffix("..."))
		})
	})

	Describe("Verdict column", func() {
		It("should map tri-state values", func() {
			Expect(itn.VerdictUnknown.Column()).To(BeNil())
			Expect(*itn.VerdictTrusted.Column()).To(BeTrue())
			Expect(*itn.VerdictUntrusted.Column()).To(BeFalse())

			Expect(itn.VerdictFromColumn(nil)).To(Equal(itn.VerdictUnknown))
			Expect(itn.VerdictFromColumn(itn.VerdictTrusted.Column())).To(Equal(itn.VerdictTrusted))
			Expect(itn.VerdictFromColumn(itn.VerdictUntrusted.Column())).To(Equal(itn.VerdictUntrusted))
		})
	})

	Describe("AppendTrail", func() {
		It("should append and keep the newest entries", func() {
			var trail []byte
			var err error
			for i := 0; i < 25; i++ {
				trail, err = itn.AppendTrail(trail, itn.Evaluate(sigOK, authOK, srcOK))
				Expect(err).NotTo(HaveOccurred())
			}
			entries, err := itn.DecodeTrail(trail)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(20))
		})

		It("should fail on a corrupt trail", func() {
			_, err := itn.AppendTrail([]byte("{"), itn.Evaluate(sigOK, authOK, srcOK))
			Expect(err).To(HaveOccurred())
		})
	})
})
