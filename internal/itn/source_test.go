package itn_test

import (
	"github.com/frahmantamala/payfast-itn/internal/itn"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("SourceValidator", func() {
	It("should reject invalid networks", func() {
		_, err := itn.NewSourceValidator([]string{"not-a-network"})
		Expect(err).To(HaveOccurred())
	})

	Context("with allowed ranges", func() {
		var v *itn.SourceValidator

		BeforeEach(func() {
			var err error
			v, err = itn.NewSourceValidator([]string{"197.97.145.144/28", "10.0.0.7", " ", "2001:db8::/32"})
			Expect(err).NotTo(HaveOccurred())
			Expect(v.Permissive()).To(BeFalse())
		})

		DescribeTable("should classify addresses",
			func(remote string, status itn.CheckStatus) {
				res := v.Validate(remote)
				Expect(res.Check).To(Equal(itn.CheckSource))
				Expect(res.Status).To(Equal(status))
				Expect(res.Unchecked).To(BeFalse())
			},
			Entry("inside range with port", "197.97.145.150:51234", itn.CheckPassed),
			Entry("inside range without port", "197.97.145.144", itn.CheckPassed),
			Entry("single address", "10.0.0.7:80", itn.CheckPassed),
			Entry("ipv4-mapped ipv6", "[::ffff:197.97.145.145]:443", itn.CheckPassed),
			Entry("ipv6 range", "[2001:db8::1]:443", itn.CheckPassed),
			Entry("outside range", "197.97.145.160:443", itn.CheckRejected),
			Entry("garbage", "nonsense", itn.CheckRejected),
			Entry("empty", "", itn.CheckRejected),
		)
	})

	Context("without ranges", func() {
		It("should pass every address as unchecked", func() {
			v, err := itn.NewSourceValidator(nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(v.Permissive()).To(BeTrue())

			res := v.Validate("8.8.8.8:53")
			Expect(res.Status).To(Equal(itn.CheckPassed))
			Expect(res.Unchecked).To(BeTrue())
			Expect(res.String()).To(ContainSubstring("unchecked"))
		})
	})

	Describe("ParseRemoteAddr", func() {
		It("should unmap ipv4-mapped addresses", func() {
			addr, err := itn.ParseRemoteAddr("::ffff:10.1.2.3")
			Expect(err).NotTo(HaveOccurred())
			Expect(addr.String()).To(Equal("10.1.2.3"))
		})
	})
})
