package itn_test

import (
	errors "github.com/frahmantamala/payfast-itn/internal"
	"github.com/frahmantamala/payfast-itn/internal/itn"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func expectCode(err error, code errors.ErrorCode) {
	ExpectWithOffset(1, err).To(HaveOccurred())
	appErr, ok := errors.IsAppError(err)
	ExpectWithOffset(1, ok).To(BeTrue(), "expected *AppError, got %T", err)
	ExpectWithOffset(1, appErr.Code).To(Equal(code))
}

var _ = Describe("ParsePayload", func() {
	It("should keep fields in received order", func() {
		p, err := itn.ParsePayload([]byte("b=2&a=1&c=3"), itn.FormContentType)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Fields()).To(Equal([]itn.Field{
			{Name: "b", Value: "2"},
			{Name: "a", Value: "1"},
			{Name: "c", Value: "3"},
		}))
	})

	It("should decode plus signs and percent escapes", func() {
		p, err := itn.ParsePayload([]byte("item_name=Blue+Widget%20%26+Co&email_address=a%40b.com"), itn.FormContentType)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Value("item_name")).To(Equal("Blue Widget & Co"))
		Expect(p.Value("email_address")).To(Equal("a@b.com"))
	})

	It("should keep blank values as present", func() {
		p, err := itn.ParsePayload([]byte("item_description=&item_name=x"), itn.FormContentType)
		Expect(err).NotTo(HaveOccurred())
		v, ok := p.Get("item_description")
		Expect(ok).To(BeTrue())
		Expect(v).To(BeEmpty())
	})

	It("should accept a content type with parameters in any case", func() {
		_, err := itn.ParsePayload([]byte("a=1"), "Application/X-WWW-Form-Urlencoded; charset=UTF-8")
		Expect(err).NotTo(HaveOccurred())
	})

	DescribeTable("should reject malformed bodies",
		func(body string, code errors.ErrorCode) {
			_, err := itn.ParsePayload([]byte(body), itn.FormContentType)
			expectCode(err, code)
		},
		Entry("empty body", "", errors.ErrCodeMalformedPayload),
		Entry("pair without '='", "a=1&b", errors.ErrCodeMalformedPayload),
		Entry("empty pair", "a=1&&b=2", errors.ErrCodeMalformedPayload),
		Entry("empty name", "=1", errors.ErrCodeMalformedPayload),
		Entry("bad escape", "a=%zz", errors.ErrCodeMalformedPayload),
		Entry("invalid utf-8", "a=%ff%fe", errors.ErrCodeMalformedPayload),
	)

	It("should reject a repeated field name", func() {
		_, err := itn.ParsePayload([]byte("a=1&a=2"), itn.FormContentType)
		expectCode(err, errors.ErrCodeValidationFailed)
		appErr, _ := errors.IsAppError(err)
		details, ok := appErr.Details.(errors.ValidationErrors)
		Expect(ok).To(BeTrue())
		Expect(details.Errors[0].Field).To(Equal("a"))
		Expect(details.Errors[0].Code).To(Equal(string(errors.ErrCodeDuplicateField)))
	})

	It("should reject other content types", func() {
		_, err := itn.ParsePayload([]byte(`{"a":1}`), "application/json")
		expectCode(err, errors.ErrCodeUnsupportedContentType)

		_, err = itn.ParsePayload([]byte("a=1"), "")
		expectCode(err, errors.ErrCodeUnsupportedContentType)
	})

	Describe("Without", func() {
		It("should drop only the named field", func() {
			p, err := itn.NewPayload(
				itn.Field{Name: "a", Value: "1"},
				itn.Field{Name: "signature", Value: "x"},
				itn.Field{Name: "b", Value: "2"},
			)
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Without("signature")).To(Equal([]itn.Field{
				{Name: "a", Value: "1"},
				{Name: "b", Value: "2"},
			}))
			Expect(p.Len()).To(Equal(3))
		})
	})

	It("should round-trip through Encode", func() {
		fields := []itn.Field{
			{Name: "item_name", Value: "Café & Co"},
			{Name: "custom_str1", Value: "a=b"},
			{Name: "item_description", Value: ""},
		}
		p, err := itn.ParsePayload([]byte(itn.Encode(fields)), itn.FormContentType)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Fields()).To(Equal(fields))
	})
})
