package itn_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	"github.com/frahmantamala/payfast-itn/internal/itn"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("HTTPConfirmer", func() {
	var (
		server   *httptest.Server
		answer   atomic.Value
		status   atomic.Int32
		delay    atomic.Int64
		received atomic.Value
		hits     atomic.Int32
	)

	newConfirmer := func(timeout time.Duration) *itn.HTTPConfirmer {
		return itn.NewHTTPConfirmer(itn.ConfirmerConfig{
			ValidateURL:        server.URL + "/eng/query/validate",
			Timeout:            timeout,
			BreakerMinRequests: 2,
			BreakerTimeout:     time.Minute,
		}, quietLogger())
	}

	BeforeEach(func() {
		answer.Store("VALID")
		status.Store(http.StatusOK)
		delay.Store(0)
		hits.Store(0)

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			body, _ := io.ReadAll(r.Body)
			received.Store(string(body))
			if d := time.Duration(delay.Load()); d > 0 {
				select {
				case <-time.After(d):
				case <-r.Context().Done():
					return
				}
			}
			w.WriteHeader(int(status.Load()))
			_, _ = io.WriteString(w, answer.Load().(string))
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	It("should replay the raw body and pass on VALID", func() {
		body := []byte("m_payment_id=ORD1&item_name=Widget")
		res := newConfirmer(time.Second).Confirm(context.Background(), body)
		Expect(res.Status).To(Equal(itn.CheckPassed))
		Expect(received.Load()).To(Equal(string(body)))
	})

	It("should reject on INVALID", func() {
		answer.Store("INVALID")
		res := newConfirmer(time.Second).Confirm(context.Background(), []byte("a=1"))
		Expect(res.Status).To(Equal(itn.CheckRejected))
	})

	It("should be inconclusive on an unknown token", func() {
		answer.Store("<html>oops</html>")
		res := newConfirmer(time.Second).Confirm(context.Background(), []byte("a=1"))
		Expect(res.Status).To(Equal(itn.CheckInconclusive))
	})

	It("should be inconclusive on a server error", func() {
		status.Store(http.StatusBadGateway)
		res := newConfirmer(time.Second).Confirm(context.Background(), []byte("a=1"))
		Expect(res.Status).To(Equal(itn.CheckInconclusive))
	})

	It("should be inconclusive on timeout", func() {
		delay.Store(int64(500 * time.Millisecond))
		res := newConfirmer(50*time.Millisecond).Confirm(context.Background(), []byte("a=1"))
		Expect(res.Status).To(Equal(itn.CheckInconclusive))
		Expect(res.Detail).To(ContainSubstring("timed out"))
	})

	It("should stop calling the gateway once the breaker opens", func() {
		status.Store(http.StatusInternalServerError)
		confirmer := newConfirmer(time.Second)

		for i := 0; i < 2; i++ {
			Expect(confirmer.Confirm(context.Background(), []byte("a=1")).Status).To(Equal(itn.CheckInconclusive))
		}
		Expect(hits.Load()).To(BeNumerically("==", 2))

		res := confirmer.Confirm(context.Background(), []byte("a=1"))
		Expect(res.Status).To(Equal(itn.CheckInconclusive))
		Expect(res.Detail).To(ContainSubstring("suspended"))
		Expect(hits.Load()).To(BeNumerically("==", 2))
	})

	Describe("InterpretToken", func() {
		DescribeTable("should map gateway answers",
			func(body string, status itn.CheckStatus) {
				Expect(itn.InterpretToken([]byte(body)).Status).To(Equal(status))
			},
			Entry("valid", "VALID", itn.CheckPassed),
			Entry("lowercase with newline", "valid\n", itn.CheckPassed),
			Entry("invalid", " INVALID ", itn.CheckRejected),
			Entry("empty", "", itn.CheckInconclusive),
			Entry("other", "MAYBE", itn.CheckInconclusive),
		)
	})
})
