package sandbox

import (
	"io"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	errors "github.com/frahmantamala/payfast-itn/internal"
	"github.com/frahmantamala/payfast-itn/internal/core/common/validation"
	"github.com/frahmantamala/payfast-itn/internal/transport"
)

const ValidatePath = "/eng/query/validate"

type Handler struct {
	*transport.BaseHandler
	gateway *Gateway
}

func NewHandler(baseHandler *transport.BaseHandler, gateway *Gateway) *Handler {
	return &Handler{BaseHandler: baseHandler, gateway: gateway}
}

// Validate answers VALID for bodies the sandbox sent and INVALID otherwise.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 64<<10))
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	answer := "INVALID"
	if h.gateway.Sent(body) {
		answer = "VALID"
	}

	h.Logger.Debug("validate query answered", "answer", answer)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, answer)
}

type createPaymentResponse struct {
	MerchantPaymentID string `json:"m_payment_id"`
	GatewayPaymentID  string `json:"pf_payment_id"`
	Status            string `json:"payment_status"`
}

func knownStatus(value interface{}) *errors.AppError {
	switch value.(string) {
	case "", StatusComplete, StatusFailed, StatusPending, StatusCancelled:
		return nil
	}
	return errors.NewValidationFieldError("payment_status", "payment_status is not a gateway status", errors.ErrCodeInvalidField)
}

// CreatePayment simulates a completed checkout and queues its notification.
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.HandleError(w, errors.ErrMalformedPayload.WithCause(err))
		return
	}

	itemName := r.PostForm.Get("item_name")
	gross := r.PostForm.Get("amount_gross")
	fee := r.PostForm.Get("amount_fee")
	if fee == "" {
		fee = "0"
	}

	v := validation.NewValidator()
	v.Field("item_name", itemName).Required().MaxLength(100)
	v.Field("amount_gross", gross).Required().Amount()
	v.Field("amount_fee", fee).Amount()
	v.Field("payment_status", r.PostForm.Get("payment_status")).Custom(knownStatus)
	if appErr := v.Validate(); appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	mPaymentID := r.PostForm.Get("m_payment_id")
	if mPaymentID == "" {
		mPaymentID = uuid.NewString()
	}

	p := NewPayment(mPaymentID, itemName, decimal.RequireFromString(gross), decimal.RequireFromString(fee))
	if status := r.PostForm.Get("payment_status"); status != "" {
		p.Status = status
	}
	p.EmailAddress = r.PostForm.Get("email_address")
	p.NameFirst = r.PostForm.Get("name_first")
	p.NameLast = r.PostForm.Get("name_last")

	job, err := h.gateway.Notify(p)
	if err != nil {
		h.WriteError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	h.WriteJSON(w, http.StatusAccepted, createPaymentResponse{
		MerchantPaymentID: job.MerchantPaymentID,
		GatewayPaymentID:  job.GatewayPaymentID,
		Status:            p.Status,
	})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, h.gateway.Stats())
}

func (h *Handler) Routes(router chi.Router) {
	router.Post(ValidatePath, h.Validate)
	router.Post("/eng/payments", h.CreatePayment)
	router.Get("/eng/stats", h.Stats)
}
