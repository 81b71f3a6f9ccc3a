package itn

import (
	stderrors "errors"
	"io"
	"net/http"

	errors "github.com/frahmantamala/payfast-itn/internal"
	"github.com/frahmantamala/payfast-itn/internal/transport"
	"github.com/frahmantamala/payfast-itn/pkg/logger"
)

const defaultMaxBodyBytes = 64 << 10

type Handler struct {
	*transport.BaseHandler
	Service      ServiceAPI
	maxBodyBytes int64
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI, maxBodyBytes int64) *Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	return &Handler{
		BaseHandler:  baseHandler,
		Service:      service,
		maxBodyBytes: maxBodyBytes,
	}
}

// Notify answers 200 with an empty body once the notification is durably
// recorded, whatever the trust verdict. Anything else makes the gateway retry.
func (h *Handler) Notify(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			h.HandleError(w, errors.ErrBodyTooLarge)
			return
		}
		h.HandleError(w, errors.ErrMalformedPayload.WithCause(err))
		return
	}

	result, err := h.Service.Ingest(r.Context(), Notification{
		Body:        body,
		ContentType: r.Header.Get("Content-Type"),
		RemoteAddr:  r.RemoteAddr,
	})
	if err != nil {
		h.HandleError(w, err)
		return
	}

	logger.From(r.Context()).Debug("notification acknowledged",
		"transaction_id", result.Record.ID,
		"outcome", result.Outcome)

	w.WriteHeader(http.StatusOK)
}
