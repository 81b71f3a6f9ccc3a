package account

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	errors "github.com/frahmantamala/payfast-itn/internal"
	"github.com/frahmantamala/payfast-itn/internal/core/events"
)

type EventHandler struct {
	service  *Service
	assigner OwnerAssigner
	logger   *slog.Logger
}

func NewEventHandler(service *Service, assigner OwnerAssigner, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		service:  service,
		assigner: assigner,
		logger:   logger,
	}
}

// HandleTransactionRecorded attaches the transaction to the payer's account.
// An unknown payer is not an error; the transaction simply stays unowned.
func (h *EventHandler) HandleTransactionRecorded(ctx context.Context, event events.Event) error {
	recorded, ok := event.(*events.TransactionRecordedEvent)
	if !ok {
		h.logger.Error("invalid event type for transaction recorded handler", "event_type", event.EventType())
		return fmt.Errorf("expected TransactionRecordedEvent, got %T", event)
	}

	if recorded.OwnerID != nil || recorded.EmailAddress == "" {
		return nil
	}

	owner, err := h.service.ResolveOwner(ctx, recorded.EmailAddress)
	if stderrors.Is(err, errors.ErrAccountNotFound) {
		h.logger.Debug("no account for payer",
			"transaction_id", recorded.TransactionID,
			"event_id", recorded.EventID())
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve owner for transaction %d: %w", recorded.TransactionID, err)
	}

	assigned, err := h.assigner.AssignOwner(ctx, recorded.TransactionID, owner.ID)
	if err != nil {
		return fmt.Errorf("assign owner for transaction %d: %w", recorded.TransactionID, err)
	}

	h.logger.Info("transaction owner resolved",
		"transaction_id", recorded.TransactionID,
		"account_id", owner.ID,
		"assigned", assigned,
		"event_id", recorded.EventID())

	return nil
}

func (h *EventHandler) RegisterEventHandlers(eventBus *events.EventBus) {
	eventBus.Subscribe(events.EventTypeTransactionRecorded, h.HandleTransactionRecorded)

	h.logger.Info("account event handlers registered",
		"handlers", []string{events.EventTypeTransactionRecorded})
}
