package postgres

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	errors "github.com/frahmantamala/payfast-itn/internal"
	"github.com/frahmantamala/payfast-itn/internal/core/datamodel/transaction"
	"github.com/frahmantamala/payfast-itn/internal/itn"
)

const uniqueViolation = "23505"

// errInsertRace marks a unique violation raised by the insert path, which is
// the only conflict a retry can resolve.
var errInsertRace = stderrors.New("concurrent insert")

type Ledger struct {
	db      *gorm.DB
	logger  *slog.Logger
	backoff func() retry.Backoff
}

func NewLedger(db *gorm.DB, logger *slog.Logger) *Ledger {
	return &Ledger{
		db:     db,
		logger: logger,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(1, retry.NewConstant(5*time.Millisecond))
		},
	}
}

// Record inserts or merges incoming inside one transaction. A unique
// violation on insert means a concurrent delivery inserted first, so the whole
// unit is retried exactly once and then finds that row.
func (l *Ledger) Record(ctx context.Context, incoming *transaction.Record, eval itn.Evaluation) (*transaction.Record, itn.Outcome, error) {
	var (
		stored  *transaction.Record
		outcome itn.Outcome
		attempt int
	)

	err := retry.Do(ctx, l.backoff(), func(ctx context.Context) error {
		attempt++
		rec := *incoming

		s, o, err := l.recordOnce(ctx, &rec, eval)
		if err != nil {
			if stderrors.Is(err, errInsertRace) {
				l.logger.Warn("ledger unique violation",
					"key", incoming.Key(),
					"attempt", attempt,
					"error", err)
				return retry.RetryableError(err)
			}
			return err
		}

		stored, outcome = s, o
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, "", errors.ErrPersistenceConflict.WithCause(err)
		}
		return nil, "", fmt.Errorf("record %s: %w", incoming.Key(), err)
	}

	return stored, outcome, nil
}

func (l *Ledger) recordOnce(ctx context.Context, rec *transaction.Record, eval itn.Evaluation) (*transaction.Record, itn.Outcome, error) {
	var (
		stored  *transaction.Record
		outcome itn.Outcome
	)

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := findForUpdate(tx, rec)
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			if err := itn.Stamp(rec, eval); err != nil {
				return err
			}
			if err := tx.Create(rec).Error; err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("%w: %w", errInsertRace, err)
				}
				return err
			}
			stored, outcome = rec, itn.OutcomeCreated
			return nil
		}
		if err != nil {
			return err
		}

		eval, err := l.releaseTakenIDs(tx, existing, rec, eval)
		if err != nil {
			return err
		}
		if _, err := itn.DecodeTrail(existing.TrustTrail); err != nil {
			l.logger.Warn("stored trust trail unreadable, starting a new one",
				"transaction_id", existing.ID,
				"error", err)
			existing.TrustTrail = nil
			eval = eval.WithNote(itn.CheckTrail, "previous trail unreadable, restarted")
		}

		if err := itn.Merge(existing, rec, eval); err != nil {
			return err
		}
		if err := tx.Save(existing).Error; err != nil {
			return err
		}
		stored, outcome = existing, itn.OutcomeUpdated
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	return stored, outcome, nil
}

// releaseTakenIDs drops identifiers from rec that the stored row lacks but
// another row already holds, so the merge cannot collide with that row.
func (l *Ledger) releaseTakenIDs(tx *gorm.DB, existing, rec *transaction.Record, eval itn.Evaluation) (itn.Evaluation, error) {
	ids := []struct {
		column string
		stored *string
		taken  **string
	}{
		{"m_payment_id", existing.MerchantPaymentID, &rec.MerchantPaymentID},
		{"pf_payment_id", existing.GatewayPaymentID, &rec.GatewayPaymentID},
	}

	for _, id := range ids {
		if id.stored != nil || *id.taken == nil {
			continue
		}
		value := **id.taken

		var holder transaction.Record
		err := tx.Select("id").
			Where(id.column+" = ? AND id <> ?", value, existing.ID).
			Take(&holder).Error
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return eval, err
		}

		l.logger.Warn("identifier already held by another transaction",
			"transaction_id", existing.ID,
			"column", id.column,
			"value", value,
			"holder_id", holder.ID)
		eval = eval.WithNote(itn.CheckIdentifier,
			fmt.Sprintf("%s %s already belongs to transaction %d", id.column, value, holder.ID))
		*id.taken = nil
	}

	return eval, nil
}

// findForUpdate looks the payment up by merchant id first, then by gateway id,
// locking the row it finds.
func findForUpdate(tx *gorm.DB, rec *transaction.Record) (*transaction.Record, error) {
	lookups := []struct {
		column string
		value  *string
	}{
		{"m_payment_id", rec.MerchantPaymentID},
		{"pf_payment_id", rec.GatewayPaymentID},
	}

	for _, lookup := range lookups {
		if lookup.value == nil {
			continue
		}
		var found transaction.Record
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where(lookup.column+" = ?", *lookup.value).
			First(&found).Error
		if err == nil {
			return &found, nil
		}
		if !stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	return nil, gorm.ErrRecordNotFound
}

func (l *Ledger) FindByID(ctx context.Context, id int64) (*transaction.Record, error) {
	var rec transaction.Record
	err := l.db.WithContext(ctx).First(&rec, id).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// AssignOwner sets owner_id only when it is still empty. It reports whether
// the row changed.
func (l *Ledger) AssignOwner(ctx context.Context, id, ownerID int64) (bool, error) {
	res := l.db.WithContext(ctx).
		Model(&transaction.Record{}).
		Where("id = ? AND owner_id IS NULL", id).
		Update("owner_id", ownerID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
