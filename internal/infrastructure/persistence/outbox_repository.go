package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ahtrading/posledger/internal/application/processor"
	"github.com/ahtrading/posledger/internal/infrastructure/persistence/models"
)

// claimSQL locks the next due event for this worker. Pending events go
// first, then failed events by due time; SKIP LOCKED lets concurrent
// workers claim disjoint rows.
const claimSQL = `
SELECT o.*
FROM pos_events_outbox o
WHERE (? = '00000000-0000-0000-0000-000000000000'::uuid OR o.company_id = ?)
  AND (o.status = 'pending'
       OR (o.status = 'failed' AND o.next_attempt_at IS NOT NULL AND o.next_attempt_at <= now()))
  AND o.attempt_count < ?
ORDER BY CASE WHEN o.status = 'pending' THEN 0 ELSE 1 END,
         COALESCE(o.next_attempt_at, o.created_at),
         o.created_at
LIMIT 1
FOR UPDATE OF o SKIP LOCKED`

// GormOutboxRepository claims and settles outbox events. It owns the
// per-event transaction: document writes run inside it via the context
// handle, under a savepoint so a failed builder still commits the status
// update.
type GormOutboxRepository struct {
	db          *gorm.DB
	companyID   uuid.UUID // uuid.Nil claims across all companies
	maxAttempts int
}

// NewGormOutboxRepository creates a repository claiming events for one
// company, or for all companies when companyID is uuid.Nil.
func NewGormOutboxRepository(db *gorm.DB, companyID uuid.UUID, maxAttempts int) *GormOutboxRepository {
	return &GormOutboxRepository{db: db, companyID: companyID, maxAttempts: maxAttempts}
}

// ProcessNext implements processor.OutboxSource.
func (r *GormOutboxRepository) ProcessNext(ctx context.Context, handle processor.HandleFunc) (bool, error) {
	claimed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m models.PosEventModel
		res := tx.Raw(claimSQL, r.companyID, r.companyID, r.maxAttempts).Scan(&m)
		if res.Error != nil {
			return fmt.Errorf("claim next event: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		claimed = true

		ev := m.ToDomain()

		// Nested transaction = savepoint. A builder error rolls its writes
		// back while the event row stays locked for the status update.
		_ = tx.Transaction(func(sp *gorm.DB) error {
			return handle(WithTx(ctx, sp), ev)
		})

		update := map[string]any{
			"status":          string(ev.Status),
			"attempt_count":   ev.AttemptCount,
			"error_message":   ev.ErrorMessage,
			"next_attempt_at": ev.NextAttemptAt,
			"processed_at":    ev.ProcessedAt,
			"updated_at":      gorm.Expr("now()"),
		}
		if err := tx.Model(&models.PosEventModel{}).Where("id = ?", ev.ID).Updates(update).Error; err != nil {
			return fmt.Errorf("update event status: %w", err)
		}
		return nil
	})
	return claimed, err
}
