package repository

import (
	"context"
	"time"

	"commerce-core/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WebhookEventRepository interface {
	// MarkProcessed inserts the event id into the processed set. It reports
	// false when the id is already there, which is the idempotence signal:
	// the insert and the check are one atomic statement.
	MarkProcessed(ctx context.Context, tx *gorm.DB, tenantID, eventID, eventType string) (bool, error)
}

type webhookEventRepoImpl struct {
	db *gorm.DB
}

func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepoImpl{db: db}
}

func (r *webhookEventRepoImpl) MarkProcessed(ctx context.Context, tx *gorm.DB, tenantID, eventID, eventType string) (bool, error) {
	conn := r.db
	if tx != nil {
		conn = tx
	}

	result := conn.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.ProcessedWebhookEvent{
			EventID:     eventID,
			TenantID:    tenantID,
			EventType:   eventType,
			ProcessedAt: time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
