package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"commerce-core/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CounterRepository interface {
	// NextOrderNumber increments the per-tenant counter for the given
	// period in its own transaction and returns the formatted number. A
	// number handed to a checkout that later fails is burned, never
	// reissued, so the committed sequence may have gaps but a number can
	// never appear on two orders.
	NextOrderNumber(ctx context.Context, tenantID string, now time.Time) (string, error)
}

type counterRepoImpl struct {
	db *gorm.DB
}

func NewCounterRepository(db *gorm.DB) CounterRepository {
	return &counterRepoImpl{db: db}
}

func (r *counterRepoImpl) NextOrderNumber(ctx context.Context, tenantID string, now time.Time) (string, error) {
	period := now.Format("200601")

	var value int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var counter model.OrderCounter
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("tenant_id = ? AND period = ?", tenantID, period).
			First(&counter).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			counter = model.OrderCounter{TenantID: tenantID, Period: period}
			// another transaction may race the first allocation of a
			// period; the conflict clause folds that into a plain retry of
			// the lock.
			if err := tx.
				Clauses(clause.OnConflict{DoNothing: true}).
				Create(&counter).Error; err != nil {
				return err
			}
			if err := tx.
				Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("tenant_id = ? AND period = ?", tenantID, period).
				First(&counter).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		counter.Value++
		value = counter.Value
		return tx.Model(&model.OrderCounter{}).
			Where("tenant_id = ? AND period = ?", tenantID, period).
			Update("value", counter.Value).Error
	})
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("ORD-%s-%05d", period, value), nil
}
