package repository

import (
	"fmt"
	"strings"
	"testing"

	"commerce-core/internal/client"
	"commerce-core/internal/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testTenant = "acme"

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared",
		strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := client.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// sqlite allows one writer; a single pooled connection serializes the
	// transactions of concurrent goroutines instead of failing them
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func seedBalance(t *testing.T, db *gorm.DB, productID, warehouseID string, actual, reserved int) {
	t.Helper()
	err := db.Create(&model.WarehouseBalance{
		TenantID:    testTenant,
		ProductID:   productID,
		WarehouseID: warehouseID,
		ActualQty:   actual,
		ReservedQty: reserved,
	}).Error
	if err != nil {
		t.Fatalf("seed balance %s/%s: %v", productID, warehouseID, err)
	}
}

func loadBalance(t *testing.T, db *gorm.DB, productID, warehouseID string) *model.WarehouseBalance {
	t.Helper()
	var balance model.WarehouseBalance
	err := db.First(&balance, "product_id = ? AND warehouse_id = ?", productID, warehouseID).Error
	if err != nil {
		t.Fatalf("load balance %s/%s: %v", productID, warehouseID, err)
	}
	return &balance
}
