package models

import (
	"bitbucket.org/mmdatafocus/warehouse_backend/config"
)

func MigrateTable() error {
	db := config.GetDB()
	return db.AutoMigrate(
		&Business{},
		&Warehouse{},
		&User{},
		&Product{},
		&Customer{},
		&Supplier{},
		&InventoryBatch{},
		&StockIn{},
		&StockInDetail{},
		&Sale{},
		&SaleDetail{},
		&Payment{},
		&DocumentRevision{},
		&TransactionNumberSeries{},
	)
}
