package migrations

import (
	"database/sql"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// PrepareLegacyOrderColumns normalizes schemas that previously stored the
// broker order ID as a numeric column so that AutoMigrate can create the
// varchar column without failing to cast legacy values.
func PrepareLegacyOrderColumns(db *gorm.DB) error {
	columnType, exists, err := lookupColumnType(db, "orders", "broker_order_id")
	if err != nil {
		return fmt.Errorf("inspect orders.broker_order_id: %w", err)
	}

	if exists && isNumeric(columnType) {
		if err := db.Exec("ALTER TABLE orders ALTER COLUMN broker_order_id TYPE varchar(60) USING broker_order_id::varchar").Error; err != nil {
			return fmt.Errorf("convert numeric broker_order_id: %w", err)
		}
	}

	return nil
}

func lookupColumnType(db *gorm.DB, table, column string) (dataType string, exists bool, err error) {
	row := db.Raw(
		`SELECT data_type FROM information_schema.columns WHERE table_name = ? AND column_name = ?`,
		table,
		column,
	).Row()

	if scanErr := row.Scan(&dataType); scanErr != nil {
		if scanErr == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, scanErr
	}

	return dataType, true, nil
}

func isNumeric(dataType string) bool {
	dataType = strings.ToLower(dataType)
	return strings.Contains(dataType, "int") || strings.Contains(dataType, "numeric")
}
