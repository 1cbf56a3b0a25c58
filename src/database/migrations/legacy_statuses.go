package migrations

import (
	"fmt"

	"gorm.io/gorm"
)

// orderStatusAliases maps pre-consolidation order status spellings onto
// the collapsed enum. Must stay in sync with the model-level read-time
// normalization so old rows and new rows compare equal.
var orderStatusAliases = map[string]string{
	"amo":               "pending",
	"pending_execution": "pending",
	"retry_pending":     "pending",
	"open":              "pending",
	"rejected":          "failed",
	"error":             "failed",
	"executed":          "filled",
	"complete":          "filled",
	"partial":           "partially_filled",
}

// normalizeLegacyOrderStatuses rewrites every stored order status into
// the canonical lowercase enum. Read-time normalization keeps working
// either way, this just makes indexed status filters exact again.
func normalizeLegacyOrderStatuses(db *gorm.DB) error {
	for _, table := range []string{"orders", "order_logs"} {
		if err := db.Exec(fmt.Sprintf("UPDATE %s SET status = LOWER(TRIM(status)) WHERE status <> LOWER(TRIM(status))", table)).Error; err != nil {
			return fmt.Errorf("lowercase statuses on %s: %w", table, err)
		}

		for legacy, canonical := range orderStatusAliases {
			if err := db.Exec(fmt.Sprintf("UPDATE %s SET status = ? WHERE status = ?", table), canonical, legacy).Error; err != nil {
				return fmt.Errorf("collapse status %q on %s: %w", legacy, table, err)
			}
		}
	}

	return nil
}

func normalizeLegacyPositionStatuses(db *gorm.DB) error {
	if err := db.Exec("UPDATE positions SET status = LOWER(TRIM(status)) WHERE status <> LOWER(TRIM(status))").Error; err != nil {
		return fmt.Errorf("lowercase position statuses: %w", err)
	}

	return db.Exec("UPDATE positions SET status = 'open' WHERE status = '' OR status IS NULL").Error
}

// backfillOrderEntryType stamps rows created before the entry_type column
// existed. Orders recorded in a position's reentry history are reentries,
// everything else is a fresh entry.
func backfillOrderEntryType(db *gorm.DB) error {
	return db.Exec("UPDATE orders SET entry_type = 'new_entry' WHERE entry_type IS NULL OR entry_type = ''").Error
}
