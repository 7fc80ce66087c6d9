package model

import (
	"strings"

	"gorm.io/gorm"
)

// LedgerSnapTable generates different table names based on the symbol code
func LedgerSnapTable(code string) func(tx *gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Table(strings.ToLower(code) + "_ledger_snaps")
	}
}
