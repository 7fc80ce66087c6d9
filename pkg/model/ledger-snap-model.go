package model

import (
	"github.com/shopspring/decimal"
)

// LedgerSnap model, one row per journaled balance change, partitioned by code
type LedgerSnap struct {
	ID int64 `json:"id" gorm:"omitempty; primaryKey;"`

	LogID    int64 `json:"logID" gorm:"omitempty; not null; default:0; uniqueindex:idx_ls_log_id_index"`
	LogIndex int64 `json:"logIndex" gorm:"omitempty; not null; default:0; uniqueindex:idx_ls_log_id_index"`

	Action string `json:"action" gorm:"omitempty; not null; default:''; type:varchar(16);"`
	Owner  string `json:"owner" gorm:"omitempty; not null; default:''; type:varchar(64); index;"`
	Payer  string `json:"payer" gorm:"omitempty; not null; default:''; type:varchar(64);"`

	Change    decimal.Decimal `json:"change" gorm:"omitempty; not null; default:0; type:decimal(36,18);"`
	AmountNew decimal.Decimal `json:"amountNew" gorm:"omitempty; not null; default:0; type:decimal(36,18);"`

	Model
}
