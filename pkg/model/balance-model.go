package model

import (
	"github.com/shopspring/decimal"
)

// Balance model
// One row per (owner, code), created on first credit and deleted only by an
// explicit close with a zero balance. Payer records who carries the row's
// storage cost.
type Balance struct {
	ID int64 `json:"id" gorm:"omitempty; primaryKey;"`

	Owner string `json:"owner" gorm:"omitempty; not null; default:''; type:varchar(64); uniqueindex:idx_b_owner_code;"`
	Code  string `json:"code" gorm:"omitempty; not null; default:''; type:varchar(8); uniqueindex:idx_b_owner_code;"`

	Amount decimal.Decimal `json:"amount" gorm:"omitempty; not null; default:0; type:decimal(36,18);"`
	Payer  string          `json:"payer" gorm:"omitempty; not null; default:''; type:varchar(64);"`

	Model
}
