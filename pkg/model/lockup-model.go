package model

import (
	"github.com/shopspring/decimal"
)

// Lockup model
// The locked portion of an account's balance. An expired lock stops
// restricting transfers but stays in the table until the issuer erases it.
type Lockup struct {
	ID int64 `json:"id" gorm:"omitempty; primaryKey;"`

	Owner string `json:"owner" gorm:"omitempty; not null; default:''; type:varchar(64); uniqueindex:idx_l_owner_code;"`
	Code  string `json:"code" gorm:"omitempty; not null; default:''; type:varchar(8); uniqueindex:idx_l_owner_code;"`

	Amount     decimal.Decimal `json:"amount" gorm:"omitempty; not null; default:0; type:decimal(36,18);"`
	ExpireTime GormTime        `json:"expireTime" gorm:"omitempty; not null;"`

	Model
}
