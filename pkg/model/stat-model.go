package model

import (
	"github.com/shopspring/decimal"
)

// Stat model, one row per registered token symbol
type Stat struct {
	ID int64 `json:"id" gorm:"omitempty; primaryKey;"`

	Code      string `json:"code" gorm:"omitempty; not null; default:''; type:varchar(8); unique;"`
	Precision uint32 `json:"precision" gorm:"omitempty; not null; default:0;"`

	Supply    decimal.Decimal `json:"supply" gorm:"omitempty; not null; default:0; type:decimal(36,18);"`
	MaxSupply decimal.Decimal `json:"maxSupply" gorm:"omitempty; not null; default:0; type:decimal(36,18);"`

	// Issuer is the principal allowed to issue, retire, decrease max supply
	// and manage lockups for any account of this symbol
	Issuer string `json:"issuer" gorm:"omitempty; not null; default:''; type:varchar(64); index;"`

	Model
}
