package model

import (
	"github.com/shopspring/decimal"
)

// UnlockPlan model
// A pending release schedule against a lockup: Quantity is released per
// successful claim, NextTime is the earliest claimable instant, SpanHour is
// added to NextTime after each partial claim. Exists only while the matching
// lockup row exists.
type UnlockPlan struct {
	ID int64 `json:"id" gorm:"omitempty; primaryKey;"`

	Owner string `json:"owner" gorm:"omitempty; not null; default:''; type:varchar(64); uniqueindex:idx_p_owner_code;"`
	Code  string `json:"code" gorm:"omitempty; not null; default:''; type:varchar(8); uniqueindex:idx_p_owner_code;"`

	Quantity decimal.Decimal `json:"quantity" gorm:"omitempty; not null; default:0; type:decimal(36,18);"`
	NextTime GormTime        `json:"nextTime" gorm:"omitempty; not null;"`
	SpanHour uint32          `json:"spanHour" gorm:"omitempty; not null; default:0;"`

	Model
}
