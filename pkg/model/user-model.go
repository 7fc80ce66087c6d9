package model

// User model
// The set of known account principals, used as the account existence oracle
// for transfer and lockup targets.
type User struct {
	ID int64 `json:"id" gorm:"omitempty; primaryKey;"`

	Name     string `json:"name" gorm:"omitempty; not null; type:varchar(64); unique;"`
	Nickname string `json:"nickname" gorm:"omitempty; not null; type:varchar(64); default:'';"`

	Model
}
