package account

import "time"

// Account is a merchant-side customer that notifications can be attached to
// by payer email.
type Account struct {
	ID        int64     `gorm:"primaryKey"`
	Email     string    `gorm:"column:email;size:100;uniqueIndex;not null"`
	Name      string    `gorm:"column:name;size:100;not null"`
	IsActive  bool      `gorm:"column:is_active;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Account) TableName() string {
	return "accounts"
}
