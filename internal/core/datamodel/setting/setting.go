package setting

import "time"

// KeyAccessCode holds the shared secret required for admin self-registration.
const KeyAccessCode = "admin_access_code"

type Setting struct {
	Key       string    `gorm:"primaryKey;column:key;type:varchar(64)"`
	Value     string    `gorm:"column:value;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (Setting) TableName() string {
	return "settings"
}
