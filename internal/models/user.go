package models

import "time"

// User is an operator account. Accounts are managed by the external
// auth service; monitoring only reads the contact columns.
type User struct {
	ID          int       `json:"id" gorm:"primaryKey;autoIncrement"`
	Username    string    `json:"username" gorm:"uniqueIndex;not null"`
	Email       *string   `json:"email"`
	PhoneNumber *string   `json:"phone_number" gorm:"column:phone_number"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName specifies the table name for User
func (User) TableName() string {
	return "users"
}
