package users

import (
	"strings"
	"time"
)

// Account is a credential-backed login. Its AccountID owns at most one profile.
type Account struct {
	AccountID    string    `gorm:"column:account_id;primaryKey;size:64;not null" json:"id"`
	Email        string    `gorm:"column:email;size:320;not null;uniqueIndex:idx_accounts_email" json:"email"`
	PasswordHash string    `gorm:"column:password_hash;size:128;not null" json:"-"`
	Name         *string   `gorm:"column:name;size:320" json:"name"`
	CreatedAt    time.Time `gorm:"column:created_at;not null;autoCreateTime:false" json:"createdAt"`
}

// TableName exposes the table backing accounts.
func (Account) TableName() string {
	return "accounts"
}

// SignUpRequest is the signup DTO.
type SignUpRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name" validate:"omitempty,max=320"`
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
