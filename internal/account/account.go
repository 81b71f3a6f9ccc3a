package account

import (
	"strings"
	"time"

	accountDatamodel "github.com/frahmantamala/payfast-itn/internal/core/datamodel/account"
)

type Account struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a *Account) IsActiveAccount() bool {
	return a.IsActive
}

// NormalizeEmail is the form emails are matched in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func ToDataModel(a *Account) *accountDatamodel.Account {
	return &accountDatamodel.Account{
		ID:        a.ID,
		Email:     NormalizeEmail(a.Email),
		Name:      a.Name,
		IsActive:  a.IsActive,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func FromDataModel(a *accountDatamodel.Account) *Account {
	return &Account{
		ID:        a.ID,
		Email:     a.Email,
		Name:      a.Name,
		IsActive:  a.IsActive,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}
