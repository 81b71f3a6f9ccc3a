package postgres

import (
	"context"
	stderrors "errors"

	"gorm.io/gorm"

	errors "github.com/frahmantamala/payfast-itn/internal"
	accountpkg "github.com/frahmantamala/payfast-itn/internal/account"
	"github.com/frahmantamala/payfast-itn/internal/core/datamodel/account"
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) accountpkg.Repository {
	return &AccountRepository{
		db: db,
	}
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*accountpkg.Account, error) {
	var a account.Account
	err := r.db.WithContext(ctx).
		Where("LOWER(email) = ?", accountpkg.NormalizeEmail(email)).
		First(&a).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return accountpkg.FromDataModel(&a), nil
}

func (r *AccountRepository) Create(ctx context.Context, a *accountpkg.Account) error {
	model := accountpkg.ToDataModel(a)
	err := r.db.WithContext(ctx).Create(model).Error
	if stderrors.Is(err, gorm.ErrDuplicatedKey) {
		return errors.ErrAccountExists
	}
	if err != nil {
		return err
	}
	*a = *accountpkg.FromDataModel(model)
	return nil
}
