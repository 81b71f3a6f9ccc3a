package account

import (
	"context"
	"fmt"

	errors "github.com/frahmantamala/payfast-itn/internal"
)

type Repository interface {
	GetByEmail(ctx context.Context, email string) (*Account, error)
	Create(ctx context.Context, a *Account) error
}

// OwnerAssigner attaches a recorded transaction to an account.
type OwnerAssigner interface {
	AssignOwner(ctx context.Context, transactionID, ownerID int64) (bool, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
	}
}

// ResolveOwner finds the active account for a payer email. Matching ignores
// case and surrounding whitespace.
func (s *Service) ResolveOwner(ctx context.Context, email string) (*Account, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, errors.ErrAccountNotFound
	}

	a, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if _, ok := errors.IsAppError(err); ok {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get account by email: %w", err)
	}
	if !a.IsActiveAccount() {
		return nil, errors.ErrAccountNotFound
	}

	return a, nil
}

func (s *Service) Register(ctx context.Context, email, name string) (*Account, error) {
	a := &Account{Email: NormalizeEmail(email), Name: name, IsActive: true}
	if a.Email == "" {
		return nil, errors.NewValidationFieldError("email", "email is required", errors.ErrCodeValidationFailed)
	}
	if err := s.repo.Create(ctx, a); err != nil {
		if _, ok := errors.IsAppError(err); ok {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return a, nil
}
