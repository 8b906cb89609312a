package repository

import (
	"context"

	"github.com/otklabs/otk-auth/internal/domain"
)

// UserRepository exposes persistence for marketplace accounts. Accounts are
// keyed by (namespace, normalized email); the same email may exist
// independently on the hiring and work sides.
type UserRepository interface {
	GetByEmail(ctx context.Context, ns, email string) (domain.User, error)
	ExistsByEmail(ctx context.Context, ns, email string) (bool, error)
	Create(ctx context.Context, user domain.User) (domain.User, error)
	Update(ctx context.Context, user domain.User) error
}

// OTPRepository stores pending verification codes, one per (namespace, email).
// Save replaces any existing entry for the same key.
type OTPRepository interface {
	Save(ctx context.Context, ns string, entry domain.OTPEntry) error
	Get(ctx context.Context, ns, email string) (domain.OTPEntry, error)
	Delete(ctx context.Context, ns, email string) error
}
