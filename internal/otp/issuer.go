package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/otklabs/otk-auth/internal/domain"
	"github.com/otklabs/otk-auth/internal/repository"
)

var (
	// ErrInvalidCode signals a missing entry or a code mismatch.
	ErrInvalidCode = errors.New("otp: invalid code")
	// ErrCodeExpired signals submission past the entry's expiry.
	ErrCodeExpired = errors.New("otp: code expired")
)

// CodeDigits is the length of issued verification codes.
const CodeDigits = 6

// Issuer generates and checks one-time verification codes.
type Issuer struct {
	store repository.OTPRepository
	ttl   time.Duration
	now   func() time.Time
}

// NewIssuer constructs an issuer with the given code lifetime.
func NewIssuer(store repository.OTPRepository, ttl time.Duration) *Issuer {
	return &Issuer{store: store, ttl: ttl, now: time.Now}
}

// WithClock overrides the time source. Test hook.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

// Issue generates a fresh 6-digit code for the email, replacing any pending
// entry so older codes become unusable.
func (i *Issuer) Issue(ctx context.Context, ns, email string) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", err
	}

	entry := domain.OTPEntry{
		Email:     email,
		Code:      code,
		ExpiresAt: i.now().Add(i.ttl),
	}
	if err := i.store.Save(ctx, ns, entry); err != nil {
		return "", fmt.Errorf("save otp entry: %w", err)
	}
	return code, nil
}

// Verify consumes the pending code. A matching unexpired code deletes the
// entry and returns nil; an expired code also deletes the entry so a resend
// issues a fresh one.
func (i *Issuer) Verify(ctx context.Context, ns, email, code string) error {
	entry, err := i.store.Get(ctx, ns, email)
	if err != nil {
		if errors.Is(err, domain.ErrOTPNotFound) {
			return ErrInvalidCode
		}
		return fmt.Errorf("load otp entry: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(entry.Code), []byte(code)) != 1 {
		return ErrInvalidCode
	}
	if entry.Expired(i.now()) {
		if err := i.store.Delete(ctx, ns, email); err != nil {
			return fmt.Errorf("delete expired otp entry: %w", err)
		}
		return ErrCodeExpired
	}

	if err := i.store.Delete(ctx, ns, email); err != nil {
		return fmt.Errorf("delete otp entry: %w", err)
	}
	return nil
}

// Pending reports whether an entry exists for the email, regardless of
// expiry. Login is blocked while one remains.
func (i *Issuer) Pending(ctx context.Context, ns, email string) (bool, error) {
	_, err := i.store.Get(ctx, ns, email)
	if err != nil {
		if errors.Is(err, domain.ErrOTPNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load otp entry: %w", err)
	}
	return true, nil
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", CodeDigits, n.Int64()+100000), nil
}
