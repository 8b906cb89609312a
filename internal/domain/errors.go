package domain

import "errors"

var (
	// ErrUserNotFound signals a lookup miss in the user store.
	ErrUserNotFound = errors.New("domain: user not found")
	// ErrUserExists signals a duplicate registration for an email.
	ErrUserExists = errors.New("domain: user already exists")
	// ErrOTPNotFound signals no pending verification code for an email.
	ErrOTPNotFound = errors.New("domain: otp entry not found")
)
