package service

import "github.com/otklabs/otk-auth/internal/domain"

// UserViewModel is the public account projection returned to clients.
// Password material and the Google subject are never serialized.
type UserViewModel struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
}

// RegisterResult is returned from a successful registration; the account
// stays unusable for login until the OTP is confirmed.
type RegisterResult struct {
	Message             string        `json:"message"`
	User                UserViewModel `json:"user"`
	PendingVerification bool          `json:"pendingVerification"`
}

// SessionResult bundles the public user with a freshly minted session token.
type SessionResult struct {
	Message string        `json:"message"`
	User    UserViewModel `json:"user"`
	Token   string        `json:"token"`
}

// GoogleSignInResult extends SessionResult with the verification flag for
// the presented Google identity.
type GoogleSignInResult struct {
	Message        string        `json:"message"`
	User           UserViewModel `json:"user"`
	Token          string        `json:"token"`
	GoogleVerified bool          `json:"googleVerified"`
}

// GoogleSignInInput carries the google-auth request payload. Email, Name,
// and GoogleID are self-asserted fallbacks used only when no ID token is
// presented.
type GoogleSignInInput struct {
	Email    string
	Name     string
	GoogleID string
	IDToken  string
}

func newUserViewModel(user domain.User) UserViewModel {
	return UserViewModel{
		ID:       user.ID,
		Email:    user.Email,
		Name:     user.Name,
		Provider: string(user.Provider),
	}
}
