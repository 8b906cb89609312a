package password

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	hashIterations = 10000
	hashKeyLen     = 64
	hashSaltLen    = 16
)

// Hash derives a PBKDF2-SHA512 hash with a fresh random salt. Both values
// are hex encoded for storage.
func Hash(password string) (salt, hash string, err error) {
	raw := make([]byte, hashSaltLen)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("generate salt: %w", err)
	}

	salt = hex.EncodeToString(raw)
	sum := pbkdf2.Key([]byte(password), []byte(salt), hashIterations, hashKeyLen, sha512.New)
	return salt, hex.EncodeToString(sum), nil
}

// Verify recomputes the derivation with the stored salt and compares in
// constant time. Missing or malformed credential material yields false,
// never an error.
func Verify(password, salt, hash string) bool {
	if salt == "" || hash == "" {
		return false
	}
	expected, err := hex.DecodeString(hash)
	if err != nil {
		return false
	}

	actual := pbkdf2.Key([]byte(password), []byte(salt), hashIterations, len(expected), sha512.New)
	return subtle.ConstantTimeCompare(actual, expected) == 1
}
