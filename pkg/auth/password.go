package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest password accepted at registration
const MinPasswordLength = 8

// maxPasswordLength is bcrypt's input limit
const maxPasswordLength = 72

// HashPassword hashes a plaintext password with bcrypt
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", NewError(KindInvalidArgument, fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if len(password) > maxPasswordLength {
		return "", NewError(KindInvalidArgument, fmt.Sprintf("password must be at most %d bytes", maxPasswordLength))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares a plaintext password with a stored hash. A mismatch
// is reported as InvalidCredential.
func CheckPassword(hash, password string) error {
	if hash == "" || password == "" {
		return NewError(KindInvalidCredential, "invalid email or password")
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return NewError(KindInvalidCredential, "invalid email or password")
	}
	if err != nil {
		return wrapError(KindInvalidCredential, "invalid email or password", err)
	}
	return nil
}
