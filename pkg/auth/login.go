package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// LoginFailedMessage is the only message returned for a failed password login
const LoginFailedMessage = "Incorrect email or password"

// dummyHash is compared against when the email is unknown so both failure
// paths cost one bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("workbench-dummy-password"), bcrypt.DefaultCost)

// Authenticate checks an email and password against the identity store.
// Unknown emails, wrong passwords and inactive accounts all produce the same
// InvalidCredential error.
func Authenticate(ctx context.Context, identities IdentityStore, email, password string) (*Identity, error) {
	failed := NewError(KindInvalidCredential, LoginFailedMessage)
	if email == "" || password == "" {
		return nil, failed
	}

	identity, err := identities.GetByEmail(ctx, email)
	if errors.Is(err, ErrIdentityNotFound) {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, failed
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := CheckPassword(identity.PasswordHash, password); err != nil {
		return nil, failed
	}
	if !identity.IsActive {
		return nil, failed
	}
	return identity, nil
}
