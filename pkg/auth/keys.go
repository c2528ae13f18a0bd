package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// MinSecretLength is the shortest accepted HMAC signing secret
const MinSecretLength = 32

// Key is an HMAC signing key
type Key struct {
	ID     string
	Secret []byte
}

// KeySource supplies the key used for signing and the keys accepted when
// verifying. Rotation is done by returning the new key from SigningKey while
// keeping the previous one in VerificationKeys until old credentials expire.
type KeySource interface {
	SigningKey() (Key, error)
	VerificationKeys() []Key
}

// StaticKeySource is a KeySource backed by a fixed set of keys
type StaticKeySource struct {
	signing Key
	verify  []Key
}

// NewStaticKeySource creates a key source for a single process-wide secret
func NewStaticKeySource(secret string, previous ...string) (*StaticKeySource, error) {
	if len(secret) < MinSecretLength {
		return nil, NewError(KindInvalidArgument, fmt.Sprintf("signing secret must be at least %d bytes", MinSecretLength))
	}
	current := newKey(secret)
	src := &StaticKeySource{signing: current, verify: []Key{current}}
	for _, old := range previous {
		if old == "" || old == secret {
			continue
		}
		src.verify = append(src.verify, newKey(old))
	}
	return src, nil
}

func newKey(secret string) Key {
	sum := sha256.Sum256([]byte(secret))
	return Key{ID: hex.EncodeToString(sum[:4]), Secret: []byte(secret)}
}

// SigningKey returns the current signing key
func (s *StaticKeySource) SigningKey() (Key, error) {
	return s.signing, nil
}

// VerificationKeys returns the current key followed by any previous keys
func (s *StaticKeySource) VerificationKeys() []Key {
	return s.verify
}
