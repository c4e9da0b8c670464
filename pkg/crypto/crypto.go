package crypto

import (
	"crypto/rand"
	"encoding/base64"

	"golang.org/x/crypto/bcrypt"
)

// recipientTokenBytes is the entropy carried by signing tokens. The token is
// the sole credential an unauthenticated recipient holds, so it must not be
// guessable or derivable from envelope identifiers.
const recipientTokenBytes = 32

// HashPassword returns a bcrypt hash of the supplied secret.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares the hashed secret with the plaintext candidate.
func VerifyPassword(hashedPassword, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)) == nil
}

// GenerateToken returns a random URL-safe token of the requested byte length.
func GenerateToken(length int) (string, error) {
	buffer := make([]byte, length)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}

// GenerateSigningToken returns a fresh recipient or direct-link token.
func GenerateSigningToken() (string, error) {
	return GenerateToken(recipientTokenBytes)
}
