package auth

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/wolfman30/clinicdesk/internal/apperr"
)

const (
	minPasswordLength = 8
	// bcrypt refuses longer input.
	maxPasswordBytes = 72
)

// CheckPassword reports whether raw is an acceptable new password.
func CheckPassword(raw string) error {
	if len(raw) < minPasswordLength {
		return apperr.Invalidf("password must be at least %d characters", minPasswordLength)
	}
	if len(raw) > maxPasswordBytes {
		return apperr.Invalidf("password must be at most %d bytes", maxPasswordBytes)
	}
	return nil
}

func hashPassword(raw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func verifyPassword(hash string, raw string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw))
}
