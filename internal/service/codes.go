package service

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"math/big"
)

const (
	verificationCodeDigits = 6
	resetTokenBytes        = 32
)

var codeSpace = big.NewInt(1_000_000)

// newVerificationCode returns a uniformly random zero-padded 6-digit string.
func newVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%0*d", verificationCodeDigits, n.Int64()), nil
}

func newResetToken() (string, error) {
	b := make([]byte, resetTokenBytes)

	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

func equalSecret(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
