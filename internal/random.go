package internal

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

// NewNumericCode returns a uniformly random code of digits decimal digits.
// Leading zeros are kept.
func NewNumericCode(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errors.New("invalid code digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	code := b.String()
	if len(code) != digits {
		return "", fmt.Errorf("invalid code generation length")
	}
	return code, nil
}

// NewUserID returns a random UUIDv4 string.
func NewUserID() string {
	return uuid.NewString()
}

// NewRecordID returns a time-sortable identifier for token, code and challenge rows.
func NewRecordID() string {
	return ksuid.New().String()
}
