package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
)

// BackupCodeAlphabet excludes 0, 1, I and O.
const BackupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewBackupCodes returns count random codes of length characters each.
func NewBackupCodes(count, length int) ([]string, error) {
	if count <= 0 || length <= 0 {
		return nil, errors.New("otp: invalid backup code shape")
	}
	codes := make([]string, 0, count)
	seen := make(map[string]struct{}, count)
	for len(codes) < count {
		code, err := newBackupCode(length, cryptoRandomIndex)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}

func newBackupCode(length int, randomIndex func(int) (int, error)) (string, error) {
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := randomIndex(len(BackupCodeAlphabet))
		if err != nil {
			return "", err
		}
		b.WriteByte(BackupCodeAlphabet[n])
	}
	return b.String(), nil
}

// HashBackupCode returns the hex digest stored for code.
//
// The user id is mixed in so identical codes of different users hash apart.
// Letters are upper-cased; the length of code is left untouched.
func HashBackupCode(userID, code string) string {
	canonical := strings.ToUpper(code)
	data := make([]byte, 0, len(userID)+1+len(canonical))
	data = append(data, userID...)
	data = append(data, 0)
	data = append(data, canonical...)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashBackupCodes hashes every code in codes for userID.
func HashBackupCodes(userID string, codes []string) []string {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = HashBackupCode(userID, c)
	}
	return out
}

// RemoveHash returns hashes without target and whether target was present.
func RemoveHash(hashes []string, target string) ([]string, bool) {
	for i, h := range hashes {
		if subtle.ConstantTimeCompare([]byte(h), []byte(target)) == 1 {
			out := make([]string, 0, len(hashes)-1)
			out = append(out, hashes[:i]...)
			return append(out, hashes[i+1:]...), true
		}
	}
	return hashes, false
}

func cryptoRandomIndex(max int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}
