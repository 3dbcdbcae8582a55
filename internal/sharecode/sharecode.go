// Package sharecode issues the short public codes that resolve to shared
// cases.
package sharecode

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
)

const (
	alphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength  = 6
	maxAttempts = 10
)

// ErrCodeSpaceExhausted is returned when every generation attempt collided
// with an existing code. With ~2.2e9 combinations this should never happen
// in practice, but callers must not be handed a duplicate.
var ErrCodeSpaceExhausted = errors.New("share code space exhausted")

// Generate produces a 6-character code drawn uniformly from the upper-case
// alphanumeric alphabet. Codes are not unique by themselves; see
// GenerateUnique.
func Generate() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(buf), nil
}

// GenerateUnique repeatedly generates codes until exists reports a free one,
// giving up after ten collisions.
func GenerateUnique(ctx context.Context, exists func(ctx context.Context, code string) (bool, error)) (string, error) {
	for i := 0; i < maxAttempts; i++ {
		code, err := Generate()
		if err != nil {
			return "", err
		}
		taken, err := exists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check code: %w", err)
		}
		if !taken {
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}
