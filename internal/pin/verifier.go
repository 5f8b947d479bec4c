// Package pin validates caller PINs collected over DTMF.
package pin

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Length is the number of digits the call flow collects.
const Length = 6

// Argon2id parameters. PINs have little entropy so hashing mostly protects
// against offline dumps; the online path is guarded by AttemptLimiter.
const (
	argon2Time    = 2
	argon2Memory  = 19 * 1024
	argon2Threads = 1
	argon2KeyLen  = 32
	argon2SaltLen = 16

	hashPrefix = "$argon2id$"
)

var ErrInvalidFormat = errors.New("pin: must be exactly 6 digits")

// Verifier compares submitted PINs against stored values.
// Stored values may be plaintext digits or argon2id encoded hashes.
type Verifier struct{}

func NewVerifier() Verifier { return Verifier{} }

// ValidFormat reports whether s is exactly Length ASCII digits.
func ValidFormat(s string) bool {
	if len(s) != Length {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Match reports whether submitted matches stored. Malformed input never matches.
func (Verifier) Match(submitted, stored string) bool {
	if !ValidFormat(submitted) || stored == "" {
		return false
	}
	if strings.HasPrefix(stored, hashPrefix) {
		ok, err := checkHash(submitted, stored)
		return err == nil && ok
	}
	return subtle.ConstantTimeCompare([]byte(submitted), []byte(stored)) == 1
}

// Hash returns an argon2id encoded hash of pin:
//
//	$argon2id$v=19$m=19456,t=2,p=1$<salt>$<hash>
func Hash(pin string) (string, error) {
	if !ValidFormat(pin) {
		return "", ErrInvalidFormat
	}
	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	key := argon2.IDKey([]byte(pin), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argon2Memory, argon2Time, argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func checkHash(pin, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return false, fmt.Errorf("invalid hash format: expected 6 parts, got %d", len(parts))
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, fmt.Errorf("parsing version: %w", err)
	}
	if version != argon2.Version {
		return false, fmt.Errorf("unsupported argon2 version: %d", version)
	}

	var memory, iterations uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return false, fmt.Errorf("parsing parameters: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("decoding salt: %w", err)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, fmt.Errorf("decoding hash: %w", err)
	}

	got := argon2.IDKey([]byte(pin), salt, iterations, memory, threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(want, got) == 1, nil
}
