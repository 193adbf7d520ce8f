package services

import (
	cryptorand "crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2Params configures the Argon2id hash stored for customer passwords
type Argon2Params struct {
	Time       uint32
	Memory     uint32 // KiB
	Threads    uint8
	KeyLength  uint32
	SaltLength int
}

func DefaultArgon2Params() Argon2Params {
	return Argon2Params{Time: 1, Memory: 64 * 1024, Threads: 4, KeyLength: 32, SaltLength: 16}
}

// Hash returns base64(salt)$base64(key)
func (p Argon2Params) Hash(password string) (string, error) {
	if p.Time == 0 || p.Threads == 0 || p.KeyLength == 0 || p.SaltLength <= 0 {
		return "", fmt.Errorf("invalid argon2 parameters: %+v", p)
	}

	salt := make([]byte, p.SaltLength)
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, p.KeyLength)
	return fmt.Sprintf("%s$%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash)), nil
}
