// Package crypto implements credential hashing/verification and sealing of session snapshots.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Params are the argon2id cost parameters. They are written into every
// encoded credential, so raising them does not break existing users.
type Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
	SaltLen int
}

// DefaultParams is used by the zero Argon2Verifier.
var DefaultParams = Params{Time: 3, Memory: 64 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

// Stored credentials look like "$argon2id$v=19$m=65536,t=3,p=1$<salt>$<key>" (raw std base64).
const scheme = "$argon2id$"

var b64 = base64.RawStdEncoding

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Verifier is the credential-verification capability used by the auth actions.
type Verifier interface {
	// Hash produces the value stored in the user record's password column.
	Hash(password string) (string, error)
	// Verify checks a password against a stored value.
	Verify(password, stored string) bool
}

// Argon2Verifier stores credentials as salted argon2id hashes.
// With Legacy set, stored values that are not encoded credentials are
// compared as plaintext in constant time, which admits older seed snapshots.
type Argon2Verifier struct {
	Params *Params
	Legacy bool
}

var _ Verifier = Argon2Verifier{}

func (v Argon2Verifier) params() Params {
	if v.Params != nil {
		return *v.Params
	}
	return DefaultParams
}

// Hash returns an encoded credential with a fresh salt.
func (v Argon2Verifier) Hash(password string) (string, error) {
	p := v.params()
	salt, err := RandBytes(p.SaltLen)
	if err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, p.KeyLen)
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s", scheme, argon2.Version,
		p.Memory, p.Time, p.Threads, b64.EncodeToString(salt), b64.EncodeToString(key)), nil
}

// Verify checks password against an encoded credential (or plaintext in legacy mode).
func (v Argon2Verifier) Verify(password, stored string) bool {
	if !IsHashed(stored) {
		if !v.Legacy || stored == "" {
			return false
		}
		return subtle.ConstantTimeCompare([]byte(password), []byte(stored)) == 1
	}
	p, salt, key, err := parse(stored)
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, uint32(len(key)))
	return subtle.ConstantTimeCompare(got, key) == 1
}

// IsHashed reports whether stored is an encoded argon2id credential.
func IsHashed(stored string) bool { return strings.HasPrefix(stored, scheme) }

var errMalformed = errors.New("malformed credential")

// Limits on the costs read back from a stored credential. Argon2 panics on a
// zero time or thread count, and the stored value is record data.
const (
	maxTime    = 16
	maxMemory  = 1 << 20 // KiB
	maxKeyLen  = 128
	maxSaltLen = 128
)

func parse(stored string) (p Params, salt, key []byte, err error) {
	// "", "argon2id", "v=..", "m=..,t=..,p=..", salt, key
	parts := strings.Split(stored, "$")
	if len(parts) != 6 {
		return p, nil, nil, errMalformed
	}
	var version int
	if _, err = fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return p, nil, nil, errMalformed
	}
	if _, err = fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &p.Threads); err != nil {
		return p, nil, nil, errMalformed
	}
	if p.Time < 1 || p.Time > maxTime || p.Threads < 1 ||
		p.Memory < 8*uint32(p.Threads) || p.Memory > maxMemory {
		return p, nil, nil, errMalformed
	}
	if salt, err = b64.DecodeString(parts[4]); err != nil || len(salt) > maxSaltLen {
		return p, nil, nil, errMalformed
	}
	if key, err = b64.DecodeString(parts[5]); err != nil || len(key) == 0 || len(key) > maxKeyLen {
		return p, nil, nil, errMalformed
	}
	return p, salt, key, nil
}
