// Package cryptox hashes and verifies vault PINs. PINs are never stored in
// clear: the backend profile keeps an argon2id digest and its salt.
package cryptox

import (
	"crypto/subtle"

	"github.com/dmitrijs2005/socialsync/internal/common"
	"golang.org/x/crypto/argon2"
)

const (
	SaltSize = 16
	keySize  = 32
)

// NewSalt returns a fresh random salt for HashPIN.
func NewSalt() []byte {
	return common.GenerateRandByteArray(SaltSize)
}

// HashPIN derives the argon2id digest of pin with salt.
func HashPIN(pin string, salt []byte) []byte {
	return argon2.IDKey([]byte(pin), salt, 1, 64*1024, 4, keySize)
}

// VerifyPIN reports whether candidate hashes to digest under salt. The
// comparison is constant-time.
func VerifyPIN(candidate string, salt, digest []byte) bool {
	if len(salt) == 0 || len(digest) == 0 {
		return false
	}
	got := HashPIN(candidate, salt)
	defer common.WipeByteArray(got)
	return subtle.ConstantTimeCompare(got, digest) == 1
}
