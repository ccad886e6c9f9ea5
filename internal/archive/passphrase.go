package archive

import (
	"fmt"
	"strings"
	"unicode"

	"filippo.io/age"
	"github.com/tis24dev/savesync/pkg/bech32"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/scrypt"
)

const (
	passphraseRecipientSalt = "savesync/age-passphrase/v1"
	passphraseScryptN       = 1 << 15
	passphraseScryptR       = 8
	passphraseScryptP       = 1
	minPassphraseLength     = 12
)

var weakPassphraseList = []string{
	"password",
	"123456",
	"123456789",
	"qwerty",
	"abc123",
	"letmein",
	"admin",
	"welcome",
	"iloveyou",
	"monkey",
}

// DeriveRecipient maps a passphrase to a stable X25519 recipient, so archives
// can be decrypted later with only the passphrase.
func DeriveRecipient(passphrase string) (string, error) {
	key, err := deriveScalar(passphrase)
	if err != nil {
		return "", err
	}
	public, err := curve25519.X25519(key, curve25519.Basepoint)
	if err != nil {
		return "", fmt.Errorf("derive public key: %w", err)
	}
	recipient, err := bech32.Encode("age", public)
	if err != nil {
		return "", fmt.Errorf("encode recipient: %w", err)
	}
	return recipient, nil
}

// DeriveIdentity returns the identity matching DeriveRecipient.
func DeriveIdentity(passphrase string) (age.Identity, error) {
	key, err := deriveScalar(passphrase)
	if err != nil {
		return nil, err
	}
	secret, err := bech32.Encode("AGE-SECRET-KEY-", key)
	if err != nil {
		return nil, fmt.Errorf("encode identity: %w", err)
	}
	return age.ParseX25519Identity(strings.ToUpper(secret))
}

func deriveScalar(passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase is empty")
	}
	key, err := scrypt.Key([]byte(passphrase), []byte(passphraseRecipientSalt),
		passphraseScryptN, passphraseScryptR, passphraseScryptP, curve25519.ScalarSize)
	if err != nil {
		return nil, fmt.Errorf("derive key from passphrase: %w", err)
	}
	clampScalar(key)
	return key, nil
}

func clampScalar(k []byte) {
	if len(k) != curve25519.ScalarSize {
		return
	}
	k[0] &= 248
	k[31] &= 127
	k[31] |= 64
}

// ValidatePassphraseStrength rejects short, single-class or common passphrases.
func ValidatePassphraseStrength(pass []byte) error {
	passStr := string(pass)
	if len(passStr) < minPassphraseLength {
		return fmt.Errorf("passphrase too short; use at least %d characters", minPassphraseLength)
	}

	var hasLower, hasUpper, hasDigit, hasSymbol bool
	for _, r := range passStr {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSymbol = true
		}
	}

	classes := 0
	for _, flag := range []bool{hasLower, hasUpper, hasDigit, hasSymbol} {
		if flag {
			classes++
		}
	}
	if classes < 3 {
		return fmt.Errorf("passphrase must include characters from at least three categories (uppercase, lowercase, digits, symbols)")
	}

	lower := strings.ToLower(passStr)
	for _, weak := range weakPassphraseList {
		if lower == weak {
			return fmt.Errorf("passphrase is too common; choose a more unique phrase")
		}
	}
	return nil
}
