package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// PasswordHasher hashes and verifies account credentials.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// BcryptHasher implements PasswordHasher with bcrypt.
type BcryptHasher struct {
	Cost int
}

// Hash returns the bcrypt hash of password.
func (h BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// Compare returns nil when password matches hash.
func (h BcryptHasher) Compare(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// emailPart lowercases s, folds accents and drops everything that is not
// an ASCII letter or digit.
func emailPart(s string) string {
	folded, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		strings.ToLower(s),
	)
	if err != nil {
		folded = strings.ToLower(s)
	}
	var b strings.Builder
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// StudentEmail derives the institutional login for a student, e.g.
// "Hélène", "St-Pierre" -> helene.stpierre@<domain>.
func StudentEmail(firstName, lastName, domain string) string {
	parts := make([]string, 0, 2)
	for _, p := range []string{emailPart(firstName), emailPart(lastName)} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	local := strings.Join(parts, ".")
	if local == "" {
		local = "eleve"
	}
	return local + "@" + domain
}

const studentCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewStudentCode returns a code of the form SR<year>-XXXXXX.
func NewStudentCode(now time.Time) string {
	suffix := make([]byte, 6)
	max := big.NewInt(int64(len(studentCodeAlphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand does not fail on supported platforms.
			n = big.NewInt(now.UnixNano() % int64(len(studentCodeAlphabet)))
		}
		suffix[i] = studentCodeAlphabet[n.Int64()]
	}
	return fmt.Sprintf("SR%d-%s", now.Year(), suffix)
}
