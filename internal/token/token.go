// Package token issues and verifies short claim codes that let a follow-up
// message complete a draft post. Only the SHA-256 of a code is ever stored.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"
)

// Alphabet omits 0/O and 1/I so codes survive being retyped. Its size divides
// 256, which keeps byte-to-symbol mapping unbiased.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	DefaultTTL    = 30 * time.Minute
	DefaultLength = 6
)

var (
	ErrTokenExpired  = errors.New("claim code expired")
	ErrTokenMismatch = errors.New("claim code invalid")
)

var alnumRun = regexp.MustCompile(`[A-Za-z0-9]+`)

type Issued struct {
	Code      string
	Hash      string
	ExpiresAt time.Time
}

type Manager struct {
	ttl    time.Duration
	length int
	now    func() time.Time
	rand   io.Reader
}

func NewManager(ttl time.Duration, length int) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if length <= 0 {
		length = DefaultLength
	}
	return &Manager{ttl: ttl, length: length, now: time.Now, rand: rand.Reader}
}

// WithClock replaces the time source.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	c := *m
	c.now = now
	return &c
}

func (m *Manager) TTL() time.Duration { return m.ttl }

// Issue generates a fresh code. Persisting Hash and ExpiresAt on the draft is
// the caller's job; the plaintext code must only be sent to the user.
func (m *Manager) Issue() (Issued, error) {
	buf := make([]byte, m.length)
	if _, err := io.ReadFull(m.rand, buf); err != nil {
		return Issued{}, fmt.Errorf("read random source: %w", err)
	}
	code := make([]byte, m.length)
	for i, b := range buf {
		code[i] = Alphabet[int(b)%len(Alphabet)]
	}
	return Issued{
		Code:      string(code),
		Hash:      Hash(string(code)),
		ExpiresAt: m.now().Add(m.ttl),
	}, nil
}

// Hash returns the hex SHA-256 of the case-folded code.
func Hash(code string) string {
	sum := sha256.Sum256([]byte(strings.ToUpper(strings.TrimSpace(code))))
	return hex.EncodeToString(sum[:])
}

// Verify reports whether presented matches storedHash and now is strictly
// before expiresAt. The hash comparison runs in constant time. Malformed input
// yields false.
func Verify(presented, storedHash string, expiresAt, now time.Time) bool {
	return Check(presented, storedHash, expiresAt, now) == nil
}

// Check is Verify with the failure reason.
func Check(presented, storedHash string, expiresAt, now time.Time) error {
	stored, err := hex.DecodeString(storedHash)
	if err != nil || len(stored) != sha256.Size || strings.TrimSpace(presented) == "" {
		return ErrTokenMismatch
	}
	// Both sides are sha256.Size bytes, so the comparison time does not depend
	// on how close the presented code is.
	got, _ := hex.DecodeString(Hash(presented))
	match := subtle.ConstantTimeCompare(got, stored) == 1
	if !match {
		return ErrTokenMismatch
	}
	if expiresAt.IsZero() || !now.Before(expiresAt) {
		return ErrTokenExpired
	}
	return nil
}

// Candidates returns the alphanumeric runs in text that have the shape of a
// claim code, upper-cased, in order of appearance.
func (m *Manager) Candidates(text string) []string {
	var out []string
	for _, run := range alnumRun.FindAllString(text, -1) {
		if m.isCandidate(run) {
			out = append(out, strings.ToUpper(run))
		}
	}
	return out
}

// Strip removes every occurrence of code from text, ignoring case, so a
// presented code does not leak into field values. Other words are kept.
func Strip(text, code string) string {
	if code == "" {
		return text
	}
	return alnumRun.ReplaceAllStringFunc(text, func(run string) string {
		if strings.EqualFold(run, code) {
			return " "
		}
		return run
	})
}

func (m *Manager) isCandidate(run string) bool {
	if len(run) != m.length {
		return false
	}
	for _, r := range strings.ToUpper(run) {
		if !strings.ContainsRune(Alphabet, r) {
			return false
		}
	}
	return true
}
