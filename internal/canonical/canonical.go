// Package canonical produces a formatting-independent representation of a
// post's semantic fields, used as a deduplication key.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/unicode/norm"

	"nearexpiry/internal/models"
)

// Canonical renders the fields in a fixed order, one per line. Each value is
// NFKC-normalized (folding full-width forms) with whitespace runs collapsed to a
// single space. Absent and empty values render identically.
func Canonical(f models.ParsedFields) string {
	var quantity *string
	if f.Quantity != nil {
		q := string(*f.Quantity)
		quantity = &q
	}

	var b strings.Builder
	writeField(&b, "location", f.Location)
	writeField(&b, "item", f.Item)
	writeField(&b, "quantity", quantity)
	writeField(&b, "deadline", f.Deadline)
	writeField(&b, "note", f.Note)
	return b.String()
}

// Hash is the hex SHA-256 of Canonical(f).
func Hash(f models.ParsedFields) string {
	sum := sha256.Sum256([]byte(Canonical(f)))
	return hex.EncodeToString(sum[:])
}

func writeField(b *strings.Builder, key string, value *string) {
	b.WriteString(key)
	b.WriteByte('=')
	if value != nil {
		b.WriteString(normalizeValue(*value))
	}
	b.WriteByte('\n')
}

func normalizeValue(v string) string {
	v = norm.NFKC.String(v)
	return strings.Join(strings.Fields(v), " ")
}
