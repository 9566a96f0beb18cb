// Package fingerprint derives the stable business key used to deduplicate
// source log rows.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// Compute returns the business fingerprint for a source row: a SHA-256 hex
// digest over the normalized (page id, sent timestamp, query text) triple.
// The same logical input always produces the same fingerprint across processes
// and restarts.
//
// Each field is length-prefixed before hashing so variable-length fields can
// never collide across boundaries (e.g. ("ab","c") vs ("a","bc")).
func Compute(pageID string, sentAt time.Time, query string) string {
	ts := sentAt.UTC().Format(time.RFC3339)
	q := NormalizeQuery(query)

	var b strings.Builder
	for _, field := range []string{pageID, ts, q} {
		fmt.Fprintf(&b, "%d:%s|", len(field), field)
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// NormalizeQuery canonicalizes query text: NFC form, full-width characters
// folded to half-width, surrounding whitespace trimmed.
func NormalizeQuery(query string) string {
	q := norm.NFC.String(query)
	q = width.Narrow.String(q)
	return strings.TrimSpace(q)
}

// Valid reports whether a query survives normalization with any content left.
// Rows that fail this check are discarded by the synchronizer.
func Valid(query string) bool {
	return NormalizeQuery(query) != ""
}
