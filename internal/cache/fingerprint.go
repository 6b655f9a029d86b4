// Package cache provides the fingerprinted blueprint cache. Identical
// normalized intake always maps to the same entry, so a repeated request
// inside the retention window never pays for a second provider call.
package cache

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/blueprintlab/blueprintd/internal/session"
)

// fieldSep joins the normalized intake fields before hashing. A control
// character keeps "a b"+"c" and "a"+"b c" from colliding.
const fieldSep = "\x1f"

// Fingerprint returns the cache key for an intake: the four fields in
// fixed order, trimmed and lowercased, joined and hashed with xxhash64.
// Equivalence is exact post-normalization string equality; paraphrases
// hash differently.
func Fingerprint(intake session.Intake) string {
	normalized := strings.Join([]string{
		normalize(intake.Goal),
		normalize(intake.Workflow),
		normalize(intake.Tools),
		normalize(intake.PainPoints),
	}, fieldSep)

	return fmt.Sprintf("%016x", xxhash.Sum64String(normalized))
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
