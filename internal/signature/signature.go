// Package signature derives canonical, hashable cache keys from normalized
// queries.
package signature

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/halvard/bragi/internal/models"
)

// For returns the hex-encoded SHA-256 digest of a canonical encoding of the
// tokenized query and its options. Queries with identical semantics produce
// identical signatures regardless of tag order or original casing.
//
// Limit and Offset are deliberately excluded: the cache holds the full ranked
// list and pagination slices it afterwards, so every page of the same query
// shares one entry.
func For(tokens []string, q models.Query) string {
	var b strings.Builder
	b.WriteString("v1|")
	b.WriteString(strings.Join(tokens, " "))

	tags := make([]string, len(q.Tags))
	for i, t := range q.Tags {
		tags[i] = strings.ToLower(strings.TrimSpace(t))
	}
	sort.Strings(tags)
	fmt.Fprintf(&b, "|tags=%s|mode=%s", strings.Join(tags, ","), q.TagMode)

	if q.From != nil {
		fmt.Fprintf(&b, "|from=%d", q.From.UnixNano())
	}
	if q.To != nil {
		fmt.Fprintf(&b, "|to=%d", q.To.UnixNano())
	}
	fmt.Fprintf(&b, "|arch=%t|trash=%t|sort=%s", q.IncludeArchived, q.IncludeTrashed, q.Sort)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
