package ingest

import (
	"strings"

	"github.com/google/uuid"
)

// makeSlug builds a human-readable, collision-resistant slug from the venue
// name and locality plus a short random suffix. The external id is not
// user-facing, so the slug is what URLs and curation tools key on.
func makeSlug(name, city string) string {
	base := slugify(name)
	if c := slugify(city); c != "" {
		base = base + "-" + c
	}
	if base == "" {
		base = "venue"
	}
	return base + "-" + uuid.NewString()[:6]
}

func slugify(s string) string {
	var b strings.Builder
	lastDash := true // suppress leading dash
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
