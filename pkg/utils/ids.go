package utils

import (
	"strings"

	"github.com/google/uuid"
)

// GenID returns a new message id.
func GenID() string {
	return "msg-" + uuid.NewString()
}

// GenConversationID returns a new conversation id.
func GenConversationID() string {
	return "conv-" + uuid.NewString()
}

// MakeSlug builds a human-friendly slug from a title and id. The id suffix
// keeps slugs unique when titles collide.
func MakeSlug(title, id string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	var b strings.Builder
	lastDash := true
	for _, r := range s {
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
	slug := strings.Trim(b.String(), "-")
	if len(slug) > 48 {
		slug = slug[:48]
	}
	suffix := id
	if i := strings.LastIndex(id, "-"); i >= 0 && i+1 < len(id) {
		suffix = id[i+1:]
	}
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	if slug == "" {
		return suffix
	}
	return slug + "-" + suffix
}
