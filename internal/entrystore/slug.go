package entrystore

import "strings"

// slugify converts conversation_id into a filesystem-safe directory name,
// preserving alphanumerics, '-', '.', and '_'.
func slugify(value string) string {
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "entry"
	}
	return b.String()
}
