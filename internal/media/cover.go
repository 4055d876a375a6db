package media

import (
	"strings"
	"unicode"

	"github.com/oklog/ulid/v2"
)

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Allowed reports whether contentType is in the allow-list. Parameters such
// as "; charset" are ignored.
func Allowed(contentType string, allowed []string) bool {
	ct := baseType(contentType)
	for _, a := range allowed {
		if strings.EqualFold(ct, strings.TrimSpace(a)) {
			return true
		}
	}
	return false
}

// CoverKey builds an object key of the form covers/<ulid>-<slug><ext>. The
// slug comes from the naming hint and is omitted when the hint is blank.
func CoverKey(hint, contentType string) string {
	var b strings.Builder
	b.WriteString("covers/")
	b.WriteString(strings.ToLower(ulid.Make().String()))
	if s := slug(hint); s != "" {
		b.WriteByte('-')
		b.WriteString(s)
	}
	b.WriteString(extensions[baseType(contentType)])
	return b.String()
}

func baseType(contentType string) string {
	ct, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(ct))
}

const maxSlug = 48

// slug keeps ASCII letters and digits, lowercased, and collapses everything
// else into single dashes.
func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
			continue
		}
		dash = true
	}
	out := b.String()
	if len(out) > maxSlug {
		out = strings.TrimRight(out[:maxSlug], "-")
	}
	return out
}
