package apikey

import "strings"

// MaskGlyph replaces hidden secret characters.
const MaskGlyph = '•'

const (
	maskKeepPrefix = 8
	maskKeepSuffix = 4
)

// Mask hides the middle of a secret for display. The first 8 and last 4
// characters are kept and every character in between is replaced by
// MaskGlyph; a secret of 12 characters or fewer is masked entirely. The
// result has as many characters (runes) as the input.
func Mask(secret string) string {
	runes := []rune(secret)
	n := len(runes)
	if n <= maskKeepPrefix+maskKeepSuffix {
		return strings.Repeat(string(MaskGlyph), n)
	}

	var b strings.Builder
	b.Grow(len(secret) + (n-maskKeepPrefix-maskKeepSuffix)*2)
	b.WriteString(string(runes[:maskKeepPrefix]))
	b.WriteString(strings.Repeat(string(MaskGlyph), n-maskKeepPrefix-maskKeepSuffix))
	b.WriteString(string(runes[n-maskKeepSuffix:]))
	return b.String()
}
