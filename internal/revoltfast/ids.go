package revoltfast

import "regexp"

// Revolt ids are 26-character Crockford base32 ULIDs, case-sensitive.
const ulidPattern = "[0-7][0-9A-HJKMNP-TV-Z]{25}"

var (
	ulidRe        = regexp.MustCompile("^(" + ulidPattern + ")$")
	ulidMentionRe = regexp.MustCompile("^<@(" + ulidPattern + ")>$")
)

// IsULID reports whether s is a bare canonical id.
func IsULID(s string) bool { return ulidRe.MatchString(s) }

// ResolveUserRef extracts the canonical id from either a bare ULID or an
// <@ULID> mention wrapper. Free-text usernames are not resolvable.
func ResolveUserRef(s string) (string, bool) {
	if m := ulidRe.FindStringSubmatch(s); m != nil {
		return m[1], true
	}
	if m := ulidMentionRe.FindStringSubmatch(s); m != nil {
		return m[1], true
	}
	return "", false
}
