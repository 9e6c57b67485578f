package intercept

import "strings"

var (
	secretMarkers     = []string{"pass", "pwd"}
	identifierMarkers = []string{"email", "user", "login", "identifier", "account"}
)

// minIdentifierLength is the shortest value accepted as an identifier without an "@"
const minIdentifierLength = 3

// Match is the credential-shaped subset of a set of fields.
// Either side may be empty, but not both.
type Match struct {
	Identifier string
	Secret     string
}

// Classify picks the first identifier and the first secret out of fields.
// It reports false when neither is present.
func Classify(fields []Field) (Match, bool) {
	var m Match
	for _, f := range fields {
		if f.Value == "" {
			continue
		}
		key := strings.ToLower(f.Key)
		switch {
		case IsSecretKey(key):
			if m.Secret == "" {
				m.Secret = f.Value
			}
		case containsAny(key, identifierMarkers) && looksLikeIdentifier(f.Value):
			if m.Identifier == "" {
				m.Identifier = f.Value
			}
		}
	}
	return m, m.Identifier != "" || m.Secret != ""
}

// IsSecretKey reports whether a field name or type denotes a password
func IsSecretKey(key string) bool {
	return containsAny(strings.ToLower(key), secretMarkers)
}

func looksLikeIdentifier(v string) bool {
	v = strings.TrimSpace(v)
	return strings.Contains(v, "@") || len(v) >= minIdentifierLength
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
