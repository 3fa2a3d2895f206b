package keys

import (
	"sort"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ScopesFromClaims extracts the authorization scopes from a verified JWT
// claim set so they can be folded into a key fingerprint.
//
// Both common encodings are handled: a space-delimited "scope" string
// (RFC 8693) and a "scp" array of strings. The result is sorted and
// deduplicated; a claim set without scopes yields nil.
//
// Token verification is the caller's responsibility - claims passed here
// must already be trusted.
func ScopesFromClaims(claims jwt.MapClaims) []string {
	var scopes []string

	if raw, ok := claims["scope"].(string); ok && raw != "" {
		scopes = append(scopes, strings.Fields(raw)...)
	}

	if raw, ok := claims["scp"].([]any); ok {
		for _, item := range raw {
			if s, ok := item.(string); ok && s != "" {
				scopes = append(scopes, s)
			}
		}
	}

	if len(scopes) == 0 {
		return nil
	}

	sort.Strings(scopes)
	out := scopes[:0]
	for i, s := range scopes {
		if i == 0 || s != scopes[i-1] {
			out = append(out, s)
		}
	}
	return out
}
