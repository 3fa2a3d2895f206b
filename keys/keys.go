package keys

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Key is a fully-built plan cache key. Keys are immutable and opaque to
// every component except the Builder that produced them.
//
// Format: {router_version}:{schema_hash}:{kind}:{query_hash}:{fingerprint}
type Key string

func (k Key) String() string { return string(k) }

// Kind distinguishes classes of cached computations sharing one store.
type Kind string

const (
	// KindPlan is a federated query plan.
	KindPlan Kind = "plan"
	// KindIntrospection is an introspection response.
	KindIntrospection Kind = "introspection"
)

// Builder derives cache keys for one (router version, schema) pair.
//
// Contract:
// - Determinism: identical inputs always yield identical keys.
// - Sensitivity: a difference in any input yields a different key.
// - Totality: Build cannot fail; malformed inputs are the caller's problem.
//
// RouterVersion changes per release and SchemaHash changes on every
// schema swap, so stale plans become unreachable by construction rather
// than by active invalidation.
type Builder struct {
	// RouterVersion is the release version of the running router.
	RouterVersion string

	// SchemaHash is the hash of the active federated schema, computed by
	// the schema pipeline (large inputs are pre-hashed upstream).
	SchemaHash string
}

// Params carries the per-operation inputs to Build.
type Params struct {
	// QueryHash is the pre-hashed operation document (hex). The raw query
	// text must never be passed here.
	QueryHash string

	// OperationName selects an operation within the document. May be empty.
	OperationName string

	// Kind of computation being cached. Defaults to KindPlan.
	Kind Kind

	// Options are the planning options that affect the produced plan
	// (fragment generation, type-conditioned fetching, ...).
	Options map[string]any

	// Scopes are the authorization scopes that affect the produced plan.
	// Order does not matter; Build sorts them.
	Scopes []string
}

// Build constructs the cache key for p. Pure and total.
func (b Builder) Build(p Params) Key {
	kind := p.Kind
	if kind == "" {
		kind = KindPlan
	}

	return Key(strings.Join([]string{
		sanitize(b.RouterVersion),
		sanitize(b.SchemaHash),
		sanitize(string(kind)),
		sanitize(p.QueryHash),
		fingerprint(p),
	}, ":"))
}

// fingerprint folds operation name, planning options and sorted scopes
// into one hex segment. SHA-256 over a canonical JSON document so map
// iteration order cannot leak into the key.
func fingerprint(p Params) string {
	scopes := append([]string(nil), p.Scopes...)
	sort.Strings(scopes)

	doc := map[string]any{
		"op":      p.OperationName,
		"options": p.Options,
		"scopes":  scopes,
	}

	canonical, err := canonicalJSON(doc)
	if err != nil {
		// Unmarshalable option values are still fingerprinted
		// deterministically via their Go representation.
		canonical = fmt.Appendf(nil, "%#v", doc)
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:8])
}

// sanitize keeps a segment free of the delimiter and of anything that is
// not plainly printable. Segments that are already hex or version-like
// pass through unchanged; anything else is replaced by its hash.
func sanitize(segment string) string {
	if segment == "" {
		return "-"
	}
	for _, r := range segment {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r == '.' || r == '-' || r == '_':
		default:
			sum := sha256.Sum256([]byte(segment))
			return hex.EncodeToString(sum[:8])
		}
	}
	return segment
}

// canonicalJSON produces a deterministic JSON encoding: object keys are
// emitted in sorted order at every nesting level.
func canonicalJSON(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return []byte("null"), nil
	case map[string]any:
		names := make([]string, 0, len(val))
		for name := range val {
			names = append(names, name)
		}
		sort.Strings(names)

		out := []byte{'{'}
		for i, name := range names {
			if i > 0 {
				out = append(out, ',')
			}
			encName, err := json.Marshal(name)
			if err != nil {
				return nil, err
			}
			out = append(out, encName...)
			out = append(out, ':')
			encVal, err := canonicalJSON(val[name])
			if err != nil {
				return nil, err
			}
			out = append(out, encVal...)
		}
		return append(out, '}'), nil
	case []any:
		out := []byte{'['}
		for i, item := range val {
			if i > 0 {
				out = append(out, ',')
			}
			enc, err := canonicalJSON(item)
			if err != nil {
				return nil, err
			}
			out = append(out, enc...)
		}
		return append(out, ']'), nil
	default:
		return json.Marshal(v)
	}
}
