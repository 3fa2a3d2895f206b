// Package keys derives versioned, collision-resistant cache keys for
// query plans.
//
// A key is built from pre-hashed operation content plus the planning
// context (schema hash, router version, planning options, authorization
// scopes). Keys are plain strings with colon-delimited segments, matching
// the key convention of the distributed store they are written to.
package keys
