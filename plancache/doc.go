// Package plancache is the entry point of the query-plan cache: it
// composes the memory tier, the optional distributed tier, single-flight
// deduplication, and the compute pool behind one Resolve call.
//
// Resolution order: memory -> redis -> single-flight compute. Exactly one
// computation runs per key no matter how many callers ask concurrently;
// the result is written back to redis then memory so the whole fleet
// converges on the fast path.
package plancache
