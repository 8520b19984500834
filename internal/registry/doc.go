// Package registry resolves the latest acceptable version of a crate against
// a sparse index. For each crate it walks the cheapest authoritative path:
// a fresh cache entry is parsed without touching the network, a stale entry
// is revalidated with If-None-Match, and anything else triggers a full fetch.
// The cache is an accelerator only; its failures degrade to a full fetch and
// never fail a resolution.
package registry
