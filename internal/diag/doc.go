// Package diag carries the backend's non-fatal diagnostics.
//
// The emitter distinguishes two failure taxonomies: fatal conditions are
// ordinary Go errors returned from the top-level emit call, while
// diagnostics (wrong target triple, misaligned memory access, excessive
// locals) are reported here and never interrupt emission. Producers stay
// decoupled from formatting: a Reporter only needs an io.Writer.
package diag
