// Package naming implements the filename template engine that maps a
// naming pattern plus page and image metadata to a relative save path.
//
// The engine is a pure textual substitution over a fixed placeholder
// set and performs no I/O, which keeps it independently testable. See
// Render for the placeholder grammar.
package naming
