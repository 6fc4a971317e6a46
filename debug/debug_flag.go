//go:build !debug

package debug

// Debug controls the verbosity of stack traces and enables expensive internal
// sanity checks. Build with -tags=debug to turn it on.
const Debug = false
