// Package codesign verifies the code-signature of an executable image.
//
// Code-signature verification is an OS-API surface (Security.framework on
// macOS; no equivalent portable primitive exists in the Go ecosystem), so
// unlike hashing this package does not implement a concrete algorithm — it
// defines the interface boundary xnumon's codesign_new/codesign_is_good
// sat behind, plus a stub implementation so the module builds and tests on
// any platform. A real deployment supplies a platform-specific Verifier to
// procmon.New.
package codesign

import "errors"

// ErrUnsupported is returned by the stub Verifier; a platform-specific
// Verifier should never return it.
var ErrUnsupported = errors.New("codesign: signature verification not available on this platform")

// Verdict is the result of verifying one executable's code signature,
// cached content-addressed by the hash tuple (spec.md §4.7).
type Verdict struct {
	Valid  bool
	Ident  string
	TeamID string
}

// Verifier computes a Verdict for the executable at path. Implementations
// must be safe for concurrent use from multiple worker goroutines.
type Verifier interface {
	Verify(path string) (Verdict, error)
}

// Stub is the default Verifier: it always reports ErrUnsupported, the
// same way a xnumon build without codesign support would behave. Wiring a
// real Verifier is the operator's responsibility (see DESIGN.md).
type Stub struct{}

func (Stub) Verify(string) (Verdict, error) { return Verdict{}, ErrUnsupported }
