package procmon

import "math"

// KextLevel mirrors KEXTLEVEL_* from procmon.c: how much enrichment the
// synchronous kernel-callback path (KernPreexec) is allowed to perform
// before handing the remainder off to the worker pool.
type KextLevel int

const (
	KextLevelNone KextLevel = iota
	KextLevelStat
	KextLevelHash
	KextLevelCSig
)

// HashFlags selects which content hashes Acquire computes.
type HashFlags uint32

const (
	HashMD5 HashFlags = 1 << iota
	HashSHA1
	HashSHA256
	HashSHA512
)

// AncestorsUnbounded is the SIZE_MAX sentinel from spec.md §6: retain the
// full prev chain, never prune.
const AncestorsUnbounded = math.MaxUint64

// kernMaxSyncSize is the 8 MiB cutoff at which KernPreexec defers hashing
// to the worker pool rather than blocking the KAuth-equivalent caller
// (procmon.c image_exec_acquire, "postpone large binaries").
const kernMaxSyncSize = 8 * 1024 * 1024

// maxPQTTL is MAXPQTTL from procmon.c: a prepq entry is dropped after this
// many lookup scans fail to match it.
const maxPQTTL = 10

// Config holds every knob spec.md §6 enumerates as consumed by the core.
// The core never loads this from disk itself (configuration loading is an
// out-of-scope collaborator per spec.md §1); internal/config produces one
// of these from a file.
type Config struct {
	// Ancestors is the max depth of the prev chain to retain.
	// AncestorsUnbounded disables pruning entirely.
	Ancestors uint64

	// KextLevel bounds how much enrichment KernPreexec performs
	// synchronously before deferring to the worker pool.
	KextLevel KextLevel

	// HashFlags selects which hashes Acquire computes.
	HashFlags HashFlags

	// Codesign, if true, requests signature verification on a cache miss.
	Codesign bool

	Suppressions Suppressions

	// SuppressAtStart controls whether PreloadPID emits a log for each
	// already-running pid found at startup (procmon_preloadpid).
	SuppressAtStart bool

	// KernCodesignSkipPaths are paths KernPreexec must never attempt to
	// verify synchronously, because the verifier itself may re-invoke
	// them (procmon.c hard-codes xpcproxy/ocspd; see SPEC_FULL.md §11).
	KernCodesignSkipPaths []string
}

// DefaultConfig mirrors the two hard-coded re-entrancy skips from
// procmon.c, now a configurable default rather than a compiled-in pair.
func DefaultConfig() Config {
	return Config{
		Ancestors:             AncestorsUnbounded,
		KextLevel:             KextLevelCSig,
		HashFlags:             HashSHA256,
		Codesign:              true,
		KernCodesignSkipPaths: []string{"/usr/libexec/xpcproxy", "/usr/sbin/ocspd"},
	}
}

func (c *Config) skipsKernCodesign(path string) bool {
	for _, p := range c.KernCodesignSkipPaths {
		if p == path {
			return true
		}
	}
	return false
}
