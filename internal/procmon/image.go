package procmon

import (
	"bufio"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xnumon-go/procmon/internal/codesign"
)

// counters is the shared, atomically-updated bookkeeping every Image
// allocated by one Monitor contributes to: the live-image count and the
// OOM count from spec.md §6's stats() (procmon.c's file-scope `images`
// and `ooms` statics). Injecting a pointer to this small struct, rather
// than a pointer to the whole Monitor, keeps Image's lifecycle methods
// free to be called from any goroutine without coupling them to every
// other piece of Monitor state (matches spec.md §9's "avoid module-level
// statics" note while preserving the original's counter semantics).
type counters struct {
	images atomic.Int32
	ooms   atomic.Int64
}

// Image is one executable image observed at one execution point —
// image_exec_t in procmon.c. Exported so that internal/sink and callers
// that only need read access (e.g. ImageByPID) can inspect a finished
// record; all mutation happens through Monitor/worker methods while refs
// > 0 and EIFLAG_DONE is unset.
type Image struct {
	cnt *counters

	mu   sync.Mutex // guards refs and the fields below it
	refs int

	Path   string
	NoPath bool // Path is a synthetic "<pid>" placeholder

	PID     int
	Subject Subject

	ForkTime time.Time
	ExecTime time.Time

	Argv []string
	Envv []string
	Cwd  string

	stat       FileStat
	attrSource AttrSource

	flags  FlagSet
	hashes HashTuple
	sig    *codesign.Verdict

	Script *Image // interpreter's pointer to the script it is running
	Prev   *Image // previous image in this pid's exec lineage

	fd *os.File // transient, only valid between Open and Close

	pqttl int // unused; the prepq keeps its TTL counter in pqEntry.ttl
}

// newImage allocates a zero-initialized Image owning path, with refcount
// 1. Mirrors image_exec_new, minus its allocation-failure branch: Go has
// no allocation-failure path to detect here, so nothing in this package
// increments counters.ooms.
func newImage(cnt *counters, path string) *Image {
	img := &Image{cnt: cnt, refs: 1, Path: path}
	cnt.images.Add(1)
	return img
}

// Ref increments the refcount. Thread-safe.
func (img *Image) Ref() {
	img.mu.Lock()
	img.refs++
	img.mu.Unlock()
}

// Free decrements the refcount; at zero it recursively frees Script and
// Prev, closes any open fd, and decrements the live-image counter. Safe
// to call after a Monitor has been torn down (Close), since
// it only touches the counters pointer captured at allocation time —
// mirrors procmon.c's comment that image_exec_free "must not use config
// because config will be set to NULL before the last instances of
// image_exec are drained out of the log queue."
func (img *Image) Free() {
	img.mu.Lock()
	img.refs--
	remaining := img.refs
	img.mu.Unlock()
	if remaining > 0 {
		return
	}
	if img.Script != nil {
		img.Script.Free()
		img.Script = nil
	}
	if img.Prev != nil {
		img.Prev.Free()
		img.Prev = nil
	}
	img.Close()
	img.cnt.images.Add(-1)
}

// Refs reports the current refcount; used by PruneAncestors and tests
// asserting the shared-ancestor-preservation property (spec.md §8).
func (img *Image) Refs() int {
	img.mu.Lock()
	defer img.mu.Unlock()
	return img.refs
}

// Flags reports the current flag set.
func (img *Image) Flags() FlagSet {
	img.mu.Lock()
	defer img.mu.Unlock()
	return img.flags
}

func (img *Image) setFlag(f FlagSet) {
	img.mu.Lock()
	img.flags.Set(f)
	img.mu.Unlock()
}

func (img *Image) clearFlag(f FlagSet) {
	img.mu.Lock()
	img.flags.Clear(f)
	img.mu.Unlock()
}

func (img *Image) hasFlag(f FlagSet) bool {
	img.mu.Lock()
	defer img.mu.Unlock()
	return img.flags.Has(f)
}

// Hashes returns the computed hash tuple, if any.
func (img *Image) Hashes() HashTuple {
	img.mu.Lock()
	defer img.mu.Unlock()
	return img.hashes
}

// Signature returns the cached code-signature verdict, if any.
func (img *Image) Signature() *codesign.Verdict {
	img.mu.Lock()
	defer img.mu.Unlock()
	return img.sig
}

// Open acquires the file-attribute snapshot for img, per image_exec_open.
// If neither a prior stat nor attr-fallback has happened, it opens the
// path read-only, stats the fd, and sniffs the first two bytes for a
// shebang. If attr is non-nil and the synchronous stat disagrees with it
// on (mode, uid, gid, dev, ino), img falls back to attr's values and
// records that it came from the event rather than the file.
func (img *Image) Open(attr *Attr) error {
	img.mu.Lock()
	already := img.attrSource != AttrSourceNone
	noPath := img.NoPath
	img.mu.Unlock()
	if already {
		return nil
	}

	if noPath {
		if attr != nil {
			img.fallbackToAttr(*attr)
		}
		return nil
	}

	if strings.HasPrefix(img.Path, "/dev/") {
		panic("procmon: image_exec_open invariant violated: path under /dev/")
	}

	f, err := os.Open(img.Path)
	if err != nil {
		if attr != nil {
			img.fallbackToAttr(*attr)
			return nil
		}
		return ErrEnrichmentFailed
	}

	st, err := statFD(f)
	if err != nil {
		f.Close()
		if attr != nil {
			img.fallbackToAttr(*attr)
			return nil
		}
		return ErrEnrichmentFailed
	}

	if attr != nil && !st.matchesAttr(*attr) {
		f.Close()
		img.fallbackToAttr(*attr)
		return nil
	}

	var hdr [2]byte
	br := bufio.NewReader(f)
	if peeked, perr := br.Peek(2); perr == nil {
		hdr[0], hdr[1] = peeked[0], peeked[1]
		if hdr[0] == '#' && hdr[1] == '!' {
			img.setFlag(FlagShebang)
		}
	}

	img.mu.Lock()
	img.stat = st
	img.attrSource = AttrSourceByFD
	img.fd = f
	img.mu.Unlock()
	return nil
}

func (img *Image) fallbackToAttr(attr Attr) {
	img.mu.Lock()
	img.stat = FileStat{
		Mode: attr.Mode, UID: attr.UID, GID: attr.GID,
		Dev: attr.Dev, Ino: attr.Ino, Size: attr.Size,
		Mtime: attr.Mtime, Ctime: attr.Ctime, Btime: attr.Btime,
	}
	img.attrSource = AttrSourceByEvent
	img.mu.Unlock()
}

// Close releases the open fd, if any.
func (img *Image) Close() {
	img.mu.Lock()
	f := img.fd
	img.fd = nil
	img.mu.Unlock()
	if f != nil {
		f.Close()
	}
}

// MatchSuppressions reports whether img's code signature identifier/team
// id is in byIdent, or img's path (or its script's path) is in byPath.
// Pure function of img and the two sets (spec.md §8 suppression
// idempotence): calling it twice with the same arguments yields the same
// result, since it only reads already-settled fields.
func (img *Image) MatchSuppressions(byIdent, byPath map[string]struct{}) bool {
	img.mu.Lock()
	sig := img.sig
	path := img.Path
	var scriptPath string
	if img.Script != nil {
		scriptPath = img.Script.Path
	}
	img.mu.Unlock()

	if sig != nil && sig.Valid {
		if containsIdent(byIdent, sig.Ident, sig.TeamID) {
			return true
		}
	}
	if containsPath(byPath, path) {
		return true
	}
	if scriptPath != "" && containsPath(byPath, scriptPath) {
		return true
	}
	return false
}
