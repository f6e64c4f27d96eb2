package procmon

import "time"

// Subject is the credentials snapshot of the process performing an
// action, carried on fork/exec/spawn events (spec.md §3 "subject
// credentials snapshot").
type Subject struct {
	PID  int
	RUID int
	EUID int
	RGID int
	EGID int
	SID  int
	AUID int
}

// Attr is the file-attribute snapshot an audit event carries alongside
// an exec, used as the authoritative fallback when a synchronous stat(2)
// disagrees with it (spec.md §4.1 Open/Acquire).
type Attr struct {
	Mode  uint32
	UID   int
	GID   int
	Dev   uint64
	Ino   uint64
	Size  int64
	Mtime time.Time
	Ctime time.Time
	Btime time.Time
}

// FileStat is the full stat(2)-derived snapshot stored on an Image.
type FileStat struct {
	Mode  uint32
	UID   int
	GID   int
	Dev   uint64
	Ino   uint64
	Size  int64
	Mtime time.Time
	Ctime time.Time
	Btime time.Time
}

// matchesAttr reports whether st and attr agree on the identity fields
// image_exec_open falls back on (mode, uid, gid, dev, ino) — spec.md §4.1.
func (st FileStat) matchesAttr(attr Attr) bool {
	return st.Mode == attr.Mode &&
		st.UID == attr.UID &&
		st.GID == attr.GID &&
		st.Dev == attr.Dev &&
		st.Ino == attr.Ino
}

// changedSince reports whether a later stat no longer matches st on
// size or any of the three timestamps — the "file was written during
// hashing/signing" invalidation check used by Acquire (spec.md §4.1
// steps 3 and 7).
func (st FileStat) changedSince(later FileStat) bool {
	return st.Size != later.Size ||
		!st.Mtime.Equal(later.Mtime) ||
		!st.Ctime.Equal(later.Ctime) ||
		!st.Btime.Equal(later.Btime)
}

// HashKey is the cache key for the hash cache: (dev, ino, mtime, ctime,
// btime). Two distinct paths sharing this tuple are the same inode and
// therefore the same content (spec.md §4.7, §8 "cache-key stability").
type HashKey struct {
	Dev   uint64
	Ino   uint64
	Mtime time.Time
	Ctime time.Time
	Btime time.Time
}

func hashKeyOf(st FileStat) HashKey {
	return HashKey{Dev: st.Dev, Ino: st.Ino, Mtime: st.Mtime, Ctime: st.Ctime, Btime: st.Btime}
}

// HashTuple holds the configured subset of content hashes for one image.
// Zero-length slices mean "not computed", distinguishing it from "hash of
// the empty string".
type HashTuple struct {
	MD5    []byte
	SHA1   []byte
	SHA256 []byte
	SHA512 []byte
}

// cacheKey renders a HashTuple into a comparable map/LRU key for the
// code-signature cache, which is content-addressed (spec.md §4.7).
func (h HashTuple) cacheKey() string {
	// SHA256 alone is sufficient to identify content for cache purposes;
	// falling back to SHA1/MD5 keeps the cache usable when the operator
	// has configured a narrower hash set.
	switch {
	case len(h.SHA256) > 0:
		return "sha256:" + string(h.SHA256)
	case len(h.SHA512) > 0:
		return "sha512:" + string(h.SHA512)
	case len(h.SHA1) > 0:
		return "sha1:" + string(h.SHA1)
	case len(h.MD5) > 0:
		return "md5:" + string(h.MD5)
	default:
		return ""
	}
}

func (h HashTuple) empty() bool {
	return len(h.MD5) == 0 && len(h.SHA1) == 0 && len(h.SHA256) == 0 && len(h.SHA512) == 0
}
